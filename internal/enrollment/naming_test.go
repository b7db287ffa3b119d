package enrollment

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleName(t *testing.T) {
	name := SampleName("alice")
	assert.Regexp(t, regexp.MustCompile(`^face_alice_[0-9a-f]{8}\.jpg$`), name)
	assert.NotEqual(t, name, SampleName("alice"))

	identity, ok := ParseSampleName(name)
	assert.True(t, ok)
	assert.Equal(t, "alice", identity)
}

func TestParseSampleName(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		ok       bool
	}{
		{"face_alice_1a2b3c4d.jpg", "alice", true},
		{"bob/face_bob_x.jpeg", "bob", true},
		{"/abs/path/face_j.doe_0001.png", "j.doe", true},
		{"face_Bob-2_ff.jpg", "Bob-2", true},
		{"face_alice.jpg", "", false},
		{"face__abc.jpg", "", false},
		{"face_alice_.jpg", "", false},
		{"alice_1234.jpg", "", false},
		{"face_a_b_c.jpg", "", false},
		{"face_.hidden_1.jpg", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, ok := ParseSampleName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.identity, identity)
		})
	}
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, isImageFile("a/face.jpg"))
	assert.True(t, isImageFile("a/face.JPEG"))
	assert.True(t, isImageFile("face.png"))
	assert.False(t, isImageFile("face.txt"))
	assert.False(t, isImageFile(".face.jpg"))
}
