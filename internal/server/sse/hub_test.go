package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"faceauth-go/internal/integrations/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishAuthEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	client := NewClient()
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.PublishAuthEvent(mqtt.AuthEvent{Identity: "alice", Accepted: true}))

	select {
	case msg := <-client:
		var ev mqtt.AuthEvent
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "alice", ev.Identity)
		assert.True(t, ev.Accepted)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	hub.Unregister(client)
	_, open := <-client
	assert.False(t, open)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := NewClient()
	hub.Register(client)
	cancel()
	<-done

	_, open := <-client
	assert.False(t, open)
}
