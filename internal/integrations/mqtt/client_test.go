package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"faceauth-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) Wait() bool   { return true }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

type fakeClient struct {
	mqtt.Client
	mu         sync.Mutex
	connected  bool
	connectErr error
	messages   []published
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload})
	return &fakeToken{}
}

func withFakeClient(t *testing.T, fc *fakeClient) {
	t.Helper()
	orig := NewClientFunc
	NewClientFunc = func(*mqtt.ClientOptions) mqtt.Client { return fc }
	t.Cleanup(func() { NewClientFunc = orig })
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{Enabled: true, Broker: "localhost", Port: 1883, ClientID: "test", Topic: "faceauth"}
}

func TestPublisher_Disabled(t *testing.T) {
	p := NewPublisher(config.MQTTConfig{Topic: "faceauth"})
	require.NoError(t, p.Start())
	assert.False(t, p.IsConnected())
	assert.NoError(t, p.PublishAuthEvent(AuthEvent{Identity: "alice"}))
	p.Stop()
}

func TestPublisher_PublishAuthEvent(t *testing.T) {
	fc := &fakeClient{}
	withFakeClient(t, fc)

	p := NewPublisher(testConfig())
	require.NoError(t, p.Start())
	assert.True(t, p.IsConnected())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.PublishAuthEvent(AuthEvent{
		Time: ts, Source: "login", Claim: "alice", Identity: "alice", Accepted: true, Score: 1200, Variant: "classification",
	}))

	require.Len(t, fc.messages, 1)
	msg := fc.messages[0]
	assert.Equal(t, "faceauth/auth", msg.topic)
	assert.Equal(t, byte(0), msg.qos)
	assert.False(t, msg.retained)

	var ev AuthEvent
	require.NoError(t, json.Unmarshal(msg.payload.([]byte), &ev))
	assert.Equal(t, "alice", ev.Identity)
	assert.True(t, ev.Accepted)
	assert.True(t, ts.Equal(ev.Time))

	p.Stop()
	assert.False(t, p.IsConnected())
	require.Len(t, fc.messages, 2)
	assert.Equal(t, "faceauth/status", fc.messages[1].topic)
	assert.Equal(t, StatusOffline, fc.messages[1].payload)
	assert.True(t, fc.messages[1].retained)
}

func TestPublisher_ConnectError(t *testing.T) {
	withFakeClient(t, &fakeClient{connectErr: errors.New("refused")})

	p := NewPublisher(testConfig())
	err := p.Start()
	require.Error(t, err)
	assert.False(t, p.IsConnected())
	assert.NoError(t, p.PublishAuthEvent(AuthEvent{}))
}
