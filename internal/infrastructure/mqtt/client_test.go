package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "espnow-test",
		},
		Auth: config.MQTTAuthConfig{Username: "user", Password: "pass"},
		QoS:  1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(testConfig())

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1883", opts.Servers[0].String())
	assert.Equal(t, "espnow-test", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pass", opts.Password)
	assert.True(t, opts.AutoReconnect)
	assert.Nil(t, opts.TLSConfig)
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://broker.local:8883", opts.Servers[0].String())
	require.NotNil(t, opts.TLSConfig)
}

func TestBuildClientOptions_NoAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{}

	opts := buildClientOptions(cfg)
	assert.Empty(t, opts.Username)
}

func TestBuildClientOptions_LastWill(t *testing.T) {
	opts := buildClientOptions(testConfig())

	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "espnow/bridge/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, byte(1), opts.WillQos)

	var payload statusPayload
	require.NoError(t, json.Unmarshal(opts.WillPayload, &payload))
	assert.Equal(t, "offline", payload.Status)
	assert.Equal(t, "unexpected_disconnect", payload.Reason)
	assert.Equal(t, "espnow-test", payload.ClientID)
}

func TestStatusJSON_OmitsEmptyReason(t *testing.T) {
	s := statusJSON("online", "id", "")
	assert.NotContains(t, s, "reason")
	assert.Contains(t, s, `"status":"online"`)
}

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"bad qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "a/b", []byte(strings.Repeat("x", maxPayloadSize+1)), 0, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubscribe_TrackedWhileDisconnected(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	require.NoError(t, c.Subscribe("homeassistant/status", 1, handler))
	assert.True(t, c.HasSubscription("homeassistant/status"))
	assert.Equal(t, 1, c.SubscriptionCount())

	require.NoError(t, c.Unsubscribe("homeassistant/status"))
	assert.False(t, c.HasSubscription("homeassistant/status"))
	assert.Zero(t, c.SubscriptionCount())
}

func TestSubscribe_Validation(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	assert.ErrorIs(t, c.Subscribe("", 0, handler), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("a", 5, handler), ErrInvalidQoS)
	assert.ErrorIs(t, c.Subscribe("a", 0, nil), ErrSubscribeFailed)
	assert.Zero(t, c.SubscriptionCount())
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newClient(testConfig())
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
	assert.NoError(t, c.Close())
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	warns  int
	errors int
}

func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  { l.warns++ }
func (l *recordingLogger) Error(string, ...any) { l.errors++ }

func TestWrapHandler(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "t", payload: []byte("online")})
	assert.Equal(t, "t=online", got)

	c.wrapHandler(func(string, []byte) error {
		return errors.New("boom")
	})(nil, fakeMessage{topic: "t"})
	assert.Equal(t, 1, logger.warns)

	assert.NotPanics(t, func() {
		c.wrapHandler(func(string, []byte) error {
			panic("bad payload")
		})(nil, fakeMessage{topic: "t"})
	})
	assert.Equal(t, 1, logger.errors)
}
