package espnow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/mqtt"
)

// Publish outcomes counted by Metrics.
const (
	publishOK      = "ok"
	publishFailed  = "failed"
	publishDropped = "dropped"
)

// Breaker defaults.
const (
	defaultBreakerFailures = 5
	defaultBreakerOpen     = 30 * time.Second
)

// haOnline is the payload Home Assistant publishes on its status topic
// after starting.
const haOnline = "online"

// MQTTClient is the MQTT surface used by the Publisher and HealthReporter.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Client is the MQTT client. Required.
	Client MQTTClient

	// Topics builds topic names; its DiscoveryPrefix is honoured.
	Topics mqtt.Topics

	// QoS for state and event messages.
	QoS byte

	// Discovery enables Home Assistant discovery configs.
	Discovery bool

	// BreakerFailures is the number of consecutive failures that opens the
	// circuit. Default: 5.
	BreakerFailures int

	// BreakerOpen is how long the circuit stays open. Default: 30s.
	BreakerOpen time.Duration

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger
}

// Publisher mirrors sensor state, events and discovery configs to MQTT.
// Publishes run through a circuit breaker; while it is open messages are
// dropped. Implements StateSink and EventSink.
type Publisher struct {
	client    MQTTClient
	topics    mqtt.Topics
	qos       byte
	discovery bool
	breaker   *gobreaker.CircuitBreaker
	metrics   *Metrics
	logger    Logger

	// discovered caches discovery payloads by topic for replay when Home
	// Assistant restarts.
	mu         sync.Mutex
	discovered map[string][]byte
}

// NewPublisher validates opts and creates a publisher.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = defaultBreakerFailures
	}
	open := opts.BreakerOpen
	if open <= 0 {
		open = defaultBreakerOpen
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Publisher{
		client:     opts.Client,
		topics:     opts.Topics,
		qos:        opts.QoS,
		discovery:  opts.Discovery,
		metrics:    opts.Metrics,
		logger:     logger,
		discovered: make(map[string][]byte),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures) //nolint:gosec // failures is positive
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p, nil
}

// BreakerState returns the circuit breaker state ("closed", "open", "half-open").
func (p *Publisher) BreakerState() string {
	return p.breaker.State().String()
}

// SensorDiscovered implements StateSink.
func (p *Publisher) SensorDiscovered(u SensorUpdate) {
	if !p.discovery {
		return
	}
	topic := p.topics.Discovery(u.Sensor.Kind.String(), u.Sensor.UniqueID)
	payload, err := json.Marshal(p.discoveryConfig(u))
	if err != nil {
		p.logger.Error("failed to marshal discovery config", "entity_id", u.Sensor.EntityID, "error", err)
		return
	}

	p.mu.Lock()
	p.discovered[topic] = payload
	p.mu.Unlock()

	p.publish(topic, payload, 1, true)
}

// StateChanged implements StateSink.
func (p *Publisher) StateChanged(u SensorUpdate) {
	payload, err := json.Marshal(NewStateMessage(u))
	if err != nil {
		p.logger.Error("failed to marshal state", "entity_id", u.Sensor.EntityID, "error", err)
		return
	}
	p.publish(p.topics.SensorState(u.MAC, u.Sensor.Path), payload, p.qos, true)
}

// EventFired implements EventSink.
func (p *Publisher) EventFired(ev Event) {
	payload, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		p.logger.Error("failed to marshal event", "mac", ev.MAC, "error", err)
		return
	}
	p.publish(p.topics.NodeEvents(ev.MAC), payload, p.qos, false)
}

// HandleDiscoveryStatus replays every cached discovery config when Home
// Assistant announces it is online. Signature matches mqtt.MessageHandler.
func (p *Publisher) HandleDiscoveryStatus(_ string, payload []byte) error {
	if string(payload) != haOnline {
		return nil
	}
	n := p.RepublishDiscovery()
	p.logger.Info("republished discovery configs", "count", n)
	return nil
}

// RepublishDiscovery publishes every cached discovery config again and
// returns how many were sent.
func (p *Publisher) RepublishDiscovery() int {
	p.mu.Lock()
	topics := sortedKeys(p.discovered)
	payloads := make([][]byte, len(topics))
	for i, t := range topics {
		payloads[i] = p.discovered[t]
	}
	p.mu.Unlock()

	sent := 0
	for i, t := range topics {
		if p.publish(t, payloads[i], 1, true) {
			sent++
		}
	}
	return sent
}

// publish sends one message through the breaker and reports success.
func (p *Publisher) publish(topic string, payload []byte, qos byte, retained bool) bool {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.client.Publish(topic, payload, qos, retained)
	})
	switch {
	case err == nil:
		p.metrics.ObservePublish(publishOK)
		return true
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		p.metrics.ObservePublish(publishDropped)
		p.logger.Debug("publish dropped, circuit open", "topic", topic)
	default:
		p.metrics.ObservePublish(publishFailed)
		p.logger.Warn("publish failed", "topic", topic, "error", err)
	}
	return false
}

func (p *Publisher) discoveryConfig(u SensorUpdate) DiscoveryConfig {
	s := u.Sensor
	cfg := DiscoveryConfig{
		Name:              s.Name,
		UniqueID:          s.UniqueID,
		ObjectID:          objectID(s.EntityID),
		StateTopic:        p.topics.SensorState(u.MAC, s.Path),
		ValueTemplate:     "{{ value_json.state }}",
		AvailabilityTopic: p.topics.BridgeStatus(),
		AvailabilityTpl:   "{{ value_json.status }}",
		DeviceClass:       s.DeviceClass,
		Icon:              s.Icon,
		Unit:              s.Unit,
		Device: &DiscoveryDevice{
			Identifiers:  []string{deviceDomain + "_" + u.MAC},
			Name:         u.DeviceName,
			SWVersion:    deviceSWVersion,
			HWVersion:    deviceHWVersion,
			Model:        deviceModel,
			Manufacturer: deviceManufacturer,
			ConfigURL:    deviceConfigURL,
		},
	}
	if s.Kind == KindBoolean {
		cfg.PayloadOn = StateOn
		cfg.PayloadOff = StateOff
	} else {
		cfg.StateClass = s.StateClass
	}
	return cfg
}

// objectID strips the platform from an entity ID.
func objectID(entityID string) string {
	if _, id, ok := strings.Cut(entityID, "."); ok {
		return id
	}
	return entityID
}
