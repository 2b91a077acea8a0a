package espnow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/espnow-bridge/internal/device"
)

// fakeDevices is an in-memory DeviceRegistry and EntityStore.
type fakeDevices struct {
	mu       sync.Mutex
	devices  map[string]*device.Device // keyed by identifier
	entities map[string]*device.Entity
	nextID   int

	createErr error
	entityErr error
	updates   int
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{
		devices:  make(map[string]*device.Device),
		entities: make(map[string]*device.Entity),
	}
}

func (f *fakeDevices) GetOrCreate(_ context.Context, info device.DeviceInfo) (*device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	key := info.Domain + ":" + info.Identifier
	if d, ok := f.devices[key]; ok {
		return d.Copy(), nil
	}
	f.nextID++
	d := &device.Device{
		ID:           fmt.Sprintf("dev-%d", f.nextID),
		Identifier:   key,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
	}
	f.devices[key] = d
	return d.Copy(), nil
}

func (f *fakeDevices) GetOrCreateEntity(_ context.Context, e *device.Entity) (*device.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entityErr != nil {
		return nil, f.entityErr
	}
	if err := device.ValidateEntity(e); err != nil {
		return nil, err
	}
	if existing, ok := f.entities[e.EntityID]; ok {
		return existing.Copy(), nil
	}
	f.entities[e.EntityID] = e.Copy()
	return e.Copy(), nil
}

func (f *fakeDevices) UpdateEntity(_ context.Context, e *device.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.entities[e.EntityID] = e.Copy()
	return nil
}

func (f *fakeDevices) GetEntity(_ context.Context, entityID string) (*device.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entityErr != nil {
		return nil, f.entityErr
	}
	e, ok := f.entities[entityID]
	if !ok {
		return nil, device.ErrEntityNotFound
	}
	return e.Copy(), nil
}

func (f *fakeDevices) entity(id string) (*device.Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	return e, ok
}

// recordingSink collects everything delivered to it.
type recordingSink struct {
	mu         sync.Mutex
	discovered []SensorUpdate
	changed    []SensorUpdate
	events     []Event
}

func (r *recordingSink) SensorDiscovered(u SensorUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, u)
}

func (r *recordingSink) StateChanged(u SensorUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, u)
}

func (r *recordingSink) EventFired(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) lastChange() SensorUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changed) == 0 {
		return SensorUpdate{}
	}
	return r.changed[len(r.changed)-1]
}

func (r *recordingSink) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fakeSaver records snapshots handed to DebouncedSave.
type fakeSaver struct {
	mu    sync.Mutex
	saves []Snapshot
}

func (s *fakeSaver) DebouncedSave(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, v.(Snapshot))
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

// recordingLogger counts messages by level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// testEngine bundles an engine with its fakes.
type testEngine struct {
	*Engine
	devices *fakeDevices
	sink    *recordingSink
	saver   *fakeSaver
	logger  *recordingLogger
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	devices := newFakeDevices()
	sink := &recordingSink{}
	saver := &fakeSaver{}
	logger := &recordingLogger{}

	nodes := NewNodeRegistry(devices, logger)
	engine, err := NewEngine(EngineOptions{
		Nodes:   nodes,
		Sensors: NewEntityRegistry(devices, logger, sink),
		Events:  NewEventDispatcher(sink),
		Store:   saver,
		Logger:  logger,
	})
	require.NoError(t, err)
	return &testEngine{Engine: engine, devices: devices, sink: sink, saver: saver, logger: logger}
}

// feed applies lines, failing on frame-level errors.
func (te *testEngine) feed(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, te.HandleLine(context.Background(), []byte(l)), "line %s", l)
	}
}

func (te *testEngine) node(t *testing.T, mac string) *Node {
	t.Helper()
	n, ok := te.Nodes().ByMAC(mac)
	require.True(t, ok, "node %s not registered", mac)
	return n
}

// fakeMQTT records publishes and can be told to fail.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	fail      error
	published []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) messages(topic string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, m := range f.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMQTT) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

var errBroker = errors.New("broker unavailable")
