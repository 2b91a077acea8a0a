package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/espnow-bridge/internal/bridges/espnow"
	"github.com/nerrad567/espnow-bridge/internal/device"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/logging"
)

// memDevices is an in-memory device and entity registry.
type memDevices struct {
	mu       sync.Mutex
	devices  map[string]*device.Device
	entities map[string]*device.Entity
}

func newMemDevices() *memDevices {
	return &memDevices{
		devices:  make(map[string]*device.Device),
		entities: make(map[string]*device.Entity),
	}
}

func (m *memDevices) GetOrCreate(_ context.Context, info device.DeviceInfo) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[info.Identifier]; ok {
		return d.Copy(), nil
	}
	d := &device.Device{
		ID:         fmt.Sprintf("dev-%d", len(m.devices)+1),
		Identifier: info.Identifier,
		Name:       info.Name,
	}
	m.devices[info.Identifier] = d
	return d.Copy(), nil
}

func (m *memDevices) GetOrCreateEntity(_ context.Context, e *device.Entity) (*device.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entities[e.EntityID]; ok {
		return existing.Copy(), nil
	}
	m.entities[e.EntityID] = e.Copy()
	return e.Copy(), nil
}

func (m *memDevices) UpdateEntity(_ context.Context, e *device.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.EntityID] = e.Copy()
	return nil
}

func (m *memDevices) GetEntity(_ context.Context, id string) (*device.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, device.ErrEntityNotFound
	}
	return e.Copy(), nil
}

type staticHealth struct {
	msg espnow.HealthMessage
}

func (s staticHealth) Current() espnow.HealthMessage { return s.msg }

// apiFixture wires an engine to a server the way the bridge does.
type apiFixture struct {
	server *Server
	engine *espnow.Engine
	events *EventLog
	http   *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := logging.Discard()
	devices := newMemDevices()
	nodes := espnow.NewNodeRegistry(devices, nil)
	bus := espnow.NewTriggerBus(nodes)
	hub := NewHub(config.WebSocketConfig{}, logger)
	events := NewEventLog(nodes, 10)

	reg := prometheus.NewRegistry()
	metrics, err := espnow.NewMetrics(reg, nodes)
	require.NoError(t, err)

	engine, err := espnow.NewEngine(espnow.EngineOptions{
		Nodes:   nodes,
		Sensors: espnow.NewEntityRegistry(devices, nil, hub, metrics),
		Events:  espnow.NewEventDispatcher(bus, events, hub),
	})
	require.NoError(t, err)

	srv, err := New(Deps{
		Logger:   logger,
		Nodes:    nodes,
		Triggers: bus,
		Health:   staticHealth{msg: espnow.HealthMessage{Bridge: "espnow", Status: espnow.HealthHealthy}},
		Gatherer: reg,
		Hub:      hub,
		Events:   events,
		Version:  "test",
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.closeAll()
		ts.Close()
	})

	return &apiFixture{server: srv, engine: engine, events: events, http: ts}
}

func (f *apiFixture) feed(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		require.NoError(t, f.engine.HandleLine(context.Background(), []byte(line)))
	}
}

// getJSON fetches path and decodes the body into a generic map.
func (f *apiFixture) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}
