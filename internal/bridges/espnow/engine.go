package espnow

import (
	"context"
	"fmt"
)

// SnapshotSaver accepts snapshots for a debounced save.
// Satisfied by *store.Store.
type SnapshotSaver interface {
	DebouncedSave(v any)
}

// EngineOptions holds the collaborators of an Engine.
type EngineOptions struct {
	// Nodes is the node registry. Required.
	Nodes *NodeRegistry

	// Sensors creates and updates sensors. Required.
	Sensors *EntityRegistry

	// Events delivers fired events. Required.
	Events *EventDispatcher

	// Store receives a snapshot whenever trigger bindings change. Optional.
	Store SnapshotSaver

	// Logger is optional.
	Logger Logger
}

// Engine decodes frames and maps them onto nodes, sensors, triggers and
// events. It is not safe for concurrent use: one goroutine feeds it lines.
type Engine struct {
	nodes   *NodeRegistry
	sensors *EntityRegistry
	events  *EventDispatcher
	store   SnapshotSaver
	logger  Logger
}

// NewEngine validates opts and creates an engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Nodes == nil {
		return nil, fmt.Errorf("node registry is required")
	}
	if opts.Sensors == nil {
		return nil, fmt.Errorf("entity registry is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("event dispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		nodes:   opts.Nodes,
		sensors: opts.Sensors,
		events:  opts.Events,
		store:   opts.Store,
		logger:  logger,
	}, nil
}

// HandleLine processes one line from the gateway.
//
// Frame-level failures (ErrNotProtocolLine, ErrInvalidFrame, ErrMissingMAC)
// are returned for the caller to log; nothing has been applied in that
// case. Failures of individual keys are logged and do not stop the frame.
func (e *Engine) HandleLine(ctx context.Context, line []byte) error {
	f, err := DecodeFrame(line)
	if err != nil {
		return err
	}
	return e.HandleFrame(ctx, f)
}

// HandleFrame applies a decoded frame: sensors are updated as keys are
// walked, events fire once the walk completes, and a snapshot save is
// requested at most once if the node is new or its trigger bindings changed.
func (e *Engine) HandleFrame(ctx context.Context, f Frame) error {
	n, created, err := e.nodes.LookupOrCreate(ctx, f.MAC, f.Name)
	if err != nil {
		return err
	}

	var pending eventList

	n.mu.Lock()
	e.walk(ctx, n, f.Body, "", &pending)
	fired := e.events.build(n, pending)
	dirty := n.dirty || created
	n.dirty = false
	n.mu.Unlock()

	if len(fired) > 0 {
		e.events.Fire(fired)
	}
	if dirty {
		e.requestSave()
	}
	return nil
}

// requestSave hands a snapshot built now to the store.
func (e *Engine) requestSave() {
	if e.store == nil {
		return
	}
	e.store.DebouncedSave(e.nodes.Snapshot())
	e.logger.Debug("snapshot save requested", "nodes", e.nodes.Len())
}

// Nodes returns the engine's node registry.
func (e *Engine) Nodes() *NodeRegistry {
	return e.nodes
}
