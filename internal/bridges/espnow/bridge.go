package espnow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// flushTimeout bounds the final snapshot save on Stop.
const flushTimeout = 5 * time.Second

// SnapshotStore loads and saves the node snapshot.
// Satisfied by *store.Store.
type SnapshotStore interface {
	Load(ctx context.Context, v any) (bool, error)
	DebouncedSave(v any)
	Flush(ctx context.Context) error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Transport yields gateway lines. Required. Closed on Stop when it
	// implements io.Closer.
	Transport LineReader

	// Nodes is the node registry. Required.
	Nodes *NodeRegistry

	// Entities is the entity registry backing sensors. Required.
	Entities EntityStore

	// Store persists the node snapshot. Required.
	Store SnapshotStore

	// Logger is the structured logger. Required.
	Logger Logger

	// StateSinks receive sensor discoveries and state changes, in order.
	StateSinks []StateSink

	// EventSinks receive fired events after the bridge's TriggerBus.
	EventSinks []EventSink

	// Metrics is optional; it is added as a state and event sink.
	Metrics *Metrics

	// Health publishes bridge health. Optional.
	Health *HealthReporter
}

// Bridge drives the ingest loop: it reads one line at a time from the
// transport and applies it through the Engine.
//
// Thread Safety: Start and Stop may be called from any goroutine; the
// engine only ever runs on the bridge's read loop.
type Bridge struct {
	transport LineReader
	store     SnapshotStore
	nodes     *NodeRegistry
	engine    *Engine
	triggers  *TriggerBus
	metrics   *Metrics
	health    *HealthReporter
	logger    Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewBridge validates opts and wires the engine. Call Start to begin.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Nodes == nil {
		return nil, fmt.Errorf("node registry is required")
	}
	if opts.Entities == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	triggers := NewTriggerBus(opts.Nodes)

	stateSinks := append([]StateSink(nil), opts.StateSinks...)
	eventSinks := append([]EventSink{triggers}, opts.EventSinks...)
	if opts.Metrics != nil {
		stateSinks = append(stateSinks, opts.Metrics)
		eventSinks = append(eventSinks, opts.Metrics)
	}

	engine, err := NewEngine(EngineOptions{
		Nodes:   opts.Nodes,
		Sensors: NewEntityRegistry(opts.Entities, opts.Logger, stateSinks...),
		Events:  NewEventDispatcher(eventSinks...),
		Store:   opts.Store,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Bridge{
		transport: opts.Transport,
		store:     opts.Store,
		nodes:     opts.Nodes,
		engine:    engine,
		triggers:  triggers,
		metrics:   opts.Metrics,
		health:    opts.Health,
		logger:    opts.Logger,
	}, nil
}

// Start restores the persisted nodes and starts the read loop and health
// reporting. It returns once the loop is running.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("bridge already started")
	}

	b.restore(ctx)

	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logger.Warn("failed to publish starting status", "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = true

	b.wg.Add(1)
	go b.run(loopCtx)

	if b.health != nil {
		b.health.Start(loopCtx)
		if err := b.health.PublishNow(); err != nil {
			b.logger.Warn("failed to publish health", "error", err)
		}
	}

	b.logger.Info("bridge started", "nodes", b.nodes.Len())
	return nil
}

// restore loads the snapshot. A missing or unreadable snapshot starts the
// bridge empty.
func (b *Bridge) restore(ctx context.Context) {
	var snap Snapshot
	ok, err := b.store.Load(ctx, &snap)
	if err != nil {
		b.logger.Error("failed to load snapshot, starting empty", "error", err)
		return
	}
	if !ok {
		b.logger.Info("no snapshot stored")
		return
	}
	restored := b.nodes.Restore(ctx, snap)
	b.logger.Info("snapshot restored", "nodes", restored)
}

// Stop ends the read loop, flushes a pending snapshot save and stops
// health reporting. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		cancel := b.cancel
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if c, ok := b.transport.(io.Closer); ok {
			if err := c.Close(); err != nil {
				b.logger.Warn("transport close failed", "error", err)
			}
		}
		b.wg.Wait()

		if b.health != nil {
			b.health.Stop()
		}

		ctx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
		defer cancelFlush()
		if err := b.store.Flush(ctx); err != nil {
			b.logger.Error("failed to flush snapshot", "error", err)
		}

		b.logger.Info("bridge stopped")
	})
}

// run is the single-threaded ingest loop.
func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	for {
		line, err := b.transport.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrBridgeStopped) {
				return
			}
			b.logger.Error("transport read failed", "error", err)
			continue
		}
		b.HandleLine(ctx, line)
	}
}

// HandleLine applies one line and logs frame-level failures. Exposed for
// replaying captured gateway output.
func (b *Bridge) HandleLine(ctx context.Context, line []byte) {
	err := b.engine.HandleLine(ctx, line)
	b.metrics.ObserveFrame(err)

	switch {
	case err == nil:
	case errors.Is(err, ErrNotProtocolLine):
		b.logger.Debug("non-protocol line ignored", "line", string(line))
	case errors.Is(err, ErrInvalidFrame):
		b.logger.Error("received invalid JSON", "line", string(line), "error", err)
	case errors.Is(err, ErrMissingMAC):
		b.logger.Error("message has no MAC address", "line", string(line))
	default:
		b.logger.Error("failed to handle message", "line", string(line), "error", err)
	}
}

// Nodes returns the node registry.
func (b *Bridge) Nodes() *NodeRegistry { return b.nodes }

// Triggers returns the bridge's trigger bus.
func (b *Bridge) Triggers() *TriggerBus { return b.triggers }

// Health returns the health reporter, or nil.
func (b *Bridge) Health() *HealthReporter { return b.health }
