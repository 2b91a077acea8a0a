package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// saveTimeout bounds a single debounced write.
const saveTimeout = 10 * time.Second

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// Store reads and writes one JSON document under a fixed key.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	db    *sql.DB
	key   string
	delay time.Duration

	logger Logger

	mu         sync.Mutex
	timer      *time.Timer
	pending    any
	hasPending bool
	closed     bool

	// writeMu is held from taking a value to writing it, so writes land in
	// the order their values were queued. Acquired before mu.
	writeMu sync.Mutex
}

// New creates a Store for key. delay is the debounce window used by
// DebouncedSave; zero writes on the next scheduler tick.
func New(db *sql.DB, key string, delay time.Duration) (*Store, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Store{db: db, key: key, delay: delay, logger: noopLogger{}}, nil
}

// SetLogger sets the logger used for background save failures.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Load decodes the stored document into v.
//
// Returns:
//   - bool: false when nothing has been stored yet (v is untouched)
//   - error: If the query or JSON decoding fails
func (s *Store) Load(ctx context.Context, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", s.key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", s.key, err)
	}
	return true, nil
}

// Save writes v immediately.
func (s *Store) Save(ctx context.Context, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(ctx, v)
}

// write stores v. The caller holds writeMu.
func (s *Store) write(ctx context.Context, v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", s.key, err)
	}
	return nil
}

// DebouncedSave schedules a write of v. Requests arriving while a write is
// pending replace the value without extending the window, so only the
// latest value is written. v must not be mutated after the call.
func (s *Store) DebouncedSave(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending = v
	s.hasPending = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.fire)
	}
}

// Pending reports whether a debounced save is waiting to run.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPending
}

// Flush writes any pending debounced data now.
func (s *Store) Flush(ctx context.Context) error {
	_, err := s.writePending(ctx)
	return err
}

// writePending writes the pending value, if any, reporting whether one
// was taken.
func (s *Store) writePending(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	v, ok := s.takePending()
	if !ok {
		return false, nil
	}
	return true, s.write(ctx, v)
}

// Close flushes pending data and rejects further debounced saves.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	if errors.Is(err, ErrClosed) {
		err = nil
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return err
}

func (s *Store) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	wrote, err := s.writePending(ctx)
	if !wrote {
		return
	}
	if err != nil {
		s.logger.Error("debounced save failed", "key", s.key, "error", err)
		return
	}
	s.logger.Debug("snapshot saved", "key", s.key)
}

func (s *Store) takePending() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	v, ok := s.pending, s.hasPending
	s.pending, s.hasPending = nil, false
	return v, ok
}
