package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/database"
	"github.com/nerrad567/espnow-bridge/migrations"
)

type snapshot struct {
	Nodes map[string]string `json:"nodes"`
}

func newTestStore(t *testing.T, delay time.Duration) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "store.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))

	s, err := New(db.DB, "esp_now.config", delay)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(nil, "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestStore_LoadEmpty(t *testing.T) {
	s := newTestStore(t, time.Second)

	var got snapshot
	found, err := s.Load(context.Background(), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, time.Second)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, snapshot{Nodes: map[string]string{"m1": "Kitchen"}}))
	require.NoError(t, s.Save(ctx, snapshot{Nodes: map[string]string{"m1": "Hall"}}))

	var got snapshot
	found, err := s.Load(ctx, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Hall", got.Nodes["m1"])
}

func TestStore_DebouncedSaveCoalesces(t *testing.T) {
	s := newTestStore(t, 50*time.Millisecond)
	ctx := context.Background()

	s.DebouncedSave(snapshot{Nodes: map[string]string{"m1": "first"}})
	s.DebouncedSave(snapshot{Nodes: map[string]string{"m1": "second"}})
	assert.True(t, s.Pending())

	assert.Eventually(t, func() bool { return !s.Pending() }, 2*time.Second, 10*time.Millisecond)

	// The timer goroutine may still be writing; Save serialises behind it.
	require.Eventually(t, func() bool {
		var got snapshot
		found, err := s.Load(ctx, &got)
		return err == nil && found && got.Nodes["m1"] == "second"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_FlushWritesPending(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	s.DebouncedSave(snapshot{Nodes: map[string]string{"m2": "Garage"}})
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.Pending())

	var got snapshot
	found, err := s.Load(ctx, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Garage", got.Nodes["m2"])

	// Nothing pending: Flush is a no-op.
	assert.NoError(t, s.Flush(ctx))
}

func TestStore_CloseFlushesAndRejects(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	s.DebouncedSave(snapshot{Nodes: map[string]string{"m3": "Attic"}})
	require.NoError(t, s.Close(ctx))

	var got snapshot
	found, err := s.Load(ctx, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Attic", got.Nodes["m3"])

	s.DebouncedSave(snapshot{})
	assert.False(t, s.Pending())
	assert.ErrorIs(t, s.Save(ctx, snapshot{}), ErrClosed)
}

func TestStore_InFlightWriteKeepsNewestValue(t *testing.T) {
	s := newTestStore(t, time.Millisecond)
	ctx := context.Background()

	// Stand in for a write that is still running when the timer fires.
	s.writeMu.Lock()
	s.DebouncedSave(snapshot{Nodes: map[string]string{"m1": "old"}})
	time.Sleep(20 * time.Millisecond)

	// The fired timer waits for the write before taking the value.
	assert.True(t, s.Pending())
	s.DebouncedSave(snapshot{Nodes: map[string]string{"m1": "new"}})
	s.writeMu.Unlock()

	require.NoError(t, s.Flush(ctx))
	assert.Eventually(t, func() bool { return !s.Pending() }, time.Second, 5*time.Millisecond)

	// Let any timer goroutine finish before reading.
	s.writeMu.Lock()
	s.writeMu.Unlock() //nolint:staticcheck // Barrier for in-flight writes
	var got snapshot
	found, err := s.Load(ctx, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", got.Nodes["m1"])
}
