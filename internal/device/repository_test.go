package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/database"
	"github.com/nerrad567/espnow-bridge/migrations"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "devices.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_DeviceLifecycle(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	d := &Device{ID: "dev-1", Identifier: "esp_now:m1", Name: "Garage", Manufacturer: "Espressive"}
	require.NoError(t, repo.CreateDevice(ctx, d))

	dup := &Device{ID: "dev-2", Identifier: "esp_now:m1", Name: "Dup"}
	assert.ErrorIs(t, repo.CreateDevice(ctx, dup), ErrDeviceExists)

	got, err := repo.GetDeviceByIdentifier(ctx, "esp_now:m1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.ID)
	assert.Equal(t, "Espressive", got.Manufacturer)
	assert.Empty(t, got.Model)
	assert.False(t, got.CreatedAt.IsZero())

	got.Model = "ESP32"
	require.NoError(t, repo.UpdateDevice(ctx, got))

	reloaded, err := repo.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "ESP32", reloaded.Model)

	assert.ErrorIs(t, repo.UpdateDevice(ctx, &Device{ID: "ghost"}), ErrDeviceNotFound)

	_, err = repo.GetDevice(ctx, "ghost")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	list, err := repo.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLiteRepository_EntityUpsert(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateDevice(ctx, &Device{ID: "dev-1", Identifier: "esp_now:m1", Name: "Garage"}))

	e := &Entity{
		EntityID: "sensor.esp_now_m1_garage_temp",
		UniqueID: "m1_temp",
		Platform: PlatformSensor,
		DeviceID: "dev-1",
		Name:     "Garage temp",
		Unit:     "°C",
	}
	require.NoError(t, repo.UpsertEntity(ctx, e))

	e.Unit = "°F"
	e.StateClass = "measurement"
	require.NoError(t, repo.UpsertEntity(ctx, e))

	got, err := repo.GetEntity(ctx, e.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "°F", got.Unit)
	assert.Equal(t, "measurement", got.StateClass)
	assert.Empty(t, got.Icon)

	list, err := repo.ListEntities(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetEntity(ctx, "sensor.missing")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRegistry_WithSQLite_SurvivesRestart(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	first := NewRegistry(repo)
	dev, err := first.GetOrCreate(ctx, kitchenInfo())
	require.NoError(t, err)

	// A new registry over the same database sees the same device ID.
	second := NewRegistry(repo)
	require.NoError(t, second.RefreshCache(ctx))
	again, err := second.GetOrCreate(ctx, kitchenInfo())
	require.NoError(t, err)
	assert.Equal(t, dev.ID, again.ID)
}
