package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines device and entity persistence.
type Repository interface {
	// GetDevice retrieves a device by ID. Returns ErrDeviceNotFound if absent.
	GetDevice(ctx context.Context, id string) (*Device, error)

	// GetDeviceByIdentifier retrieves a device by its domain:identifier key.
	// Returns ErrDeviceNotFound if absent.
	GetDeviceByIdentifier(ctx context.Context, identifier string) (*Device, error)

	// ListDevices retrieves all devices ordered by name.
	ListDevices(ctx context.Context) ([]Device, error)

	// CreateDevice inserts a device. Returns ErrDeviceExists on a duplicate
	// identifier.
	CreateDevice(ctx context.Context, d *Device) error

	// UpdateDevice rewrites the descriptive attributes of a device.
	UpdateDevice(ctx context.Context, d *Device) error

	// GetEntity retrieves an entity by entity ID. Returns ErrEntityNotFound
	// if absent.
	GetEntity(ctx context.Context, entityID string) (*Entity, error)

	// ListEntities retrieves all entities of a device.
	ListEntities(ctx context.Context, deviceID string) ([]Entity, error)

	// UpsertEntity inserts an entity or replaces its attributes.
	UpsertEntity(ctx context.Context, e *Entity) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, identifier, name, manufacturer, model, sw_version,
	hw_version, configuration_url, created_at, updated_at`

const entityColumns = `entity_id, unique_id, platform, device_id, name,
	device_class, state_class, icon, unit, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetDevice retrieves a device by ID.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetDeviceByIdentifier retrieves a device by its identifier key.
func (r *SQLiteRepository) GetDeviceByIdentifier(ctx context.Context, identifier string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE identifier = ?", identifier)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device by identifier: %w", err)
	}
	return d, nil
}

// ListDevices retrieves all devices.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// CreateDevice inserts a new device.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, d *Device) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Identifier, d.Name,
		nullable(d.Manufacturer), nullable(d.Model), nullable(d.SWVersion),
		nullable(d.HWVersion), nullable(d.ConfigurationURL),
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateDevice rewrites the descriptive attributes of an existing device.
func (r *SQLiteRepository) UpdateDevice(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, manufacturer = ?, model = ?, sw_version = ?,
			hw_version = ?, configuration_url = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, nullable(d.Manufacturer), nullable(d.Model), nullable(d.SWVersion),
		nullable(d.HWVersion), nullable(d.ConfigurationURL),
		d.UpdatedAt.Format(time.RFC3339), d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireAffected(res, ErrDeviceNotFound)
}

// GetEntity retrieves an entity by its entity ID.
func (r *SQLiteRepository) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE entity_id = ?", entityID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying entity: %w", err)
	}
	return e, nil
}

// ListEntities retrieves all entities belonging to a device.
func (r *SQLiteRepository) ListEntities(ctx context.Context, deviceID string) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE device_id = ? ORDER BY entity_id", deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return entities, nil
}

// UpsertEntity inserts an entity or updates it in place.
func (r *SQLiteRepository) UpsertEntity(ctx context.Context, e *Entity) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			name = excluded.name,
			device_class = excluded.device_class,
			state_class = excluded.state_class,
			icon = excluded.icon,
			unit = excluded.unit,
			updated_at = excluded.updated_at`,
		e.EntityID, e.UniqueID, e.Platform, e.DeviceID, e.Name,
		nullable(e.DeviceClass), nullable(e.StateClass), nullable(e.Icon), nullable(e.Unit),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting entity: %w", err)
	}
	return nil
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                                   Device
		manufacturer, model, sw, hw, cfgURL sql.NullString
		createdAt, updatedAt                string
	)
	if err := row.Scan(&d.ID, &d.Identifier, &d.Name, &manufacturer, &model, &sw,
		&hw, &cfgURL, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Manufacturer = manufacturer.String
	d.Model = model.String
	d.SWVersion = sw.String
	d.HWVersion = hw.String
	d.ConfigurationURL = cfgURL.String
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func scanEntity(row rowScanner) (*Entity, error) {
	var (
		e                                   Entity
		deviceClass, stateClass, icon, unit sql.NullString
		createdAt, updatedAt                string
	)
	if err := row.Scan(&e.EntityID, &e.UniqueID, &e.Platform, &e.DeviceID, &e.Name,
		&deviceClass, &stateClass, &icon, &unit, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.DeviceClass = deviceClass.String
	e.StateClass = stateClass.String
	e.Icon = icon.String
	e.Unit = unit.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// nullable stores empty strings as NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // Format is written by this package
	return t
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueConstraintError reports whether err is a SQLite unique or primary
// key violation.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
