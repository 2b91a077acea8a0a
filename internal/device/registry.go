package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device and entity management with an in-memory cache.
//
// The cache is filled by RefreshCache at startup and kept in step by every
// write. Returned values are copies; callers may modify them freely.
type Registry struct {
	repo Repository

	mu           sync.RWMutex
	devices      map[string]*Device // by ID
	byIdentifier map[string]string  // identifier -> ID
	entities     map[string]*Entity // by entity ID

	logger Logger
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:         repo,
		devices:      make(map[string]*Device),
		byIdentifier: make(map[string]string),
		entities:     make(map[string]*Entity),
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads all devices and their entities from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	entities := make(map[string]*Entity)
	for i := range devices {
		list, err := r.repo.ListEntities(ctx, devices[i].ID)
		if err != nil {
			return fmt.Errorf("loading entities for %s: %w", devices[i].ID, err)
		}
		for j := range list {
			entities[list[j].EntityID] = list[j].Copy()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	r.byIdentifier = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i].Copy()
		r.devices[d.ID] = d
		r.byIdentifier[d.Identifier] = d.ID
	}
	r.entities = entities

	r.logger.Info("device cache refreshed", "devices", len(devices), "entities", len(entities))
	return nil
}

// GetOrCreate returns the device registered under info's domain and
// identifier, creating it with a fresh ID when absent. Descriptive
// attributes that differ from the stored ones are updated.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - info: Lookup key and attributes of the device
//
// Returns:
//   - *Device: Copy of the registered device
//   - error: ErrInvalidDevice on bad input, or a repository error
func (r *Registry) GetOrCreate(ctx context.Context, info DeviceInfo) (*Device, error) {
	if err := ValidateDeviceInfo(info); err != nil {
		return nil, err
	}
	identifier := info.key()

	existing, err := r.lookupIdentifier(ctx, identifier)
	switch {
	case err == nil:
		if !existing.applyInfo(info) {
			return existing, nil
		}
		if err := r.repo.UpdateDevice(ctx, existing); err != nil {
			return nil, err
		}
		r.storeDevice(existing)
		r.logger.Debug("device updated", "id", existing.ID, "name", existing.Name)
		return existing.Copy(), nil
	case !errors.Is(err, ErrDeviceNotFound):
		return nil, err
	}

	d := &Device{ID: GenerateID(), Identifier: identifier}
	d.applyInfo(info)
	if err := r.repo.CreateDevice(ctx, d); err != nil {
		return nil, err
	}
	r.storeDevice(d)

	r.logger.Info("device created", "id", d.ID, "identifier", identifier, "name", d.Name)
	return d.Copy(), nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.devices[id]
	r.mu.RUnlock()
	if ok {
		return cached.Copy(), nil
	}

	d, err := r.repo.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	r.storeDevice(d)
	return d.Copy(), nil
}

// List returns all cached devices ordered by name.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// GetOrCreateEntity registers an entity, returning the stored version when
// one already exists under the same entity ID. An existing entity keeps
// its stored attributes.
func (r *Registry) GetOrCreateEntity(ctx context.Context, e *Entity) (*Entity, error) {
	if err := ValidateEntity(e); err != nil {
		return nil, err
	}

	existing, err := r.GetEntity(ctx, e.EntityID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrEntityNotFound) {
		return nil, err
	}

	created := e.Copy()
	if err := r.repo.UpsertEntity(ctx, created); err != nil {
		return nil, err
	}
	r.storeEntity(created)

	r.logger.Info("entity created", "entity_id", created.EntityID, "device_id", created.DeviceID)
	return created.Copy(), nil
}

// UpdateEntity replaces the attributes of a registered entity.
func (r *Registry) UpdateEntity(ctx context.Context, e *Entity) error {
	if err := ValidateEntity(e); err != nil {
		return err
	}
	stored := e.Copy()
	if err := r.repo.UpsertEntity(ctx, stored); err != nil {
		return err
	}
	r.storeEntity(stored)
	r.logger.Debug("entity updated", "entity_id", stored.EntityID)
	return nil
}

// GetEntity retrieves an entity by its entity ID.
// Returns ErrEntityNotFound if the entity does not exist.
func (r *Registry) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	r.mu.RLock()
	cached, ok := r.entities[entityID]
	r.mu.RUnlock()
	if ok {
		return cached.Copy(), nil
	}

	e, err := r.repo.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	r.storeEntity(e)
	return e.Copy(), nil
}

// EntitiesForDevice returns the cached entities of a device sorted by ID.
func (r *Registry) EntitiesForDevice(deviceID string) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entity
	for _, e := range r.entities {
		if e.DeviceID == deviceID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Stats summarises registry contents for monitoring.
type Stats struct {
	Devices    int            `json:"devices"`
	Entities   int            `json:"entities"`
	ByPlatform map[string]int `json:"by_platform"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Devices:    len(r.devices),
		Entities:   len(r.entities),
		ByPlatform: make(map[string]int),
	}
	for _, e := range r.entities {
		stats.ByPlatform[e.Platform]++
	}
	return stats
}

func (r *Registry) lookupIdentifier(ctx context.Context, identifier string) (*Device, error) {
	r.mu.RLock()
	id, ok := r.byIdentifier[identifier]
	var cached *Device
	if ok {
		cached = r.devices[id].Copy()
	}
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	d, err := r.repo.GetDeviceByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	r.storeDevice(d)
	return d.Copy(), nil
}

func (r *Registry) storeDevice(d *Device) {
	r.mu.Lock()
	r.devices[d.ID] = d.Copy()
	r.byIdentifier[d.Identifier] = d.ID
	r.mu.Unlock()
}

func (r *Registry) storeEntity(e *Entity) {
	r.mu.Lock()
	r.entities[e.EntityID] = e.Copy()
	r.mu.Unlock()
}
