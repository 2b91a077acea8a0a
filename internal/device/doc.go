// Package device is the bridge's device and entity registry.
//
// A Device is one physical ESP-NOW node, keyed by a (domain, identifier)
// pair such as ("esp_now", "aa:bb:cc:dd:ee:ff"). Its ID is an opaque UUID
// assigned on first sight and stable across restarts. An Entity is one
// sensor or binary sensor of a device, keyed by its durable entity ID
// ("sensor.esp_now_...").
//
// The Registry adds an in-memory cache over a Repository. SQLiteRepository is
// the production implementation; tests use MockRepository.
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	dev, err := registry.GetOrCreate(ctx, device.DeviceInfo{
//	    Domain:     "esp_now",
//	    Identifier: mac,
//	    Name:       "Kitchen",
//	})
//
// All Registry methods are safe for concurrent use.
package device
