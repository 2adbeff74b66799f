// Package device is the registry of temperature sensors and heating
// outlets used by fermentation projects.
//
// A Device is reached through the automation hub by entity ID, directly on
// the LAN by address, or both. The Registry caches devices in memory in
// front of a SQLite Repository; the control loop resolves a project's
// sensor and outlet references through it on every cycle.
//
// Usage:
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	sensor, err := registry.GetDevice(ctx, project.SensorRef)
package device
