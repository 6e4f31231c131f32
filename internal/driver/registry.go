// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/pkg/driver"
)

// DriverFactory creates a port driver from the device configuration
type DriverFactory func(cfg *config.DeviceConfig, logger *zap.Logger) (driver.PortDriver, error)

// Registry manages port driver registration and creation
type Registry struct {
	drivers map[string]DriverFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[string]DriverFactory),
		logger:  logger,
	}
}

// Register registers a driver factory under name
func (r *Registry) Register(name string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[name] = factory
	r.logger.Debug("Driver registered", zap.String("driver", name))
}

// CreateDriver creates the driver named by cfg.Driver
func (r *Registry) CreateDriver(cfg *config.DeviceConfig) (driver.PortDriver, error) {
	r.mu.RLock()
	factory, exists := r.drivers[cfg.Driver]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no driver registered as %q (available: %v)", cfg.Driver, r.ListDrivers())
	}

	d, err := factory(cfg, r.logger.With(zap.String("driver", cfg.Driver)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s driver: %w", cfg.Driver, err)
	}
	return d, nil
}

// ListDrivers returns the registered driver names, sorted
func (r *Registry) ListDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported checks if a driver is registered under name
func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.drivers[name]
	return exists
}
