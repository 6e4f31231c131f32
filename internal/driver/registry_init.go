// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/internal/driver/loopback"
	"serial-gateway/internal/driver/serial"
	"serial-gateway/pkg/driver"
)

// RegisterDefaultDrivers registers the built-in port drivers
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	registry.Register("serial", func(cfg *config.DeviceConfig, logger *zap.Logger) (driver.PortDriver, error) {
		defaults, err := serial.DefaultMode(cfg.DefaultMode)
		if err != nil {
			return nil, err
		}
		return serial.NewDriver(defaults, logger), nil
	})

	registry.Register("loopback", func(cfg *config.DeviceConfig, logger *zap.Logger) (driver.PortDriver, error) {
		return loopback.NewDriver(cfg.LoopbackPorts, logger), nil
	})

	logger.Debug("Port drivers registered", zap.Strings("drivers", registry.ListDrivers()))
}
