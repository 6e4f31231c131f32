package driver

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"serial-gateway/internal/config"
)

func TestDefaultDrivers(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(registry, zap.NewNop())

	names := registry.ListDrivers()
	if len(names) != 2 || names[0] != "loopback" || names[1] != "serial" {
		t.Errorf("unexpected drivers %v", names)
	}
	for _, name := range config.Drivers {
		if !registry.IsSupported(name) {
			t.Errorf("configurable driver %s is not registered", name)
		}
	}
}

func TestCreateDriver(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(registry, zap.NewNop())

	d, err := registry.CreateDriver(&config.DeviceConfig{Driver: "loopback", LoopbackPorts: []string{"loop0"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ports, err := d.Enumerate(context.Background())
	if err != nil || len(ports) != 1 || ports[0].Path != "loop0" {
		t.Errorf("unexpected ports %v, %v", ports, err)
	}

	if _, err := registry.CreateDriver(&config.DeviceConfig{Driver: "modbus"}); err == nil {
		t.Error("expected error for unknown driver")
	}

	_, err = registry.CreateDriver(&config.DeviceConfig{
		Driver:      "serial",
		DefaultMode: config.SerialPortConfig{Parity: "sometimes"},
	})
	if err == nil {
		t.Error("expected error for invalid default mode")
	}
}
