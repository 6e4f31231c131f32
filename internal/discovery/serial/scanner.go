// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"serial-gateway/internal/discovery/usb"
	"serial-gateway/pkg/driver"
)


// getPortsList is replaced in tests
var getPortsList = enumerator.GetDetailedPortsList

// Scanner lists the serial ports known to the operating system
type Scanner struct {
	logger       *zap.Logger
	knownDevices *usb.DeviceDatabase
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger:       logger.With(zap.String("scanner", "serial")),
		knownDevices: usb.NewDeviceDatabase(),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the serial ports
func (s *Scanner) Scan(ctx context.Context) ([]driver.PortInfo, error) {
	details, err := getPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]driver.PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		ports = append(ports, s.portInfo(d))
	}

	s.logger.Debug("Serial ports listed", zap.Int("count", len(ports)))
	return ports, nil
}

func (s *Scanner) portInfo(d *enumerator.PortDetails) driver.PortInfo {
	info := driver.PortInfo{
		Path:  d.Name,
		Name:  filepath.Base(d.Name),
		Order: driver.OrderKey(d.Name),
	}
	if !d.IsUSB {
		return info
	}

	info.VendorID = strings.ToLower(d.VID)
	info.ProductID = strings.ToLower(d.PID)
	info.SerialNumber = d.SerialNumber

	switch {
	case d.Product != "":
		info.Name = d.Product
	default:
		vid, vok := usb.ParseID(d.VID)
		pid, pok := usb.ParseID(d.PID)
		if vok && pok {
			if desc := s.knownDevices.Describe(vid, pid); desc != "" {
				info.Name = desc
			}
		}
	}
	return info
}
