// internal/discovery/scanner.go
package discovery

import (
	"context"

	"go.uber.org/zap"

	"serial-gateway/pkg/driver"
)

// PortScanner finds ports of one kind
type PortScanner interface {
	Scan(ctx context.Context) ([]driver.PortInfo, error)
	GetScannerType() string
	IsAvailable() bool
}

// ScannerManager merges the results of several scanners. Scanners are
// queried in registration order; the first scanner to report a path wins.
type ScannerManager struct {
	scanners []PortScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		logger: logger,
	}
}

// RegisterScanner registers a port scanner
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	sm.scanners = append(sm.scanners, scanner)
	sm.logger.Debug("Scanner registered", zap.String("type", scanner.GetScannerType()))
}

// ScanAll runs every available scanner. It fails only when every
// available scanner failed.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]driver.PortInfo, error) {
	var (
		all     []driver.PortInfo
		seen    = make(map[string]bool)
		ran     int
		failed  int
		lastErr error
	)

	for _, scanner := range sm.scanners {
		scannerType := scanner.GetScannerType()
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}
		ran++

		ports, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			failed++
			lastErr = err
			continue
		}

		for _, p := range ports {
			if seen[p.Path] {
				continue
			}
			seen[p.Path] = true
			all = append(all, p)
		}
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("ports_found", len(ports)),
		)
	}

	if ran > 0 && failed == ran {
		return nil, lastErr
	}
	return all, nil
}
