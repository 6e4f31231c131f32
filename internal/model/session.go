// internal/model/session.go
package model

import "time"

// SessionInfo is a read-only view of a live session
type SessionInfo struct {
	ID        int       `json:"session"`
	Path      string    `json:"path"`
	Read      bool      `json:"read"`
	Write     bool      `json:"write"`
	Shared    bool      `json:"shared"`
	Permanent bool      `json:"permanent"`
	Owner     string    `json:"owner,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
}

// PortEntry is one element of a list result
type PortEntry struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product,omitempty"`
	Serial  string `json:"serial,omitempty"`
}
