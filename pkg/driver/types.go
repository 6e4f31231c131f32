// pkg/driver/types.go
package driver

import (
	"math"
	"strconv"
)

// FieldMask selects the fields of a PortConfig that carry a value
type FieldMask uint8

const (
	FieldBaudRate FieldMask = 1 << iota
	FieldDataBits
	FieldParity
	FieldStopBits
	FieldFlowControl

	FieldAll = FieldBaudRate | FieldDataBits | FieldParity | FieldStopBits | FieldFlowControl
)

// Has reports whether every bit of f is set in m
func (m FieldMask) Has(f FieldMask) bool {
	return m&f == f
}

// Parity defines the parity mode of a port
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parityNames = [...]string{"none", "odd", "even", "mark", "space"}

func (p Parity) String() string {
	if p < 0 || int(p) >= len(parityNames) {
		return "parity(" + strconv.Itoa(int(p)) + ")"
	}
	return parityNames[p]
}

// StopBits defines the number of stop bits
type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits1Half
	StopBits2
)

// Float64 returns the numeric value used on the wire
func (s StopBits) Float64() float64 {
	switch s {
	case StopBits1Half:
		return 1.5
	case StopBits2:
		return 2
	default:
		return 1
	}
}

func (s StopBits) String() string {
	return strconv.FormatFloat(s.Float64(), 'f', -1, 64)
}

// FlowControl defines the flow control mode of a port
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowRTSCTS
	FlowDTRDSR
)

var flowNames = [...]string{"none", "rts/cts", "dtr/dsr"}

func (f FlowControl) String() string {
	if f < 0 || int(f) >= len(flowNames) {
		return "flow(" + strconv.Itoa(int(f)) + ")"
	}
	return flowNames[f]
}

// PortConfig is a partial serial port configuration. A value is only
// meaningful when its bit is set in Mask.
type PortConfig struct {
	Mask        FieldMask   `json:"-"`
	BaudRate    int         `json:"baud"`
	DataBits    int         `json:"bits"`
	Parity      Parity      `json:"parity"`
	StopBits    StopBits    `json:"stop"`
	FlowControl FlowControl `json:"flow"`
}

// Merge returns c with every field selected by change.Mask replaced by the
// value from change
func (c PortConfig) Merge(change PortConfig) PortConfig {
	if change.Mask.Has(FieldBaudRate) {
		c.BaudRate = change.BaudRate
	}
	if change.Mask.Has(FieldDataBits) {
		c.DataBits = change.DataBits
	}
	if change.Mask.Has(FieldParity) {
		c.Parity = change.Parity
	}
	if change.Mask.Has(FieldStopBits) {
		c.StopBits = change.StopBits
	}
	if change.Mask.Has(FieldFlowControl) {
		c.FlowControl = change.FlowControl
	}
	c.Mask |= change.Mask
	return c
}

// DefaultConfig returns 9600 8N1 without flow control
func DefaultConfig() PortConfig {
	return PortConfig{
		Mask:        FieldAll,
		BaudRate:    9600,
		DataBits:    8,
		Parity:      ParityNone,
		StopBits:    StopBits1,
		FlowControl: FlowNone,
	}
}

// PortInfo describes an enumerated port
type PortInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	VendorID     string `json:"vendor,omitempty"`
	ProductID    string `json:"product,omitempty"`
	SerialNumber string `json:"serial,omitempty"`
	// Order is the enumerated port number, used only for sorting
	Order int `json:"-"`
}

// NoOrder is the order key of ports whose name carries no number
const NoOrder = math.MaxInt32

// OrderKey returns the trailing decimal number of a port name, e.g. 3 for
// COM3 and 0 for /dev/ttyUSB0. Names without one sort last.
func OrderKey(name string) int {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return NoOrder
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil || n >= NoOrder {
		return NoOrder - 1
	}
	return n
}

// OpenMode selects the transfer directions a session may use
type OpenMode struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

// ModemControl requests output line changes; nil leaves a line untouched
type ModemControl struct {
	RTS *bool
	DTR *bool
}

// ModemStatus holds the modem input lines
type ModemStatus struct {
	CTS bool `json:"cts"`
	DSR bool `json:"dsr"`
	RI  bool `json:"ri"`
	DCD bool `json:"dcd"`
}
