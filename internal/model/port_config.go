// internal/model/port_config.go
package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"serial-gateway/pkg/driver"
)

var (
	stopOne     = decimal.NewFromInt(1)
	stopOneHalf = decimal.RequireFromString("1.5")
	stopTwo     = decimal.NewFromInt(2)
)

// ConfigRequest holds the configuration fields supplied by a client.
// A nil field was not supplied and stays untouched on the device.
type ConfigRequest struct {
	Baud   *float64
	Bits   *float64
	Parity *string
	Stop   *float64
	Flow   *string
}

// Change validates the request and converts it into a masked driver change.
// The baud rate is only checked for being a whole number; its range is up
// to the driver.
func (r ConfigRequest) Change() (driver.PortConfig, error) {
	var change driver.PortConfig

	if r.Baud != nil {
		baud, ok := wholeNumber(*r.Baud)
		if !ok {
			return driver.PortConfig{}, fmt.Errorf("%w: invalid baud rate: %s", driver.ErrInvalidArgument, formatNumber(*r.Baud))
		}
		change.BaudRate = baud
		change.Mask |= driver.FieldBaudRate
	}

	if r.Bits != nil {
		bits, ok := wholeNumber(*r.Bits)
		if !ok || bits < 5 || bits > 8 {
			return driver.PortConfig{}, fmt.Errorf("%w: invalid data bits: %s", driver.ErrInvalidArgument, formatNumber(*r.Bits))
		}
		change.DataBits = bits
		change.Mask |= driver.FieldDataBits
	}

	if r.Parity != nil {
		parity, err := ParseParity(*r.Parity)
		if err != nil {
			return driver.PortConfig{}, err
		}
		change.Parity = parity
		change.Mask |= driver.FieldParity
	}

	if r.Stop != nil {
		stop, err := ParseStopBits(*r.Stop)
		if err != nil {
			return driver.PortConfig{}, err
		}
		change.StopBits = stop
		change.Mask |= driver.FieldStopBits
	}

	if r.Flow != nil {
		flow, err := ParseFlowControl(*r.Flow)
		if err != nil {
			return driver.PortConfig{}, err
		}
		change.FlowControl = flow
		change.Mask |= driver.FieldFlowControl
	}

	return change, nil
}

// ParseParity maps a parity name to its driver value
func ParseParity(name string) (driver.Parity, error) {
	switch name {
	case "none":
		return driver.ParityNone, nil
	case "odd":
		return driver.ParityOdd, nil
	case "even":
		return driver.ParityEven, nil
	case "mark":
		return driver.ParityMark, nil
	case "space":
		return driver.ParitySpace, nil
	}
	return 0, fmt.Errorf("%w: invalid parity mode: %s", driver.ErrInvalidArgument, name)
}

// ParseStopBits accepts 1, 1.5 and 2
func ParseStopBits(value float64) (driver.StopBits, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: invalid stop bits: %s", driver.ErrInvalidArgument, formatNumber(value))
	}

	d := decimal.NewFromFloat(value)
	switch {
	case d.Equal(stopOne):
		return driver.StopBits1, nil
	case d.Equal(stopOneHalf):
		return driver.StopBits1Half, nil
	case d.Equal(stopTwo):
		return driver.StopBits2, nil
	}
	return 0, fmt.Errorf("%w: invalid stop bits: %s", driver.ErrInvalidArgument, formatNumber(value))
}

// ParseFlowControl maps a flow control name to its driver value.
// "rts-cts" and "dtr-dsr" are accepted as aliases.
func ParseFlowControl(name string) (driver.FlowControl, error) {
	switch strings.Replace(name, "-", "/", 1) {
	case "none":
		return driver.FlowNone, nil
	case "rts/cts":
		return driver.FlowRTSCTS, nil
	case "dtr/dsr":
		return driver.FlowDTRDSR, nil
	}
	return 0, fmt.Errorf("%w: invalid flow control: %s", driver.ErrInvalidArgument, name)
}

// ConfigResponse is the effective configuration reported to clients
type ConfigResponse struct {
	Baud   int     `json:"baud"`
	Bits   int     `json:"bits"`
	Parity string  `json:"parity"`
	Stop   float64 `json:"stop"`
	Flow   string  `json:"flow"`
}

// NewConfigResponse renders an effective driver configuration
func NewConfigResponse(cfg driver.PortConfig) ConfigResponse {
	return ConfigResponse{
		Baud:   cfg.BaudRate,
		Bits:   cfg.DataBits,
		Parity: cfg.Parity.String(),
		Stop:   cfg.StopBits.Float64(),
		Flow:   cfg.FlowControl.String(),
	}
}

func wholeNumber(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, false
	}
	return int(v), true
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return decimal.NewFromFloat(v).String()
}
