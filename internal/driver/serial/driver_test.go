package serial

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	goserial "go.bug.st/serial"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/pkg/driver"
)

type fakePort struct {
	modes   []*goserial.Mode
	rts     *bool
	dtr     *bool
	timeout time.Duration
	input   []byte
	written []byte
	closed  bool
	modeErr error
}

func (p *fakePort) SetMode(mode *goserial.Mode) error {
	if p.modeErr != nil {
		return p.modeErr
	}
	p.modes = append(p.modes, mode)
	return nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	n := copy(b, p.input)
	p.input = p.input[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) SetDTR(v bool) error { p.dtr = &v; return nil }
func (p *fakePort) SetRTS(v bool) error { p.rts = &v; return nil }

func (p *fakePort) GetModemStatusBits() (*goserial.ModemStatusBits, error) {
	return &goserial.ModemStatusBits{CTS: true, DCD: true}, nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }
func (p *fakePort) Close() error                         { p.closed = true; return nil }

func withFakePort(t *testing.T, fake *fakePort, openErr error) *[]*goserial.Mode {
	t.Helper()
	orig := openPort
	t.Cleanup(func() { openPort = orig })

	var opened []*goserial.Mode
	openPort = func(path string, mode *goserial.Mode) (port, error) {
		if openErr != nil {
			return nil, openErr
		}
		opened = append(opened, mode)
		return fake, nil
	}
	return &opened
}

func TestOpenUsesDefaultMode(t *testing.T) {
	fake := &fakePort{}
	opened := withFakePort(t, fake, nil)

	d := NewDriver(driver.PortConfig{Mask: driver.FieldBaudRate, BaudRate: 115200}, zap.NewNop())
	h, err := d.Open(context.Background(), "/dev/ttyUSB0", driver.OpenMode{Read: true, Write: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mode := (*opened)[0]
	if mode.BaudRate != 115200 || mode.DataBits != 8 || mode.Parity != goserial.NoParity || mode.StopBits != goserial.OneStopBit {
		t.Errorf("unexpected open mode %+v", mode)
	}

	effective, err := h.Configure(driver.PortConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if effective.BaudRate != 115200 || effective.DataBits != 8 {
		t.Errorf("unexpected effective configuration %+v", effective)
	}
	if len(fake.modes) != 0 {
		t.Error("read-back must not touch the port")
	}
}

func TestConfigureMergesMaskedFields(t *testing.T) {
	fake := &fakePort{}
	withFakePort(t, fake, nil)

	h, err := NewDriver(driver.PortConfig{}, zap.NewNop()).Open(context.Background(), "/dev/ttyS0", driver.OpenMode{Read: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	effective, err := h.Configure(driver.PortConfig{
		Mask:     driver.FieldParity | driver.FieldStopBits,
		Parity:   driver.ParityEven,
		StopBits: driver.StopBits2,
		BaudRate: 1, // not masked
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if effective.BaudRate != 9600 || effective.Parity != driver.ParityEven || effective.StopBits != driver.StopBits2 {
		t.Errorf("unexpected effective configuration %+v", effective)
	}

	mode := fake.modes[0]
	if mode.BaudRate != 9600 || mode.Parity != goserial.EvenParity || mode.StopBits != goserial.TwoStopBits {
		t.Errorf("unexpected mode %+v", mode)
	}
}

func TestConfigureErrors(t *testing.T) {
	fake := &fakePort{}
	withFakePort(t, fake, nil)

	h, err := NewDriver(driver.PortConfig{}, zap.NewNop()).Open(context.Background(), "/dev/ttyS0", driver.OpenMode{Read: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = h.Configure(driver.PortConfig{Mask: driver.FieldFlowControl, FlowControl: driver.FlowRTSCTS})
	if !errors.Is(err, driver.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for flow control, got %v", err)
	}

	fake.modeErr = &goserial.PortError{}
	if _, err := h.Configure(driver.PortConfig{Mask: driver.FieldBaudRate, BaudRate: 7}); err == nil {
		t.Error("expected error from the port")
	}

	effective, _ := h.Configure(driver.PortConfig{})
	if effective.BaudRate != 9600 {
		t.Errorf("failed change must not alter the configuration, got %+v", effective)
	}
}

func TestOpenErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"port error", &goserial.PortError{}, nil},
		{"missing device", fmt.Errorf("open /dev/none: %w", fs.ErrNotExist), driver.ErrUnknownPath},
		{"permission", fmt.Errorf("open /dev/none: %w", fs.ErrPermission), driver.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFakePort(t, nil, tt.err)
			_, err := NewDriver(driver.PortConfig{}, zap.NewNop()).Open(context.Background(), "/dev/none", driver.OpenMode{Read: true})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransfers(t *testing.T) {
	fake := &fakePort{input: []byte("pong")}
	withFakePort(t, fake, nil)

	h, err := NewDriver(driver.PortConfig{}, zap.NewNop()).Open(context.Background(), "/dev/ttyS0", driver.OpenMode{Read: true, Write: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n, err := h.Write([]byte("ping")); err != nil || n != 4 || string(fake.written) != "ping" {
		t.Errorf("unexpected write %d, %v, %q", n, err, fake.written)
	}

	buf := make([]byte, 8)
	n, timedOut, err := h.Read(buf, 250*time.Millisecond)
	if err != nil || timedOut || string(buf[:n]) != "pong" {
		t.Errorf("unexpected read %q, %v, %v", buf[:n], timedOut, err)
	}
	if fake.timeout != 250*time.Millisecond {
		t.Errorf("unexpected timeout %v", fake.timeout)
	}

	n, timedOut, err = h.Read(buf, -1)
	if err != nil || !timedOut || n != 0 {
		t.Errorf("expected timeout, got %d, %v, %v", n, timedOut, err)
	}
	if fake.timeout != goserial.NoTimeout {
		t.Errorf("negative timeout must wait indefinitely, got %v", fake.timeout)
	}
}

func TestModemLines(t *testing.T) {
	fake := &fakePort{}
	withFakePort(t, fake, nil)

	h, err := NewDriver(driver.PortConfig{}, zap.NewNop()).Open(context.Background(), "/dev/ttyS0", driver.OpenMode{Read: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	on := true
	if err := h.SetLines(driver.ModemControl{RTS: &on}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.rts == nil || !*fake.rts || fake.dtr != nil {
		t.Errorf("only RTS must be driven: rts=%v dtr=%v", fake.rts, fake.dtr)
	}

	status, err := h.GetLines()
	if err != nil || !status.CTS || !status.DCD || status.DSR || status.RI {
		t.Errorf("unexpected status %+v, %v", status, err)
	}

	if err := h.Close(); err != nil || !fake.closed {
		t.Errorf("close failed: %v", err)
	}
}

func TestDefaultMode(t *testing.T) {
	mode, err := DefaultMode(config.SerialPortConfig{BaudRate: 19200, Parity: "odd", StopBits: 1.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := driver.FieldBaudRate | driver.FieldParity | driver.FieldStopBits
	if mode.Mask != want || mode.BaudRate != 19200 || mode.Parity != driver.ParityOdd || mode.StopBits != driver.StopBits1Half {
		t.Errorf("unexpected mode %+v", mode)
	}

	for _, cfg := range []config.SerialPortConfig{
		{Parity: "sometimes"},
		{StopBits: 3},
		{DataBits: 9},
	} {
		if _, err := DefaultMode(cfg); !errors.Is(err, driver.ErrInvalidArgument) {
			t.Errorf("expected invalid argument for %+v, got %v", cfg, err)
		}
	}
}
