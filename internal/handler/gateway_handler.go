// internal/handler/gateway_handler.go
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/model"
	"serial-gateway/internal/protocol"
	"serial-gateway/internal/service"
	"serial-gateway/internal/session"
	"serial-gateway/internal/utils"
	"serial-gateway/pkg/driver"
)

// ErrMissingParameter is returned when a required request member is absent
var ErrMissingParameter = errors.New("missing parameter")

// GatewayHandler implements the gateway operations on top of the port service
type GatewayHandler struct {
	portService *service.PortService
	logger      *utils.ServiceLogger
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(portService *service.PortService, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{
		portService: portService,
		logger:      utils.NewServiceLogger(logger, "gateway-handler"),
	}
}

// Operations returns the operation table in execution order
func (h *GatewayHandler) Operations() []protocol.Operation {
	return []protocol.Operation{
		{Name: "list", Handle: h.List},
		{Name: "open", Handle: h.Open},
		{Name: "config", Handle: h.Config},
		{Name: "modem", Handle: h.Modem},
		{Name: "write", Handle: h.Write},
		{Name: "read", Handle: h.Read},
		{Name: "close", Handle: h.Close},
	}
}

// NewDispatcher builds a dispatcher serving the gateway operations. Sessions
// a connection opened without "permanent" are closed when it ends.
func (h *GatewayHandler) NewDispatcher() *protocol.Dispatcher {
	d := protocol.NewDispatcher(h.Operations(), Classify)
	d.OnClose(func(conn *protocol.Conn) {
		h.portService.ReleaseConnection(conn.ID)
	})
	return d
}

// Classify maps operation failures to wire error codes
func Classify(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrMissingParameter):
		return utils.CodeMissingParameter, true
	case errors.Is(err, driver.ErrInvalidArgument):
		return utils.CodeInvalidArgument, true
	case errors.Is(err, session.ErrUnknownSession):
		return utils.CodeUnknownSession, true
	case errors.Is(err, driver.ErrUnknownPath):
		return utils.CodeUnknownPath, true
	case errors.Is(err, driver.ErrAccessDenied):
		return utils.CodeAccessDenied, true
	case errors.Is(err, driver.ErrAlreadyOpen):
		return utils.CodeAlreadyOpen, true
	}
	return "", false
}

// List enumerates the available ports
func (h *GatewayHandler) List(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	ports, err := h.portService.ListPorts(ctx)
	if err != nil {
		return err
	}

	result := make([]model.PortEntry, 0, len(ports))
	for _, p := range ports {
		result = append(result, model.PortEntry{
			Path:    p.Path,
			Name:    p.Name,
			Vendor:  p.VendorID,
			Product: p.ProductID,
			Serial:  p.SerialNumber,
		})
	}
	out["result"] = result
	return nil
}

// Open opens a port and returns the new session id
func (h *GatewayHandler) Open(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	path, err := requiredString(in, "path")
	if err != nil {
		return err
	}

	var req service.OpenRequest
	req.Path = path
	if req.Mode.Read, err = optionalBool(in, "read", true); err != nil {
		return err
	}
	if req.Mode.Write, err = optionalBool(in, "write", true); err != nil {
		return err
	}
	if !req.Mode.Read && !req.Mode.Write {
		return fmt.Errorf("%w: at least one of read and write is required", driver.ErrInvalidArgument)
	}
	if req.Shared, err = optionalBool(in, "shared", false); err != nil {
		return err
	}
	if req.Permanent, err = optionalBool(in, "permanent", false); err != nil {
		return err
	}

	cfg, err := configRequest(in)
	if err != nil {
		return err
	}
	if req.Config, err = cfg.Change(); err != nil {
		return err
	}

	s, err := h.portService.OpenPort(ctx, conn.ID, req)
	if err != nil {
		return err
	}
	out["session"] = s.ID
	return nil
}

// Config changes the supplied fields and reports the effective configuration
func (h *GatewayHandler) Config(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	id, err := sessionID(in)
	if err != nil {
		return err
	}

	cfg, err := configRequest(in)
	if err != nil {
		return err
	}
	change, err := cfg.Change()
	if err != nil {
		return err
	}

	effective, err := h.portService.Configure(ctx, conn.ID, id, change)
	if err != nil {
		return err
	}

	resp := model.NewConfigResponse(effective)
	out["baud"] = resp.Baud
	out["bits"] = resp.Bits
	out["parity"] = resp.Parity
	out["stop"] = resp.Stop
	out["flow"] = resp.Flow
	return nil
}

// Modem sets the requested output lines and reports the input lines
func (h *GatewayHandler) Modem(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	id, err := sessionID(in)
	if err != nil {
		return err
	}

	var ctl driver.ModemControl
	if ctl.RTS, err = optionalBoolPtr(in, "rts"); err != nil {
		return err
	}
	if ctl.DTR, err = optionalBoolPtr(in, "dtr"); err != nil {
		return err
	}

	status, err := h.portService.Modem(ctx, id, ctl)
	if err != nil {
		return err
	}
	out["cts"] = status.CTS
	out["dsr"] = status.DSR
	out["ri"] = status.RI
	out["dcd"] = status.DCD
	return nil
}

// Write sends base64 encoded data to the port
func (h *GatewayHandler) Write(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	id, err := sessionID(in)
	if err != nil {
		return err
	}

	encoded, err := requiredString(in, "data")
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: data is not valid base64: %v", driver.ErrInvalidArgument, err)
	}

	written, err := h.portService.Write(ctx, id, data)
	if err != nil {
		return err
	}
	out["written"] = written
	return nil
}

// Read receives up to length bytes and returns them base64 encoded
func (h *GatewayHandler) Read(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	id, err := sessionID(in)
	if err != nil {
		return err
	}

	length, present, err := integer(in, "length")
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: length", ErrMissingParameter)
	}
	if length < 1 {
		return fmt.Errorf("%w: length must be positive: %d", driver.ErrInvalidArgument, length)
	}

	var timeout *time.Duration
	ms, present, err := integer(in, "timeout")
	if err != nil {
		return err
	}
	if present {
		if ms < 0 {
			return fmt.Errorf("%w: timeout must not be negative: %d", driver.ErrInvalidArgument, ms)
		}
		d := time.Duration(ms) * time.Millisecond
		timeout = &d
	}

	result, err := h.portService.Read(ctx, id, length, timeout)
	if err != nil {
		return err
	}
	out["data"] = base64.StdEncoding.EncodeToString(result.Data)
	out["timedout"] = result.TimedOut
	return nil
}

// Close ends the session
func (h *GatewayHandler) Close(ctx context.Context, conn *protocol.Conn, in, out protocol.Object) error {
	id, err := sessionID(in)
	if err != nil {
		return err
	}
	return h.portService.ClosePort(ctx, conn.ID, id)
}

func sessionID(in protocol.Object) (int, error) {
	id, present, err := integer(in, "session")
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, fmt.Errorf("%w: session", ErrMissingParameter)
	}
	return id, nil
}

func configRequest(in protocol.Object) (model.ConfigRequest, error) {
	var (
		req model.ConfigRequest
		err error
	)
	if req.Baud, err = optionalNumber(in, "baud"); err != nil {
		return req, err
	}
	if req.Bits, err = optionalNumber(in, "bits"); err != nil {
		return req, err
	}
	if req.Parity, err = optionalString(in, "parity"); err != nil {
		return req, err
	}
	if req.Stop, err = optionalNumber(in, "stop"); err != nil {
		return req, err
	}
	if req.Flow, err = optionalString(in, "flow"); err != nil {
		return req, err
	}
	return req, nil
}

func requiredString(in protocol.Object, name string) (string, error) {
	s, err := optionalString(in, name)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	return *s, nil
}

func optionalString(in protocol.Object, name string) (*string, error) {
	raw, ok := in[name]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", driver.ErrInvalidArgument, name)
	}
	return &s, nil
}

func optionalBool(in protocol.Object, name string, def bool) (bool, error) {
	b, err := optionalBoolPtr(in, name)
	if err != nil || b == nil {
		return def, err
	}
	return *b, nil
}

func optionalBoolPtr(in protocol.Object, name string) (*bool, error) {
	raw, ok := in[name]
	if !ok || raw == nil {
		return nil, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a boolean", driver.ErrInvalidArgument, name)
	}
	return &b, nil
}

func optionalNumber(in protocol.Object, name string) (*float64, error) {
	raw, ok := in[name]
	if !ok || raw == nil {
		return nil, nil
	}

	var f float64
	switch v := raw.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number: %s", driver.ErrInvalidArgument, name, v)
		}
		f = parsed
	case float64:
		f = v
	default:
		return nil, fmt.Errorf("%w: %s must be a number", driver.ErrInvalidArgument, name)
	}
	return &f, nil
}

func integer(in protocol.Object, name string) (int, bool, error) {
	f, err := optionalNumber(in, name)
	if err != nil || f == nil {
		return 0, false, err
	}
	if *f != math.Trunc(*f) || *f > math.MaxInt32 || *f < math.MinInt32 {
		return 0, true, fmt.Errorf("%w: %s must be an integer", driver.ErrInvalidArgument, name)
	}
	return int(*f), true, nil
}
