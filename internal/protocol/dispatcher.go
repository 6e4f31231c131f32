// internal/protocol/dispatcher.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"serial-gateway/internal/utils"
)

// Conn identifies the client connection a request arrived on
type Conn struct {
	ID         string
	RemoteAddr string
	Logger     *zap.Logger
}

// Handler executes one operation. in is the operation's sub-request; the
// handler adds its result fields to out.
type Handler func(ctx context.Context, conn *Conn, in Object, out Object) error

// Operation binds an operation name to its handler
type Operation struct {
	Name   string
	Handle Handler
}

// Classifier maps an operation failure to its error code. Failures it
// does not recognise terminate the connection.
type Classifier func(err error) (code string, ok bool)

// ProtocolError reports a request that cannot be processed at all
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Dispatcher runs the request loop of a connection. Operations are
// executed in table order, whatever order the request names them in.
type Dispatcher struct {
	operations []Operation
	classify   Classifier
	onClose    []func(conn *Conn)
}

// NewDispatcher creates a dispatcher over a fixed operation table
func NewDispatcher(operations []Operation, classify Classifier) *Dispatcher {
	return &Dispatcher{
		operations: operations,
		classify:   classify,
	}
}

// OnClose registers fn to run when a connection's loop ends, whatever the reason
func (d *Dispatcher) OnClose(fn func(conn *Conn)) {
	d.onClose = append(d.onClose, fn)
}

// Serve reads requests from t and writes one response per request until
// the peer ends the stream (nil is returned) or the connection fails.
func (d *Dispatcher) Serve(ctx context.Context, t Transport, conn *Conn) error {
	defer func() {
		for _, fn := range d.onClose {
			fn(conn)
		}
	}()

	logger := conn.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	decoder := NewDecoder(t)
	encoder := NewEncoder(t)

	for {
		request, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("Connection closed by peer")
				return nil
			}
			var perr *ProtocolError
			if errors.As(err, &perr) {
				return err
			}
			return &ProtocolError{Reason: "malformed request", Err: err}
		}

		response, err := d.dispatch(ctx, conn, request)
		if err != nil {
			return err
		}

		if err := encoder.Encode(response); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, conn *Conn, request Object) (Object, error) {
	response := make(Object, len(request))

	for _, op := range d.operations {
		raw, present := request[op.Name]
		if !present || raw == nil {
			continue
		}

		out := make(Object)
		response[op.Name] = out

		in, ok := raw.(Object)
		if !ok {
			out["error"] = utils.OperationError(utils.CodeInvalidArgument,
				fmt.Errorf("%s request must be an object", op.Name))
			continue
		}

		if sequence, ok := in["sequence"]; ok {
			out["sequence"] = sequence
		}

		if err := op.Handle(ctx, conn, in, out); err != nil {
			code, ok := d.classify(err)
			if !ok {
				return nil, fmt.Errorf("%s failed: %w", op.Name, err)
			}
			if conn.Logger != nil {
				conn.Logger.Debug("Operation failed",
					zap.String("operation", op.Name),
					zap.String("code", code),
					zap.Error(err),
				)
			}
			out["error"] = utils.OperationError(code, err)
		}
	}

	return response, nil
}
