package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
)

var (
	// ErrSessionLost ends the current session; the supervisor reconnects.
	ErrSessionLost = errors.New("telemetry: session lost")

	ErrDecode   = errors.New("telemetry: decode failed")
	ErrEndpoint = errors.New("telemetry: invalid endpoint")
)

// Session is one established connection to the plant server.
type Session interface {
	// Read returns one value per node, in request order.
	Read(ctx context.Context, nodes []NodeID) ([]Value, error)
	Write(ctx context.Context, values []WriteValue) error
	Close(ctx context.Context) error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Session, error) {
	return f(ctx, endpoint)
}

// IsSessionFatal reports whether err means the session cannot be used again.
func IsSessionFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionLost) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && !opErr.Timeout()
}
