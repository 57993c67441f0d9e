package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
)

// ErrClosed is returned by a Conn once it has been closed by either side.
var ErrClosed = errors.New("connection closed")

// ErrMalformedFrame wraps frames that arrived intact but failed to decode.
var ErrMalformedFrame = errors.New("malformed frame")

// Conn is one persistent bidirectional frame stream.
// ReadFrame must only be called from a single goroutine; WriteFrame is safe for
// concurrent use. Close unblocks a pending ReadFrame.
type Conn interface {
	// ReadFrame blocks until the next frame arrives. A decode failure is
	// reported as ErrMalformedFrame and the connection stays usable.
	ReadFrame() (shared.Frame, error)

	// WriteFrame sends a frame.
	WriteFrame(frame shared.Frame) error

	// Close closes the connection.
	Close() error
}

// Dialer opens client connections.
type Dialer interface {
	// Dial connects to the server at url.
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// IsMalformed reports whether err is a recoverable decode failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}
