// Package wsconn carries frames over gorilla websockets.
package wsconn

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/transport"
)

// DefaultWriteTimeout bounds a single outbound message.
const DefaultWriteTimeout = 10 * time.Second

// DefaultReadLimit admits the largest upload any category accepts.
var DefaultReadLimit = resource.MaxUploadFrame()

// Options tunes a connection.
type Options struct {
	// ReadLimit bounds a single inbound message. Uploads travel inline as base64,
	// so anything below resource.MaxUploadFrame cuts off valid uploads.
	ReadLimit    int64
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Conn adapts a websocket to transport.Conn.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Conn = (*Conn)(nil)

// New wraps an established websocket.
func New(ws *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	ws.SetReadLimit(opts.ReadLimit)
	return &Conn{ws: ws, opts: opts, closed: make(chan struct{})}
}

// ReadFrame implements transport.Conn.
func (c *Conn) ReadFrame() (shared.Frame, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.closed:
			return shared.Frame{}, transport.ErrClosed
		default:
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return shared.Frame{}, transport.ErrClosed
		}
		return shared.Frame{}, errors.Wrap(err, "read frame")
	}
	if msgType != websocket.TextMessage {
		return shared.Frame{}, errors.Wrap(transport.ErrMalformedFrame, "binary message")
	}

	frame, err := shared.DecodeFrame(data)
	if err != nil {
		return shared.Frame{}, errors.Wrap(transport.ErrMalformedFrame, err.Error())
	}
	return frame, nil
}

// WriteFrame implements transport.Conn.
func (c *Conn) WriteFrame(frame shared.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := c.ws.WriteJSON(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// Close sends a close message and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Upgrader accepts websocket connections on an HTTP endpoint.
type Upgrader struct {
	upgrader websocket.Upgrader
	opts     Options
}

// NewUpgrader creates an upgrader. Origin is not checked: connections are
// admitted by bearer token, not by cookies.
func NewUpgrader(opts Options) *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts: opts,
	}
}

// Upgrade switches the request to the websocket protocol.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "upgrade")
	}
	return New(ws, u.opts), nil
}

// Dialer opens client websocket connections.
type Dialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	Options          Options
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return New(ws, d.Options), nil
}
