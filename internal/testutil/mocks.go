package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/transport"
)

// PipeConn is an in-memory transport.Conn. Frames go through a JSON round trip
// so tests observe the same encoding as the websocket transport.
type PipeConn struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	peer   *PipeConn
	once   sync.Once
}

// Pipe returns two connected in-memory connections.
func Pipe() (*PipeConn, *PipeConn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &PipeConn{in: ba, out: ab, closed: make(chan struct{})}
	b := &PipeConn{in: ab, out: ba, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// ReadFrame implements transport.Conn. Frames the peer wrote before closing
// are still delivered.
func (p *PipeConn) ReadFrame() (shared.Frame, error) {
	select {
	case <-p.closed:
		return shared.Frame{}, transport.ErrClosed
	case data := <-p.in:
		return decode(data)
	default:
	}

	select {
	case data := <-p.in:
		return decode(data)
	case <-p.closed:
		return shared.Frame{}, transport.ErrClosed
	case <-p.peer.closed:
		select {
		case data := <-p.in:
			return decode(data)
		default:
			return shared.Frame{}, transport.ErrClosed
		}
	}
}

func decode(data []byte) (shared.Frame, error) {
	frame, err := shared.DecodeFrame(data)
	if err != nil {
		return shared.Frame{}, errors.Wrap(transport.ErrMalformedFrame, err.Error())
	}
	return frame, nil
}

// WriteFrame implements transport.Conn.
func (p *PipeConn) WriteFrame(frame shared.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return p.WriteRaw(data)
}

// WriteRaw sends bytes as-is, which lets tests inject malformed frames.
func (p *PipeConn) WriteRaw(data []byte) error {
	select {
	case <-p.closed:
		return transport.ErrClosed
	case <-p.peer.closed:
		return transport.ErrClosed
	default:
	}

	select {
	case p.out <- data:
	case <-p.closed:
		return transport.ErrClosed
	case <-p.peer.closed:
		return transport.ErrClosed
	}
	return nil
}

// Close implements transport.Conn.
func (p *PipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Expect reads the next frame or fails after timeout.
func (p *PipeConn) Expect(timeout time.Duration) (shared.Frame, error) {
	type result struct {
		frame shared.Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := p.ReadFrame()
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-time.After(timeout):
		return shared.Frame{}, errors.New("timed out waiting for frame")
	}
}

// PipeDialer hands out the client end of a fresh pipe on every dial and
// passes the server end to Accept.
type PipeDialer struct {
	Accept func(server *PipeConn)
	// Fail, when set, is consulted before each dial; a non-nil error refuses it.
	Fail func(attempt int) error

	mu    sync.Mutex
	dials int
	conns []*PipeConn
}

// Dial implements transport.Dialer.
func (d *PipeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.dials++
	attempt := d.dials
	d.mu.Unlock()

	if d.Fail != nil {
		if err := d.Fail(attempt); err != nil {
			return nil, err
		}
	}

	client, server := Pipe()
	d.mu.Lock()
	d.conns = append(d.conns, server)
	d.mu.Unlock()
	if d.Accept != nil {
		go d.Accept(server)
	}
	return client, nil
}

// Dials returns how many times Dial was called.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// ServerConns returns the server ends handed out so far.
func (d *PipeDialer) ServerConns() []*PipeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*PipeConn(nil), d.conns...)
}
