package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

// DefaultCallTimeout bounds every call that does not set its own timeout.
const DefaultCallTimeout = 10 * time.Second

// ErrDuplicateRequestID is returned when an identifier is still outstanding.
var ErrDuplicateRequestID = errors.New("request id already outstanding")

// Response is the terminal outcome of a pending call.
type Response struct {
	Result json.RawMessage
	Err    error
}

// PendingCall is an outstanding tool call awaiting its response.
type PendingCall struct {
	RequestID string
	Tool      string
	IssuedAt  time.Time

	done  chan Response
	timer Timer
}

// Done returns a channel that receives exactly one Response.
func (p *PendingCall) Done() <-chan Response {
	return p.done
}

// Wait blocks until the call completes or ctx ends. Abandoning the wait does
// not cancel the call; its response is dropped when it arrives or times out.
func (p *PendingCall) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case resp := <-p.done:
		return resp.Result, resp.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Correlator matches responses to outstanding calls by request identifier.
// Every registered call ends exactly once: resolved, rejected, or timed out.
type Correlator struct {
	sched   Scheduler
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*PendingCall
}

// NewCorrelator creates a correlator. A non-positive timeout selects DefaultCallTimeout.
func NewCorrelator(sched Scheduler, timeout time.Duration) *Correlator {
	if sched == nil {
		sched = SystemScheduler{}
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Correlator{
		sched:   sched,
		timeout: timeout,
		pending: make(map[string]*PendingCall),
	}
}

// NextID returns an identifier that is not currently outstanding. It joins the
// current time with random bits so concurrent callers never collide.
func (c *Correlator) NextID() string {
	for {
		id := strconv.FormatInt(c.sched.Now().UnixNano(), 36) + "-" + uuid.NewString()[:8]
		c.mu.Lock()
		_, taken := c.pending[id]
		c.mu.Unlock()
		if !taken {
			return id
		}
	}
}

// Register stores a pending call and arms its timeout. A non-positive timeout
// uses the correlator default.
func (c *Correlator) Register(requestID, tool string, timeout time.Duration) (*PendingCall, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	call := &PendingCall{
		RequestID: requestID,
		Tool:      tool,
		IssuedAt:  c.sched.Now(),
		done:      make(chan Response, 1),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[requestID]; exists {
		return nil, errors.Wrap(ErrDuplicateRequestID, requestID)
	}
	c.pending[requestID] = call
	call.timer = c.sched.AfterFunc(timeout, func() {
		c.finish(requestID, Response{
			Err: mcperrors.NewTimeoutError(fmt.Sprintf("%s timed out after %s", tool, timeout)),
		})
	})
	return call, nil
}

// Resolve completes a call with its result. Unknown identifiers are ignored.
func (c *Correlator) Resolve(requestID string, result json.RawMessage) bool {
	return c.finish(requestID, Response{Result: result})
}

// Reject completes a call with an error. Unknown identifiers are ignored.
func (c *Correlator) Reject(requestID string, err error) bool {
	return c.finish(requestID, Response{Err: err})
}

// FailAll rejects every outstanding call with err and returns how many there were.
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	calls := c.pending
	c.pending = make(map[string]*PendingCall)
	c.mu.Unlock()

	for _, call := range calls {
		call.timer.Stop()
		call.done <- Response{Err: err}
	}
	return len(calls)
}

// Pending returns the number of outstanding calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) finish(requestID string, resp Response) bool {
	c.mu.Lock()
	call, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if call.timer != nil {
		call.timer.Stop()
	}
	call.done <- resp
	return true
}
