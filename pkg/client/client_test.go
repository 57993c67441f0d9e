package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/handler"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/server"
	"github.com/FreePeak/emulator-mcp-server/internal/testutil"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
)

const wait = 2 * time.Second

type fakeVerifier struct {
	mu     sync.Mutex
	tokens map[string]domain.TokenClaims
}

func (v *fakeVerifier) Verify(ctx context.Context, token string) (domain.TokenClaims, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	claims, ok := v.tokens[token]
	if !ok {
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}

// countingTokens hands out tokens in order, moving on only after Invalidate.
type countingTokens struct {
	mu      sync.Mutex
	tokens  []string
	next    int
	cached  string
	fetches int
}

func (s *countingTokens) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == "" {
		i := s.next
		if i >= len(s.tokens) {
			i = len(s.tokens) - 1
		}
		s.cached = s.tokens[i]
		s.next++
		s.fetches++
	}
	return s.cached, nil
}

func (s *countingTokens) Invalidate() {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()
}

func (s *countingTokens) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type harness struct {
	sched    *manualScheduler
	dialer   *testutil.PipeDialer
	verifier *fakeVerifier
	tokens   *countingTokens
	release  chan struct{}
	refuse   atomic.Bool

	mu  sync.Mutex
	now time.Time
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advanceServer(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

// grant makes token valid for ttl on the server clock.
func (h *harness) grant(token string, ttl time.Duration) {
	h.verifier.mu.Lock()
	defer h.verifier.mu.Unlock()
	now := h.clock()
	h.verifier.tokens[token] = domain.TokenClaims{
		Token:     token,
		Subject:   "alice",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// revoke makes token unknown to the server.
func (h *harness) revoke(token string) {
	h.verifier.mu.Lock()
	defer h.verifier.mu.Unlock()
	delete(h.verifier.tokens, token)
}

func newHarness(t *testing.T, tokens ...string) *harness {
	t.Helper()
	h := &harness{
		sched:    newManualScheduler(),
		verifier: &fakeVerifier{tokens: make(map[string]domain.TokenClaims)},
		tokens:   &countingTokens{tokens: tokens},
		release:  make(chan struct{}),
		now:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	echo := handler.Func{
		Tool: tools.NewTool("echo", tools.WithString("message", tools.Required())),
		Fn: func(ctx context.Context, call domain.ToolCall) (interface{}, error) {
			var p map[string]interface{}
			_ = json.Unmarshal(call.Params, &p)
			return p, nil
		},
	}
	block := handler.Func{
		Tool: tools.NewTool("block"),
		Fn: func(ctx context.Context, call domain.ToolCall) (interface{}, error) {
			select {
			case <-h.release:
			case <-ctx.Done():
			}
			return map[string]bool{"done": true}, nil
		},
	}
	registry, err := server.NewRegistry(echo, block)
	require.NoError(t, err)

	sessions := server.NewSessionManager(server.WithSessionClock(h.clock))
	srv := server.NewServer(registry, sessions, h.verifier).WithClock(h.clock)

	ctx, cancel := context.WithCancel(context.Background())
	h.dialer = &testutil.PipeDialer{
		Accept: func(conn *testutil.PipeConn) { _ = srv.ServeConn(ctx, conn) },
		Fail: func(attempt int) error {
			if h.refuse.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	}

	t.Cleanup(func() {
		select {
		case <-h.release:
		default:
			close(h.release)
		}
		cancel()
	})
	return h
}

func (h *harness) client(backoff Backoff) *Client {
	return New(Config{
		URL:         "pipe://server",
		Dialer:      h.dialer,
		Tokens:      h.tokens,
		Backoff:     backoff,
		CallTimeout: 10 * time.Second,
		Scheduler:   h.sched,
		EventBuffer: 256,
	})
}

func nextEvent(t *testing.T, c *Client, typ EventType) Event {
	t.Helper()
	timeout := time.After(wait)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return Event{}
		}
	}
}

func TestConnectAndCall(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	c := h.client(DefaultBackoff())
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, StateReady, c.State())
	assert.NotEmpty(t, c.SessionID())

	assert.Equal(t, StateConnecting, nextEvent(t, c, EventStateChanged).State)
	assert.Equal(t, StateAuthenticating, nextEvent(t, c, EventStateChanged).State)
	assert.Equal(t, StateReady, nextEvent(t, c, EventStateChanged).State)

	result, err := c.Call(ctx, "echo", map[string]string{"message": "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello"}`, string(result))

	ev := nextEvent(t, c, EventToolResult)
	assert.Equal(t, "echo", ev.Tool)
}

func TestCallRequiresReady(t *testing.T) {
	h := newHarness(t, "t1")
	c := h.client(DefaultBackoff())

	_, err := c.Call(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.True(t, mcperrors.IsConnection(err))
}

func TestCallErrorResults(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	c := h.client(DefaultBackoff())
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.Call(ctx, "defrag", nil)
	assert.True(t, mcperrors.IsNotFound(err))

	_, err = c.Call(ctx, "echo", map[string]string{})
	var mcpErr *mcperrors.MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, mcperrors.ErrorTypeValidation, mcpErr.Type)
	assert.Equal(t, "message", mcpErr.Field)
}

func TestConcurrentCalls(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	c := h.client(DefaultBackoff())
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := string(rune('a' + i))
			result, err := c.Call(ctx, "echo", map[string]string{"message": msg})
			if assert.NoError(t, err) {
				assert.JSONEq(t, `{"message":"`+msg+`"}`, string(result))
			}
		}(i)
	}
	wg.Wait()
}

func TestCallTimeoutDropsLateResponse(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	c := h.client(DefaultBackoff())
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	pending, err := c.Send("block", nil, WithTimeout(time.Second))
	require.NoError(t, err)

	h.sched.Advance(time.Second)
	_, err = pending.Wait(context.Background())
	assert.True(t, mcperrors.IsTimeout(err))

	close(h.release)
	ev := nextEvent(t, c, EventToolResult)
	assert.Equal(t, pending.RequestID, ev.RequestID)
	assert.Equal(t, 0, c.correlator.Pending())
	assert.Equal(t, StateReady, c.State())
}

func TestConnectionLossFailsPendingAndReconnects(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	backoff := Backoff{BaseDelay: 100 * time.Millisecond, MaxAttempts: 3}
	c := h.client(backoff)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))
	firstSession := c.SessionID()

	pending, err := c.Send("block", nil)
	require.NoError(t, err)

	require.NoError(t, h.dialer.ServerConns()[0].Close())

	_, err = pending.Wait(context.Background())
	assert.ErrorIs(t, err, ErrConnectionLost)

	ev := nextEvent(t, c, EventReconnectScheduled)
	assert.Equal(t, 1, ev.Attempt)
	assert.Equal(t, 100*time.Millisecond, ev.Delay)

	h.sched.Advance(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))
	assert.Equal(t, 2, h.dialer.Dials())
	assert.NotEqual(t, firstSession, c.SessionID())
}

func TestReconnectGivesUp(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	h.refuse.Store(true)
	backoff := Backoff{BaseDelay: 100 * time.Millisecond, MaxAttempts: 3}
	c := h.client(backoff)
	defer c.Close()

	err := c.Connect(context.Background())
	assert.True(t, mcperrors.IsConnection(err))

	var last time.Duration
	for attempt := 1; attempt <= backoff.MaxAttempts; attempt++ {
		ev := nextEvent(t, c, EventReconnectScheduled)
		assert.Equal(t, attempt, ev.Attempt)
		assert.Greater(t, ev.Delay, last)
		last = ev.Delay
		h.sched.Advance(ev.Delay)
	}

	ev := nextEvent(t, c, EventGaveUp)
	assert.ErrorIs(t, ev.Err, ErrGaveUp)
	assert.Equal(t, 1+backoff.MaxAttempts, h.dialer.Dials())

	h.sched.Advance(time.Hour)
	assert.Equal(t, 1+backoff.MaxAttempts, h.dialer.Dials())
	assert.ErrorIs(t, c.WaitReady(context.Background()), ErrGaveUp)

	// An explicit connect starts over.
	h.refuse.Store(false)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 2+backoff.MaxAttempts, h.dialer.Dials())
}

func TestAuthRetryOnce(t *testing.T) {
	h := newHarness(t, "t1", "t2")
	h.grant("t1", time.Minute)
	h.grant("t2", time.Hour)
	c := h.client(DefaultBackoff())
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	sessionID := c.SessionID()

	h.advanceServer(2 * time.Minute)

	result, err := c.Call(ctx, "echo", map[string]string{"message": "again"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"again"}`, string(result))

	assert.Equal(t, 2, h.tokens.Fetches())
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, sessionID, c.SessionID())
}

func TestAuthRetryDoesNotLoop(t *testing.T) {
	h := newHarness(t, "t1", "t2")
	h.grant("t1", time.Minute)
	h.grant("t2", time.Minute)
	c := h.client(DefaultBackoff())
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	h.advanceServer(2 * time.Minute)

	_, err := c.Call(ctx, "echo", map[string]string{"message": "again"})
	assert.True(t, mcperrors.IsAuth(err))
	assert.Equal(t, 2, h.tokens.Fetches())
}

func TestConnectRejectedToken(t *testing.T) {
	h := newHarness(t, "bogus")
	c := h.client(DefaultBackoff())
	defer c.Close()

	err := c.Connect(context.Background())
	assert.True(t, mcperrors.IsAuth(err))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 2, h.tokens.Fetches())
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 1, nextEvent(t, c, EventReconnectScheduled).Attempt)
}

func TestConnectReissuesStaleToken(t *testing.T) {
	h := newHarness(t, "stale", "fresh")
	h.grant("fresh", time.Hour)
	c := h.client(DefaultBackoff())
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 2, h.tokens.Fetches())
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestReconnectReissuesRevokedToken(t *testing.T) {
	h := newHarness(t, "t1", "t2")
	h.grant("t1", time.Hour)
	backoff := Backoff{BaseDelay: 100 * time.Millisecond, MaxAttempts: 1}
	c := h.client(backoff)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	h.revoke("t1")
	h.grant("t2", time.Hour)
	require.NoError(t, h.dialer.ServerConns()[0].Close())

	ev := nextEvent(t, c, EventReconnectScheduled)
	h.sched.Advance(ev.Delay)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))
	assert.Equal(t, 2, h.tokens.Fetches())
	assert.Equal(t, 2, h.dialer.Dials())
}

func TestClose(t *testing.T) {
	h := newHarness(t, "t1")
	h.grant("t1", time.Hour)
	c := h.client(DefaultBackoff())
	require.NoError(t, c.Connect(context.Background()))

	pending, err := c.Send("block", nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, err = pending.Wait(context.Background())
	assert.True(t, mcperrors.IsConnection(err))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 0, h.sched.Active())

	_, err = c.Call(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
}
