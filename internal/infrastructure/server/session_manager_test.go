package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

func TestSessionLifecycle(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewSessionManager(WithSessionClock(func() time.Time { return now }))
	ctx := context.Background()

	session := m.Open(ctx, domain.TokenClaims{Subject: "op", ExpiresAt: now.Add(time.Minute)})
	assert.NotEmpty(t, session.ID)
	assert.True(t, session.Authenticated)
	assert.Equal(t, domain.SessionReady, session.Status)
	assert.Equal(t, now, session.CreatedAt)

	copySession, err := m.GetSession(ctx, session.ID)
	require.NoError(t, err)
	copySession.Status = domain.SessionClosed
	again, _ := m.GetSession(ctx, session.ID)
	assert.Equal(t, domain.SessionReady, again.Status)

	require.NoError(t, m.BeginLoad(ctx, session.ID, "cart-8bit"))
	loading, _ := m.GetSession(ctx, session.ID)
	assert.Equal(t, domain.SessionLoading, loading.Status)
	assert.Equal(t, "cart-8bit", loading.EmulatorType)

	ready, err := m.CompleteLoad(ctx, session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionReady, ready.Status)
	assert.Equal(t, "cart-8bit", ready.EmulatorType)

	require.NoError(t, m.BeginLoad(ctx, session.ID, "handheld"))
	failed, err := m.CompleteLoad(ctx, session.ID, errors.New("bad asset"))
	require.NoError(t, err)
	assert.Empty(t, failed.EmulatorType)

	m.Deauthenticate(ctx, session.ID)
	deauth, _ := m.GetSession(ctx, session.ID)
	assert.False(t, deauth.Authenticated)

	reauth, err := m.Reauthenticate(ctx, session.ID, domain.TokenClaims{Subject: "op", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, reauth.Authenticated)
	assert.Equal(t, session.ID, reauth.ID)

	m.Close(ctx, session.ID)
	_, err = m.GetSession(ctx, session.ID)
	assert.True(t, mcperrors.IsNotFound(err))
	assert.Equal(t, 0, m.Count())

	assert.True(t, mcperrors.IsNotFound(m.BeginLoad(ctx, "missing", "x")))
	_, err = m.Reauthenticate(ctx, "missing", domain.TokenClaims{})
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestSessionIDsAreUnique(t *testing.T) {
	m := NewSessionManager()
	seen := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Open(context.Background(), domain.TokenClaims{})
			mu.Lock()
			seen[s.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
	assert.Equal(t, 50, m.Count())
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var evicted []string
	m := NewSessionManager(
		WithIdleTTL(time.Minute),
		WithSessionClock(func() time.Time { return now }),
		WithEvictHandler(func(id string) { evicted = append(evicted, id) }),
	)
	ctx := context.Background()

	idle := m.Open(ctx, domain.TokenClaims{})
	now = now.Add(45 * time.Second)
	active := m.Open(ctx, domain.TokenClaims{})
	now = now.Add(30 * time.Second)
	m.Touch(active.ID)

	assert.Equal(t, []string{idle.ID}, m.Sweep())
	assert.Equal(t, []string{idle.ID}, evicted)

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, active.ID, sessions[0].ID)
}

func TestCloseHandler(t *testing.T) {
	var closed []string
	m := NewSessionManager(WithCloseHandler(func(id string) { closed = append(closed, id) }))
	session := m.Open(context.Background(), domain.TokenClaims{})

	m.Close(context.Background(), session.ID)
	m.Close(context.Background(), session.ID)
	assert.Equal(t, []string{session.ID}, closed)
}

func TestSweepDisabled(t *testing.T) {
	m := NewSessionManager(WithIdleTTL(0))
	m.Open(context.Background(), domain.TokenClaims{})
	assert.Nil(t, m.Sweep())
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	m := NewSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
