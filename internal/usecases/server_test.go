package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// MockToolCatalog is a fixed tool list
type MockToolCatalog []*types.Tool

func (m MockToolCatalog) Tools() []*types.Tool { return m }

// MockSessionRepository is a mock implementation of domain.SessionRepository
type MockSessionRepository struct {
	sessions []domain.Session
}

func (m *MockSessionRepository) GetSession(ctx context.Context, id string) (domain.Session, error) {
	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Session{}, domain.NewSessionNotFoundError(id)
}

func (m *MockSessionRepository) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return m.sessions, nil
}

func (m *MockSessionRepository) BeginLoad(ctx context.Context, id, emulatorType string) error {
	return nil
}

func (m *MockSessionRepository) CompleteLoad(ctx context.Context, id string, loadErr error) (domain.Session, error) {
	return m.GetSession(ctx, id)
}

func newTestService() (*ServerService, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewServerService(ServerConfig{
		Name:    "emulator-mcp",
		Version: "1.2.3",
		Tools: MockToolCatalog{
			tools.NewTool("load_emulator"),
			tools.NewTool("upload_rom"),
		},
		Sessions: &MockSessionRepository{sessions: []domain.Session{{ID: "a"}, {ID: "b"}}},
		Now:      func() time.Time { return now },
	})
	return svc, &now
}

func TestServerInfo(t *testing.T) {
	svc, _ := newTestService()
	name, version := svc.ServerInfo()
	assert.Equal(t, "emulator-mcp", name)
	assert.Equal(t, "1.2.3", version)
}

func TestGetTool(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tool, err := svc.GetTool(ctx, "upload_rom")
	require.NoError(t, err)
	assert.Equal(t, "upload_rom", tool.Name)

	_, err = svc.GetTool(ctx, "defrag")
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestStatus(t *testing.T) {
	svc, now := newTestService()
	*now = now.Add(90 * time.Second)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{
		Name:     "emulator-mcp",
		Version:  "1.2.3",
		Tools:    2,
		Sessions: 2,
		Uptime:   90,
	}, status)
}

func TestEmptyService(t *testing.T) {
	svc := NewServerService(ServerConfig{})
	ctx := context.Background()

	list, err := svc.ListTools(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
}

func TestCategories(t *testing.T) {
	svc, _ := newTestService()
	categories := svc.Categories()
	require.NotEmpty(t, categories)

	byName := map[string]CategoryInfo{}
	for _, c := range categories {
		byName[c.Category] = c
	}

	nes := byName["cart-8bit"]
	assert.Equal(t, int64(512*1024), nes.MaxSize)
	assert.Equal(t, []string{".rom"}, nes.Extensions)
	assert.Equal(t, []string{"4e45531a"}, nes.Signature)
	assert.Equal(t, 0, nes.Offset)

	assert.Empty(t, byName["cart-16bit"].Signature)
	assert.Equal(t, 0x8001, byName["disk-image"].Offset)
}
