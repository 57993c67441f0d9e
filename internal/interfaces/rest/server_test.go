package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/handler"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/auth"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/server"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/wsconn"
	"github.com/FreePeak/emulator-mcp-server/internal/usecases"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
)

const operatorCookie = "cookie-123"

type fixture struct {
	http   *httptest.Server
	mcp    *MCPServer
	issuer *auth.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	echo := handler.Func{
		Tool: tools.NewTool("echo",
			tools.WithDescription("Echo a message"),
			tools.WithString("message", tools.Required()),
		),
		Fn: func(ctx context.Context, call domain.ToolCall) (interface{}, error) {
			var p struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(call.Params, &p)
			return map[string]string{"message": p.Message, "sessionId": call.Session.ID}, nil
		},
	}
	registry, err := server.NewRegistry(echo)
	require.NoError(t, err)

	issuer := auth.NewIssuer(auth.NewMemoryTokenStore())
	sessions := server.NewSessionManager()
	conns := server.NewServer(registry, sessions, issuer)

	service := usecases.NewServerService(usecases.ServerConfig{
		Name:     "emulator-mcp",
		Version:  "test",
		Tools:    registry,
		Sessions: sessions,
	})
	web := CookieSessions{Operators: map[string]string{operatorCookie: "alice"}}

	mcp := NewMCPServer(service, issuer, conns, web, "127.0.0.1:0")
	srv := httptest.NewServer(mcp.Handler())
	t.Cleanup(func() {
		_ = mcp.Stop(context.Background())
		_ = conns.Shutdown(context.Background())
		srv.Close()
	})

	return &fixture{http: srv, mcp: mcp, issuer: issuer}
}

func (f *fixture) requestToken(t *testing.T, body string, cookie string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.http.URL+"/auth/token", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: DefaultWebSessionCookie, Value: cookie})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestIssueToken(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		cookie string
		status int
	}{
		{"privileged operator", `{"sessionBased":true}`, operatorCookie, http.StatusOK},
		{"malformed body", `{"sessionBased":`, operatorCookie, http.StatusBadRequest},
		{"not session based", `{"sessionBased":false}`, operatorCookie, http.StatusBadRequest},
		{"missing flag", `{}`, operatorCookie, http.StatusBadRequest},
		{"no web session", `{"sessionBased":true}`, "", http.StatusUnauthorized},
		{"unknown web session", `{"sessionBased":true}`, "stranger", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.requestToken(t, tt.body, tt.cookie)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				return
			}

			var body TokenResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Token)
			assert.True(t, body.ExpiresAt.After(time.Now()))

			claims, err := f.issuer.Verify(context.Background(), body.Token)
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
		})
	}
}

func TestIntrospection(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status string          `json:"status"`
		Server usecases.Status `json:"server"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Server.Tools)

	resp, err = http.Get(f.http.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list struct {
		Tools []struct {
			Name       string `json:"name"`
			Parameters []struct {
				Name     string `json:"name"`
				Required bool   `json:"required"`
			} `json:"parameters"`
		} `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "echo", list.Tools[0].Name)
	assert.True(t, list.Tools[0].Parameters[0].Required)

	resp, err = http.Get(f.http.URL + "/tools/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(f.http.URL + "/categories")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketSession(t *testing.T) {
	f := newFixture(t)

	resp := f.requestToken(t, `{"sessionBased":true}`, operatorCookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))

	dialer := &wsconn.Dialer{}
	conn, err := dialer.Dial(context.Background(), "ws"+strings.TrimPrefix(f.http.URL, "http")+"/ws")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(shared.NewAuthenticateFrame(token.Token)))
	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, shared.FrameAuthenticated, frame.Type)
	sessionID := frame.SessionID
	assert.NotEmpty(t, sessionID)

	call, err := shared.NewToolCallFrame("echo", map[string]string{"message": "hi"}, "req-1")
	require.NoError(t, err)
	require.NoError(t, conn.WriteFrame(call))

	frame, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, shared.FrameToolResult, frame.Type)
	assert.Equal(t, "req-1", frame.RequestID)
	assert.JSONEq(t, `{"message":"hi","sessionId":"`+sessionID+`"}`, string(frame.Result))
}
