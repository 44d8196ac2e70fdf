package https

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/devsim/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// connectionFor points a plain-http connection at the test server.
func connectionFor(t *testing.T, server *httptest.Server, config map[string]any, auth map[string]string) *models.Connection {
	t.Helper()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	if config == nil {
		config = map[string]any{}
	}

	config["ssl"] = false

	return &models.Connection{
		ID:       "c1",
		Protocol: models.ProtocolHTTPS,
		Host:     u.Hostname(),
		Port:     port,
		Endpoint: "ingest",
		Config:   config,
		Auth:     auth,
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		conn *models.Connection
		want string
	}{
		{"default https", &models.Connection{Host: "api.example.com", Endpoint: "/v1/data"}, "https://api.example.com/v1/data"},
		{"omits 443", &models.Connection{Host: "api.example.com", Port: 443}, "https://api.example.com"},
		{"omits 80", &models.Connection{Host: "api.example.com", Port: 80, Config: map[string]any{"ssl": false}}, "http://api.example.com"},
		{"keeps custom port", &models.Connection{Host: "h", Port: 8443, Endpoint: "in"}, "https://h:8443/in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(tt.conn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_Send_Success(t *testing.T) {
	var (
		gotMethod string
		gotBody   string
		gotHeader http.Header
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	conn := connectionFor(t, server, map[string]any{
		"auth_type": AuthToken,
		"headers":   map[string]any{"X-Fleet": "north"},
	}, map[string]string{"token": "secret"})

	client, err := New(conn, testLogger())
	require.NoError(t, err)

	ok, detail := client.Send(context.Background(), []byte(`{"a":1}`))

	assert.True(t, ok)
	assert.Equal(t, `{"ok":true}`, detail)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", gotHeader.Get("Authorization"))
	assert.Equal(t, "north", gotHeader.Get("X-Fleet"))
}

func TestClient_Send_Non2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(connectionFor(t, server, nil, nil), testLogger())
	require.NoError(t, err)

	ok, detail := client.Send(context.Background(), []byte(`{}`))

	assert.False(t, ok)
	assert.Contains(t, detail, "502")
}

func TestClient_Send_APIKeyInQuery(t *testing.T) {
	var gotQuery url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conn := connectionFor(t, server, map[string]any{"auth_type": AuthAPIKey, "method": "put"},
		map[string]string{"key": "k1", "location": "query"})

	client, err := New(conn, testLogger())
	require.NoError(t, err)

	ok, detail := client.Send(context.Background(), []byte(`{}`))

	assert.True(t, ok)
	assert.Equal(t, "200", detail)
	assert.Equal(t, "k1", gotQuery.Get("api_key"))
}

func TestClient_Send_BasicAuth(t *testing.T) {
	var user, pass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	conn := connectionFor(t, server, map[string]any{"auth_type": AuthUserPass},
		map[string]string{"username": "u", "password": "p"})

	client, err := New(conn, testLogger())
	require.NoError(t, err)

	ok, _ := client.Send(context.Background(), []byte(`{}`))

	assert.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestClient_Send_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	conn := connectionFor(t, server, nil, nil)
	server.Close()

	client, err := New(conn, testLogger())
	require.NoError(t, err)

	ok, detail := client.Send(context.Background(), []byte(`{}`))

	assert.False(t, ok)
	assert.Contains(t, detail, "http request failed")
}
