// ABOUTME: Tests for the control facade and its HTTP JSON API.
// ABOUTME: Covers status, module listing, toggle idempotence, logs, and shutdown.

package control

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bothive/bothive/internal/db"
	"github.com/bothive/bothive/internal/logbuf"
	"github.com/bothive/bothive/internal/registry"
	"github.com/bothive/bothive/internal/settings"
)

type memBackend struct {
	doc settings.Document
}

func (b *memBackend) Load() (settings.Document, error) {
	if b.doc == nil {
		return settings.Document{}, nil
	}
	return b.doc.Clone(), nil
}

func (b *memBackend) Save(doc settings.Document) error {
	b.doc = doc.Clone()
	return nil
}

type fixture struct {
	facade   *Facade
	server   *httptest.Server
	registry *registry.Registry
	logs     *logbuf.Buffer
	dir      string
	stopped  bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	store, err := settings.NewStore(&memBackend{}, logger)
	require.NoError(t, err)
	database := db.New(filepath.Join(dir, "test.db"), logger)
	reg := registry.New(dir, store, database, logger)

	f := &fixture{registry: reg, logs: logbuf.NewBuffer(100), dir: dir}
	f.facade = New(reg, f.logs, logger, "test", func() { f.stopped = true })
	f.server = httptest.NewServer(f.facade.Routes())

	t.Cleanup(func() {
		f.server.Close()
		reg.Close()
		store.Close()
		database.Close()
	})
	return f
}

func (f *fixture) writeModule(t *testing.T, name, source string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name+".lua"), []byte(source), 0644))
	_, err := f.registry.Discover()
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func (f *fixture) post(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

const okModule = `
function Setup(host)
    local n = host.settings.get_or_create("setups", 0)
    host.settings.put("setups", n + 1)
end
`

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "moderation", okModule)

	resp, body := f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Alive)
	assert.Equal(t, 1, status.ModuleCount)
	assert.Equal(t, "test", status.Version)
}

func TestListModulesEndpoint(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "moderation", okModule)
	f.writeModule(t, "tickets", okModule)
	require.NoError(t, f.registry.Load("moderation"))

	resp, body := f.get(t, "/api/modules")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListModulesResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Modules, 2)
	assert.Equal(t, "moderation", list.Modules[0].ID)
	assert.Equal(t, "loaded", list.Modules[0].State)
	assert.Equal(t, "tickets", list.Modules[1].ID)
	assert.Equal(t, "unloaded", list.Modules[1].State)
}

func TestToggleLoadsModule(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "moderation", okModule)

	resp, body := f.post(t, "/api/toggle", ToggleRequest{ID: "moderation", Desired: "loaded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ToggleResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "moderation", result.ID)
	assert.Equal(t, "loaded", result.State)
	assert.Empty(t, result.Error)
}

func TestToggleIdempotent(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "counter", okModule)
	require.NoError(t, f.registry.Load("counter"))

	// Toggling an already-loaded module must not re-run setup
	state, err := f.facade.Toggle("counter", registry.StateLoaded)
	require.NoError(t, err)
	assert.Equal(t, registry.StateLoaded, state)

	desc, err := f.registry.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, registry.StateLoaded, desc.State)
}

func TestToggleUnknownModule(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/toggle", ToggleRequest{ID: "ghost", Desired: "loaded"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "error")
}

func TestToggleBadDesiredState(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "moderation", okModule)

	resp, _ := f.post(t, "/api/toggle", ToggleRequest{ID: "moderation", Desired: "exploded"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestToggleLoadFailureReported(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "bad", `function Setup(host) error("nope") end`)

	resp, body := f.post(t, "/api/toggle", ToggleRequest{ID: "bad", Desired: "loaded"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var result ToggleResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "error", result.State)
	assert.Contains(t, result.Error, "nope")
}

func TestToggleUnloads(t *testing.T) {
	f := newFixture(t)
	f.writeModule(t, "moderation", okModule)
	require.NoError(t, f.registry.Load("moderation"))

	resp, body := f.post(t, "/api/toggle", ToggleRequest{ID: "moderation", Desired: "unloaded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ToggleResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "unloaded", result.State)
}

func TestLogsEndpoint(t *testing.T) {
	f := newFixture(t)
	for _, line := range []string{"first", "second", "third"} {
		f.logs.Append(line)
	}

	resp, body := f.get(t, "/api/logs?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var logs LogsResponse
	require.NoError(t, json.Unmarshal(body, &logs))
	// Most recent last
	assert.Equal(t, []string{"second", "third"}, logs.Lines)
}

func TestLogsBadLimit(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/api/logs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShutdownEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, "/api/shutdown", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.stopped)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, "/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body := f.get(t, "/api/shutdown")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Contains(t, string(body), "error")
	assert.False(t, f.stopped)
}
