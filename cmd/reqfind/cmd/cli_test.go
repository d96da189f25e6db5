package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reqfind/internal/config"
	"github.com/Aman-CERP/reqfind/internal/daemon"
	"github.com/Aman-CERP/reqfind/internal/logging"
	"github.com/Aman-CERP/reqfind/internal/model"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// startTestDaemon runs an in-process daemon on a short /tmp socket and returns
// the config dir the CLI should use to reach it.
func startTestDaemon(t *testing.T) string {
	t.Helper()
	dir := isolate(t)

	suffix := time.Now().UnixNano()
	socketPath := filepath.Join("/tmp", fmt.Sprintf("reqfind-cli-%d.sock", suffix))
	pidPath := filepath.Join("/tmp", fmt.Sprintf("reqfind-cli-%d.pid", suffix))
	t.Cleanup(func() {
		os.Remove(socketPath)
		os.Remove(pidPath)
	})
	t.Setenv("REQFIND_SOCKET", socketPath)
	t.Setenv("REQFIND_PID_FILE", pidPath)
	t.Setenv("REQFIND_DATA_DIR", t.TempDir())
	t.Setenv("REQFIND_DOCSTORE_IN_MEMORY", "true")
	t.Setenv("REQFIND_TIMEOUT", "5s")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	d, err := newDaemon(cfg, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	client := daemon.NewClient(daemonConfig(cfg))
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return dir
}

func searchJSON(t *testing.T, dir string, args ...string) []search.Match {
	t.Helper()
	out, err := runCLI(t, dir, append([]string{"search", "--json"}, args...)...)
	require.NoError(t, err)
	var matches []search.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	return matches
}

func TestCLI_IndexSearchDelete(t *testing.T) {
	dir := startTestDaemon(t)

	out, err := runCLI(t, dir, "index", "--json", "r1", "https://api.mulesoft.com/endpoint/path?query=parameter")
	require.NoError(t, err)
	var items []worker.ItemResult
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.True(t, items[0].OK)
	assert.Equal(t, 4, items[0].Inserted)

	_, err = runCLI(t, dir, "index", "--type", "history", "h1", "https://api.mulesoft.com/other")
	require.NoError(t, err)

	// default type only
	assert.Equal(t, []search.Match{{RequestID: "r1", Type: "saved"}},
		searchJSON(t, dir, "HTTPS://API.MULESOFT.COM"))

	assert.ElementsMatch(t, []search.Match{
		{RequestID: "r1", Type: "saved"},
		{RequestID: "h1", Type: "history"},
	}, searchJSON(t, dir, "--type", "all", "https://api.mulesoft.com"))

	assert.Empty(t, searchJSON(t, dir, "mulesoft"), "fast mode anchors at fragment start")
	assert.Len(t, searchJSON(t, dir, "--mode", "detailed", "mulesoft"), 1)
	assert.Empty(t, searchJSON(t, dir, "--mode", "detailed", "--ignore", "r1", "mulesoft"))

	out, err = runCLI(t, dir, "search", "query=param")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "r1")

	out, err = runCLI(t, dir, "search", "nothing-here")
	require.NoError(t, err)
	assert.Contains(t, out, "No requests match")

	_, err = runCLI(t, dir, "delete", "r1")
	require.NoError(t, err)
	assert.Empty(t, searchJSON(t, dir, "https://api.mulesoft.com"))

	_, err = runCLI(t, dir, "clear")
	require.NoError(t, err)
	assert.Empty(t, searchJSON(t, dir, "--type", "all", "https"))
}

func TestCLI_IndexFromFile(t *testing.T) {
	dir := startTestDaemon(t)
	file := filepath.Join(t.TempDir(), "refs.json")
	require.NoError(t, os.WriteFile(file, []byte(`[
		{"id": "a", "url": "https://a.com"},
		{"id": "b", "url": "https://b.com/x", "type": "history"}
	]`), 0o644))

	_, err := runCLI(t, dir, "index", "--file", file)
	require.NoError(t, err)

	assert.ElementsMatch(t, []search.Match{
		{RequestID: "a", Type: "saved"},
		{RequestID: "b", Type: "history"},
	}, searchJSON(t, dir, "--type", "all", "https://"))
}

func TestCLI_SearchInvalidMode(t *testing.T) {
	dir := startTestDaemon(t)

	_, err := runCLI(t, dir, "search", "--mode", "fuzzy", "x")
	assert.Error(t, err)

	_, err = runCLI(t, dir, "search", "   ")
	assert.ErrorContains(t, err, "empty")
}

func TestCLI_Status(t *testing.T) {
	dir := startTestDaemon(t)

	out, err := runCLI(t, dir, "status", "--json")
	require.NoError(t, err)
	var status daemon.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)

	out, err = runCLI(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Worker")
	assert.Contains(t, out, "state:")
}

func TestCLI_NoDaemon(t *testing.T) {
	dir := isolate(t)
	t.Setenv("REQFIND_SOCKET", filepath.Join("/tmp", fmt.Sprintf("reqfind-cli-none-%d.sock", time.Now().UnixNano())))
	t.Setenv("REQFIND_PID_FILE", filepath.Join(t.TempDir(), "daemon.pid"))
	t.Setenv("REQFIND_TIMEOUT", "200ms")

	out, err := runCLI(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")

	_, err = runCLI(t, dir, "index", "r1", "https://a.com")
	assert.Error(t, err)

	// --json callers get the failure as JSON on stdout
	out, err = runCLI(t, dir, "search", "https", "--json")
	require.Error(t, err)
	var failure struct {
		Error struct {
			Category string `json:"category"`
			Code     string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &failure))
	assert.Equal(t, "ERR_301_DAEMON_UNAVAILABLE", failure.Error.Code)
	assert.Equal(t, "TransportError", failure.Error.Category)

	out, err = runCLI(t, dir, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestCLI_Requests(t *testing.T) {
	dir := startTestDaemon(t)

	out, err := runCLI(t, dir, "requests", "put", "req-1", "https://x.com/users?page=2", "--name", "Users", "--method", "GET")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored req-1")

	out, err = runCLI(t, dir, "requests", "get", "req-1", "--json")
	require.NoError(t, err)
	var req model.Request
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	assert.Equal(t, "https://x.com/users?page=2", req.URL)
	assert.Equal(t, "Users", req.Name)
	require.NotEmpty(t, req.Rev)

	// stored requests are indexed on write
	out, err = runCLI(t, dir, "search", "page=2", "--requests", "--json")
	require.NoError(t, err)
	var rows []*model.Request
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "req-1", rows[0].ID)

	out, err = runCLI(t, dir, "requests", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "req-1")

	out, err = runCLI(t, dir, "requests", "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexed 1 saved requests")

	_, err = runCLI(t, dir, "requests", "remove", "req-1", req.Rev)
	require.NoError(t, err)
	assert.Empty(t, searchJSON(t, dir, "page=2"))
}

func TestCLI_History(t *testing.T) {
	dir := startTestDaemon(t)

	_, err := runCLI(t, dir, "history", "store", "https://Example.com/a")
	require.NoError(t, err)
	out, err := runCLI(t, dir, "history", "store", "https://example.com/A")
	require.NoError(t, err)
	assert.Contains(t, out, "used 2 times")

	out, err = runCLI(t, dir, "history", "query", "EXAMPLE", "--json")
	require.NoError(t, err)
	var entries []model.URLEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Count)

	out, err = runCLI(t, dir, "history", "query", "nowhere")
	require.NoError(t, err)
	assert.Contains(t, out, "No URLs")
}

func TestMetricsHandler(t *testing.T) {
	srv := httptest.NewServer(metricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "reqfind_worker_queue_depth")
}
