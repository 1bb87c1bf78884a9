package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/metrics"
	"github.com/roach88/skroot/internal/model"
	"github.com/roach88/skroot/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// 10 compiles a.c into a.o; 11 links a.o into bin/app.
var buildLog = []string{
	"10 1 start: 1",
	"10 2 open: src/a.c 3 r",
	"10 3 open: out/a.o 4 w",
	"10 4 close: 4 0 64",
	"10 5 fini: ",
	"11 6 fork: 1",
	"11 7 open: out/a.o 3 r",
	"11 8 open: bin/app 4 w",
	"11 9 exit: 0",
}

type fixture struct {
	router *gin.Engine
	model  *model.Model
}

func newFixture(t *testing.T, lines ...string) fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.dit")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	reg := prometheus.NewRegistry()
	im, err := metrics.NewIngest(reg)
	require.NoError(t, err)

	m := model.New(path, testutil.DiscardLogger(),
		model.WithIDGenerator(model.NewFixedGenerator("load-1")),
		model.WithMetrics(im),
	)
	require.NoError(t, m.Load(context.Background()))

	return fixture{
		router: New(m, reg, testutil.DiscardLogger()).Router(),
		model:  m,
	}
}

func (f fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func lookupFile(t *testing.T, m *model.Model, path string) graph.FileID {
	t.Helper()
	var id graph.FileID
	require.NoError(t, m.WithModel(func(s *graph.Store) error {
		f, ok := s.LookupFile(path)
		require.True(t, ok, path)
		id = f.ID
		return nil
	}))
	return id
}

func paths(files []graph.FileNode) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func pids(procs []graph.ProcessNode) []string {
	out := make([]string, len(procs))
	for i, p := range procs {
		out[i] = p.PID
	}
	return out
}

func fileURL(id graph.FileID, suffix string) string {
	return "/api/v1/files/" + strconv.Itoa(int(id)) + suffix
}

func TestHealth(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestModelStatus(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, "/api/v1/model")

	require.Equal(t, http.StatusOK, w.Code)
	status := decode[ModelStatus](t, w)
	assert.Equal(t, f.model.Path(), status.Path)
	assert.Equal(t, status.Size, status.BytesLoaded)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, 6, status.Files)
	assert.Equal(t, 3, status.Processes)
	assert.Equal(t, model.StateLoaded, status.State)
	assert.Equal(t, "load-1", status.LoadID)
	assert.False(t, status.LastModified.IsZero())
}

func TestRootFiles(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, "/api/v1/files")

	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"src", "out", "bin"}, paths(decode[[]graph.FileNode](t, w)))
}

func TestRootFiles_EmptyModelIsEmptyList(t *testing.T) {
	f := newFixture(t, "1 1 argv: true")

	w := f.get(t, "/api/v1/files")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestFileByID(t *testing.T) {
	f := newFixture(t, buildLog...)
	id := lookupFile(t, f.model, "out/a.o")

	w := f.get(t, fileURL(id, ""))

	require.Equal(t, http.StatusOK, w.Code)
	file := decode[graph.FileNode](t, w)
	assert.Equal(t, "out/a.o", file.Path)
	assert.Equal(t, int64(64), file.BytesWritten)
	assert.Len(t, file.Writers, 1)
	assert.Len(t, file.Readers, 1)
}

func TestFileChildren(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, fileURL(lookupFile(t, f.model, "out"), "/children"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"out/a.o"}, paths(decode[[]graph.FileNode](t, w)))
}

func TestFileWritersAndReaders(t *testing.T) {
	f := newFixture(t, buildLog...)
	id := lookupFile(t, f.model, "out/a.o")

	w := f.get(t, fileURL(id, "/writers"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"10"}, pids(decode[[]graph.ProcessNode](t, w)))

	w = f.get(t, fileURL(id, "/readers"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"11"}, pids(decode[[]graph.ProcessNode](t, w)))
}

func TestFileDependencies(t *testing.T) {
	f := newFixture(t, buildLog...)
	id := lookupFile(t, f.model, "bin/app")

	w := f.get(t, fileURL(id, "/file_dependencies"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"bin/app", "out/a.o", "src/a.c"}, paths(decode[[]graph.FileNode](t, w)))

	w = f.get(t, fileURL(id, "/proc_dependencies"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"11", "10"}, pids(decode[[]graph.ProcessNode](t, w)))
}

func TestRootProcessesAndChildren(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, "/api/v1/processes")
	require.Equal(t, http.StatusOK, w.Code)
	roots := decode[[]graph.ProcessNode](t, w)
	require.Equal(t, []string{"1"}, pids(roots))

	w = f.get(t, "/api/v1/processes/"+strconv.Itoa(int(roots[0].ID))+"/children")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"10", "11"}, pids(decode[[]graph.ProcessNode](t, w)))
}

func TestProcessByID(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, "/api/v1/processes/0")

	require.Equal(t, http.StatusOK, w.Code)
	p := decode[graph.ProcessNode](t, w)
	assert.Equal(t, "10", p.PID)
	assert.Equal(t, int64(4), p.Duration)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, buildLog...)

	for _, path := range []string{
		"/api/v1/files/999",
		"/api/v1/files/-1",
		"/api/v1/files/999/children",
		"/api/v1/files/999/writers",
		"/api/v1/files/999/readers",
		"/api/v1/files/999/file_dependencies",
		"/api/v1/files/999/proc_dependencies",
		"/api/v1/processes/999",
		"/api/v1/processes/999/children",
	} {
		w := f.get(t, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, decode[map[string]string](t, w), "error", path)
	}
}

func TestBadID(t *testing.T) {
	f := newFixture(t, buildLog...)

	for _, path := range []string{
		"/api/v1/files/abc",
		"/api/v1/files/1.5/children",
		"/api/v1/processes/x",
	} {
		w := f.get(t, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, buildLog...)

	w := f.get(t, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `skroot_ingest_records_total{type="open"} 4`)
	assert.Contains(t, w.Body.String(), "skroot_graph_files 6")
}

func TestMetrics_DisabledWithoutGatherer(t *testing.T) {
	f := newFixture(t, buildLog...)
	router := New(f.model, nil, testutil.DiscardLogger()).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
