package export

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skroot/internal/model"
	"github.com/roach88/skroot/internal/testutil"
)

var buildLog = []string{
	"100 1 start: 1",
	"100 2 cwd: /src",
	"100 3 argv: make",
	"100 4 argv: all",
	"100 5 getenv: CC",
	"101 6 fork: 100",
	"101 7 env: PATH=/bin",
	"101 8 open: src/a.c 3 r",
	"101 9 close: 3 120 0",
	"101 10 open: out/a.o 4 w",
	"101 11 close: 4 0 64",
	"101 12 fini: ",
	"100 13 fini: ",
}

func loadSnapshot(t *testing.T, lines ...string) model.Snapshot {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.dit")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	m := model.New(path, testutil.DiscardLogger(), model.WithIDGenerator(model.NewFixedGenerator("load-1")))
	require.NoError(t, m.Load(context.Background()))
	return m.Snapshot()
}

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return d, path
}

func queryInt(t *testing.T, d *DB, query string, args ...any) int64 {
	t.Helper()
	rows, err := d.Query(context.Background(), query, args...)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next(), "no rows for %q", query)
	var v int64
	require.NoError(t, rows.Scan(&v))
	return v
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTestDB(t)

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	for i := 0; i < 3; i++ {
		d, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, d.Close())
	}
}

func TestOpen_SetsPragmas(t *testing.T) {
	d, _ := openTestDB(t)

	assert.Equal(t, int64(1), queryInt(t, d, "PRAGMA foreign_keys"))
	assert.Equal(t, int64(currentSchemaVersion), queryInt(t, d, "PRAGMA user_version"))
}

func TestWrite_Snapshot(t *testing.T) {
	snap := loadSnapshot(t, buildLog...)
	d, _ := openTestDB(t)

	require.NoError(t, d.Write(context.Background(), snap))

	assert.Equal(t, int64(len(snap.Files)), queryInt(t, d, "SELECT COUNT(*) FROM files"))
	// 1 is materialized as the parent of make.
	assert.Equal(t, int64(3), queryInt(t, d, "SELECT COUNT(*) FROM processes"))

	var loadID, logPath, exportedAt string
	var consumed int64
	rows, err := d.Query(context.Background(), "SELECT load_id, log_path, bytes_consumed, exported_at FROM snapshot")
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&loadID, &logPath, &consumed, &exportedAt))
	require.NoError(t, rows.Close())
	assert.Equal(t, "load-1", loadID)
	assert.Equal(t, snap.Path, logPath)
	assert.Equal(t, snap.BytesConsumed, consumed)
	assert.Equal(t, "2026-01-02T03:04:05Z", exportedAt)
}

func TestWrite_FilesKeepAncestryAndCounters(t *testing.T) {
	d, _ := openTestDB(t)
	require.NoError(t, d.Write(context.Background(), loadSnapshot(t, buildLog...)))

	assert.Equal(t, int64(120), queryInt(t, d, "SELECT bytes_read FROM files WHERE path = 'src/a.c'"))
	assert.Equal(t, int64(64), queryInt(t, d, "SELECT bytes_written FROM files WHERE path = 'out/a.o'"))
	assert.Equal(t, int64(1), queryInt(t, d, `
		SELECT COUNT(*) FROM files c JOIN files p ON c.parent_id = p.id
		WHERE c.path = 'src/a.c' AND p.path = 'src'`))
	assert.Equal(t, int64(2), queryInt(t, d, "SELECT COUNT(*) FROM files WHERE parent_id IS NULL"))
}

func TestWrite_ProcessesAndAccess(t *testing.T) {
	d, _ := openTestDB(t)
	require.NoError(t, d.Write(context.Background(), loadSnapshot(t, buildLog...)))

	assert.Equal(t, int64(1), queryInt(t, d, `
		SELECT COUNT(*) FROM processes c JOIN processes p ON c.parent_id = p.id
		WHERE c.pid = '101' AND p.pid = '100'`))
	assert.Equal(t, int64(6), queryInt(t, d, "SELECT duration FROM processes WHERE pid = '101'"))
	assert.Equal(t, int64(1), queryInt(t, d, `
		SELECT COUNT(*) FROM file_access a
		JOIN processes p ON a.process_id = p.id
		JOIN files f ON a.file_id = f.id
		WHERE p.pid = '101' AND f.path = 'out/a.o' AND a.mode = 'write'`))
	assert.Equal(t, int64(1), queryInt(t, d, "SELECT COUNT(*) FROM file_access WHERE mode = 'read'"))
}

func TestWrite_ProcessStrings(t *testing.T) {
	d, _ := openTestDB(t)
	require.NoError(t, d.Write(context.Background(), loadSnapshot(t, buildLog...)))

	rows, err := d.Query(context.Background(), `
		SELECT s.value FROM process_strings s JOIN processes p ON s.process_id = p.id
		WHERE p.pid = '100' AND s.kind = 'argv' ORDER BY s.seq`)
	require.NoError(t, err)
	var argv []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		argv = append(argv, v)
	}
	require.NoError(t, rows.Close())

	assert.Equal(t, []string{"make", "all"}, argv)
	assert.Equal(t, int64(1), queryInt(t, d, "SELECT COUNT(*) FROM process_strings WHERE kind = 'getenv'"))
	assert.Equal(t, int64(1), queryInt(t, d, "SELECT COUNT(*) FROM process_strings WHERE kind = 'env'"))
}

func TestWrite_UnstartedProcessHasNullLifecycle(t *testing.T) {
	d, _ := openTestDB(t)
	// 7 only ever appears as a parent.
	require.NoError(t, d.Write(context.Background(), loadSnapshot(t, "8 1 fork: 7")))

	rows, err := d.Query(context.Background(), "SELECT start_time, duration FROM processes WHERE pid = '7'")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var start, duration sql.NullInt64
	require.NoError(t, rows.Scan(&start, &duration))
	require.NoError(t, rows.Close())

	assert.False(t, start.Valid)
	assert.False(t, duration.Valid)
}

func TestWrite_ParentWithHigherID(t *testing.T) {
	d, _ := openTestDB(t)
	// 5 is registered before its parent 9.
	snap := loadSnapshot(t, "5 1 open: f 3 r", "5 2 start: 9")

	require.NoError(t, d.Write(context.Background(), snap))
	assert.Equal(t, int64(1), queryInt(t, d, `
		SELECT COUNT(*) FROM processes c JOIN processes p ON c.parent_id = p.id
		WHERE c.pid = '5' AND p.pid = '9'`))
}

func TestWrite_ReplacesPreviousSnapshot(t *testing.T) {
	d, _ := openTestDB(t)
	require.NoError(t, d.Write(context.Background(), loadSnapshot(t, buildLog...)))
	require.NoError(t, d.Write(context.Background(), loadSnapshot(t, "1 1 open: only 3 r")))

	assert.Equal(t, int64(1), queryInt(t, d, "SELECT COUNT(*) FROM snapshot"))
	assert.Equal(t, int64(1), queryInt(t, d, "SELECT COUNT(*) FROM files"))
	assert.Equal(t, int64(1), queryInt(t, d, "SELECT COUNT(*) FROM processes"))
	assert.Equal(t, int64(0), queryInt(t, d, "SELECT COUNT(*) FROM process_strings"))
}

func TestWrite_CancelledContext(t *testing.T) {
	d, _ := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Write(ctx, loadSnapshot(t, buildLog...))
	assert.Error(t, err)
}
