package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/model"
	"github.com/roach88/skroot/internal/testutil"
)

const buildLogPath = "testdata/build.dit"

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func runInspectCommand(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format, IDGenerator: model.NewFixedGenerator("load-1")}
	cmd := NewInspectCommand(rootOpts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestInspect_SummaryGolden(t *testing.T) {
	out, _, err := runInspectCommand(t, "text", buildLogPath)
	require.NoError(t, err)

	newGolden(t).Assert(t, "inspect_summary", []byte(out))
}

func TestInspect_FileGolden(t *testing.T) {
	out, _, err := runInspectCommand(t, "text", buildLogPath, "--file", "bin/app")
	require.NoError(t, err)

	newGolden(t).Assert(t, "inspect_file", []byte(out))
}

func TestInspect_LogsSkippedAndRejected(t *testing.T) {
	_, logs, err := runInspectCommand(t, "text", buildLogPath)
	require.NoError(t, err)

	assert.Contains(t, logs, "skipping malformed trace line")
	assert.Contains(t, logs, "UNKNOWN_TYPE")
	assert.Contains(t, logs, "load_id=load-1")
}

func TestInspect_JSON(t *testing.T) {
	out, _, err := runInspectCommand(t, "json", buildLogPath, "--file", "out/main.o")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		LoadID string        `json:"load_id"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "load-1", resp.LoadID)
	assert.Equal(t, 8, resp.Data.Files)
	assert.Equal(t, 4, resp.Data.Processes)
	assert.Equal(t, int64(500), resp.Data.BytesConsumed)

	require.NotNil(t, resp.Data.File)
	assert.Equal(t, []string{"101"}, resp.Data.File.Writers)
	assert.Equal(t, []string{"102"}, resp.Data.File.Readers)
	assert.Equal(t, []string{"include/util.h", "out/main.o", "src/main.c"}, resp.Data.File.FileDependencies)
	assert.Equal(t, []ProcessSummary{{PID: "101", Argv: []string{"cc", "-c", "src/main.c"}}}, resp.Data.File.ProcessDependencies)
}

func TestInspect_UnknownFile(t *testing.T) {
	out, _, err := runInspectCommand(t, "text", buildLogPath, "--file", "nope.o")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestInspect_MissingLog(t *testing.T) {
	_, _, err := runInspectCommand(t, "text", "testdata/does-not-exist.dit")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open trace log")
}

func TestInspect_UnreadableLogIsFatal(t *testing.T) {
	_, _, err := runInspectCommand(t, "text", t.TempDir())

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load trace log")
}

func TestInspect_RequiresLogArgument(t *testing.T) {
	_, _, err := runInspectCommand(t, "text")
	require.Error(t, err)
}

func TestComparePID(t *testing.T) {
	assert.Negative(t, comparePID("9", "10"))
	assert.Positive(t, comparePID("101", "100"))
	assert.Zero(t, comparePID("7", "7"))
}

func TestBuildFileReport_DetachedFromModel(t *testing.T) {
	m := model.New(buildLogPath, testutil.DiscardLogger())
	require.NoError(t, m.Load(context.Background()))

	report, err := buildFileReport(m, "bin/app")
	require.NoError(t, err)
	require.Len(t, report.ProcessDependencies, 2)
	assert.Equal(t, "101", report.ProcessDependencies[0].PID)

	report.ProcessDependencies[0].Argv[0] = "changed"

	require.NoError(t, m.WithModel(func(s *graph.Store) error {
		p, ok := s.LookupProcess("101")
		require.True(t, ok)
		assert.Equal(t, []string{"cc", "-c", "src/main.c"}, p.Argv)
		return nil
	}))
}
