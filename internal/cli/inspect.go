package cli

import (
	"cmp"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/model"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	File string
}

// InspectResult is the output of the inspect command.
type InspectResult struct {
	Path            string      `json:"path"`
	LoadID          string      `json:"load_id"`
	BytesConsumed   int64       `json:"bytes_consumed"`
	Files           int         `json:"files"`
	Processes       int         `json:"processes"`
	SkippedLines    int64       `json:"skipped_lines"`
	RejectedRecords int64       `json:"rejected_records"`
	ParseTime       string      `json:"parse_time"`
	File            *FileReport `json:"file,omitempty"`

	showParseTime bool
}

// FileReport describes one file and what it was built from.
type FileReport struct {
	ID                  graph.FileID     `json:"id"`
	Path                string           `json:"path"`
	BytesRead           int64            `json:"bytes_read"`
	BytesWritten        int64            `json:"bytes_written"`
	Writers             []string         `json:"writers"`
	Readers             []string         `json:"readers"`
	FileDependencies    []string         `json:"file_dependencies"`
	ProcessDependencies []ProcessSummary `json:"process_dependencies"`
}

// ProcessSummary names a process by pid and command line.
type ProcessSummary struct {
	PID  string   `json:"pid"`
	Argv []string `json:"argv"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <log>",
		Short: "Load a trace log and summarize it",
		Long: `Load a trace log to the end and print a summary of the model.

With --file, also print who wrote and read that file and everything
it transitively depends on.

Examples:
  skroot inspect audit.dit
  skroot inspect audit.dit --file out/app
  skroot inspect audit.dit --file out/app --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "path of a file to report on, as it appears in the log")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *InspectOptions, logPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := opts.newLogger(cmd.ErrOrStderr())

	m, err := loadModel(commandContext(cmd.Context()), opts.RootOptions, logPath, logger)
	if err != nil {
		_ = formatter.Error(CodeLoadFailed, err.Error(), nil)
		return err
	}

	stats := m.Stats()
	result := InspectResult{
		Path:            stats.Path,
		LoadID:          stats.LoadID,
		BytesConsumed:   stats.BytesConsumed,
		Files:           stats.Files,
		Processes:       stats.Processes,
		SkippedLines:    stats.SkippedLines,
		RejectedRecords: stats.RejectedRecords,
		ParseTime:       stats.ParseTime.String(),
		showParseTime:   opts.Verbose,
	}

	if opts.File != "" {
		report, err := buildFileReport(m, opts.File)
		if err != nil {
			_ = formatter.Error(CodeFileNotFound, err.Error(), map[string]string{"path": opts.File})
			return WrapExitError(ExitFailure, "inspect", err)
		}
		result.File = report
	}

	return formatter.SuccessWithLoad(stats.LoadID, result)
}

// buildFileReport reads the file, its accessors and both dependency
// closures under one hold of the gate.
func buildFileReport(m *model.Model, path string) (*FileReport, error) {
	var report *FileReport
	err := m.WithModel(func(s *graph.Store) error {
		f, ok := s.LookupFile(path)
		if !ok {
			return errors.New("file " + path + " not in model")
		}
		report = &FileReport{
			ID:           f.ID,
			Path:         f.Path,
			BytesRead:    f.BytesRead,
			BytesWritten: f.BytesWritten,
			Writers:      pidsOf(s, f.Writers),
			Readers:      pidsOf(s, f.Readers),
		}

		files := s.FileDependencies(f.ID)
		report.FileDependencies = make([]string, 0, len(files))
		for _, dep := range files {
			report.FileDependencies = append(report.FileDependencies, dep.Path)
		}

		procs := s.ProcessDependencies(f.ID)
		report.ProcessDependencies = make([]ProcessSummary, 0, len(procs))
		for _, p := range procs {
			report.ProcessDependencies = append(report.ProcessDependencies,
				ProcessSummary{PID: p.PID, Argv: slices.Clone(p.Argv)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(report.FileDependencies)
	slices.SortFunc(report.ProcessDependencies, func(a, b ProcessSummary) int { return comparePID(a.PID, b.PID) })
	return report, nil
}

// pidsOf resolves process ids to pids, keeping order and repeats.
func pidsOf(s *graph.Store, ids []graph.ProcessID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.Process(id); ok {
			out = append(out, p.PID)
		}
	}
	return out
}

// comparePID orders numeric pids by value.
func comparePID(a, b string) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func (r InspectResult) renderText(p *message.Printer, w io.Writer) {
	p.Fprintf(w, "Trace log:         %s\n", r.Path)
	p.Fprintf(w, "Load id:           %s\n", r.LoadID)
	p.Fprintf(w, "Bytes consumed:    %d\n", r.BytesConsumed)
	p.Fprintf(w, "Files:             %d\n", r.Files)
	p.Fprintf(w, "Processes:         %d\n", r.Processes)
	p.Fprintf(w, "Skipped lines:     %d\n", r.SkippedLines)
	p.Fprintf(w, "Rejected records:  %d\n", r.RejectedRecords)
	if r.showParseTime {
		p.Fprintf(w, "Parse time:        %s\n", r.ParseTime)
	}
	if r.File != nil {
		io.WriteString(w, "\n")
		r.File.renderText(p, w)
	}
}

func (f *FileReport) renderText(p *message.Printer, w io.Writer) {
	p.Fprintf(w, "File %s (id %d)\n", f.Path, int(f.ID))
	p.Fprintf(w, "  Read:     %d bytes\n", f.BytesRead)
	p.Fprintf(w, "  Written:  %d bytes\n", f.BytesWritten)
	p.Fprintf(w, "  Writers:  %s\n", joinOrDash(f.Writers))
	p.Fprintf(w, "  Readers:  %s\n", joinOrDash(f.Readers))
	p.Fprintf(w, "  File dependencies (%d):\n", len(f.FileDependencies))
	for _, path := range f.FileDependencies {
		p.Fprintf(w, "    %s\n", path)
	}
	p.Fprintf(w, "  Process dependencies (%d):\n", len(f.ProcessDependencies))
	for _, proc := range f.ProcessDependencies {
		p.Fprintf(w, "    %-6s %s\n", proc.PID, joinOrDash(proc.Argv))
	}
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, " ")
}
