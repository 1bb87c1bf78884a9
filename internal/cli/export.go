package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/skroot/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
}

// ExportResult is the output of the export command.
type ExportResult struct {
	Database  string `json:"database"`
	LoadID    string `json:"load_id"`
	Files     int    `json:"files"`
	Processes int    `json:"processes"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("Exported %d files and %d processes to %s", r.Files, r.Processes, r.Database)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <log>",
		Short: "Write the model to an SQLite snapshot",
		Long: `Load a trace log to the end and write the resulting graph to an
SQLite database for ad-hoc queries. An existing snapshot in the
database is replaced.

Example:
  skroot export audit.dit --db build.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, logPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := opts.newLogger(cmd.ErrOrStderr())
	ctx := commandContext(cmd.Context())

	m, err := loadModel(ctx, opts.RootOptions, logPath, logger)
	if err != nil {
		_ = formatter.Error(CodeLoadFailed, err.Error(), nil)
		return err
	}

	db, err := export.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(CodeExportFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	snap := m.Snapshot()
	if err := db.Write(ctx, snap); err != nil {
		_ = formatter.Error(CodeExportFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write snapshot", err)
	}
	logger.Info("snapshot written", "db", opts.Database, "files", len(snap.Files), "processes", len(snap.Processes))

	return formatter.SuccessWithLoad(snap.LoadID, ExportResult{
		Database:  opts.Database,
		LoadID:    snap.LoadID,
		Files:     len(snap.Files),
		Processes: len(snap.Processes),
	})
}
