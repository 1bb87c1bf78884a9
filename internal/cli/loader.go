package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/skroot/internal/metrics"
	"github.com/roach88/skroot/internal/model"
)

// newModel checks that the trace log exists and builds an unloaded
// model for it. Metrics are registered on reg when it is non-nil.
func newModel(opts *RootOptions, logPath string, logger *slog.Logger, reg prometheus.Registerer) (*model.Model, error) {
	if _, err := os.Stat(logPath); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open trace log", err)
	}

	modelOpts := []model.Option{model.WithIDGenerator(opts.idGenerator())}
	if reg != nil {
		im, err := metrics.NewIngest(reg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		modelOpts = append(modelOpts, model.WithMetrics(im))
	}
	return model.New(logPath, logger, modelOpts...), nil
}

// loadModel builds the model for logPath and ingests it to EOF.
func loadModel(ctx context.Context, opts *RootOptions, logPath string, logger *slog.Logger) (*model.Model, error) {
	m, err := newModel(opts, logPath, logger, nil)
	if err != nil {
		return nil, err
	}
	if err := m.Load(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load trace log", err)
	}
	return m, nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
