package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/skroot/internal/server"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// OnListen is called with the bound address once the server accepts
	// connections (for testing).
	OnListen func(addr net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <log>",
		Short: "Load a trace log and serve the query API",
		Long: `Start loading a trace log in the background and serve the JSON query
API while it loads. Queries see whatever has been ingested so far.

A fatal load error stops the server and exits with status 2.

Examples:
  skroot serve audit.dit
  skroot serve audit.dit --listen :8080 --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to listen on (default from config, 127.0.0.1:8000)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions, logPath string) error {
	cfg := opts.config()
	logger := opts.newLogger(cmd.ErrOrStderr())
	gin.SetMode(gin.ReleaseMode)

	listen := cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	var reg *prometheus.Registry
	var registerer prometheus.Registerer
	if cfg.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registerer = reg
	}

	m, err := newModel(opts.RootOptions, logPath, logger, registerer)
	if err != nil {
		return err
	}

	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	srv := &http.Server{
		Handler:           server.New(m, gatherer, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := m.Load(gctx); err != nil && gctx.Err() == nil {
			return WrapExitError(ExitCommandError, "failed to load trace log", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("serving query API", "addr", ln.Addr().String(), "log", logPath, "load_id", m.LoadID())
		if opts.OnListen != nil {
			opts.OnListen(ln.Addr())
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down query API")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
