package model

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/skroot/internal/dispatch"
	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/metrics"
)

var (
	// ErrNotFound is returned for ids outside the currently assigned range.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyLoading is returned when Load is called a second time.
	ErrAlreadyLoading = errors.New("model is already loading")

	// ErrInvariant wraps a panic recovered while dispatching a record.
	ErrInvariant = errors.New("internal invariant violated")
)

// State is the lifecycle of the background load.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
	// StateStopped means Load returned because its context was cancelled.
	StateStopped State = "stopped"
)

// DefaultProgressEvery is how many records pass between progress log lines.
const DefaultProgressEvery = 100_000

// Option configures a Model.
type Option func(*Model)

// WithMetrics attaches ingestion metrics.
func WithMetrics(m *metrics.Ingest) Option {
	return func(mod *Model) {
		mod.metrics = m
	}
}

// WithIDGenerator overrides the load id generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(mod *Model) {
		mod.ids = g
	}
}

// WithClock overrides the time source used for parse-time accounting.
func WithClock(now func() time.Time) Option {
	return func(mod *Model) {
		mod.now = now
	}
}

// WithProgressEvery sets how many records pass between progress log lines.
func WithProgressEvery(n int64) Option {
	return func(mod *Model) {
		if n > 0 {
			mod.progressEvery = n
		}
	}
}

// Model is the provenance graph of one trace log plus its access gate.
type Model struct {
	path          string
	logger        *slog.Logger
	metrics       *metrics.Ingest
	ids           IDGenerator
	now           func() time.Time
	progressEvery int64
	loadID        string

	// mu is the gate. It guards store and dispatcher.
	mu         sync.Mutex
	store      *graph.Store
	dispatcher *dispatch.Dispatcher

	loading   atomic.Bool
	state     atomic.Value // State
	consumed  atomic.Int64
	parseTime atomic.Int64
	skipped   atomic.Int64
	rejected  atomic.Int64

	errMu   sync.Mutex
	loadErr error
}

// New creates a Model for the trace log at path. Nothing is read until Load.
func New(path string, logger *slog.Logger, opts ...Option) *Model {
	m := &Model{
		path:          path,
		logger:        logger,
		ids:           UUIDv7Generator{},
		now:           time.Now,
		progressEvery: DefaultProgressEvery,
		store:         graph.NewStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loadID = m.ids.Generate()
	m.logger = m.logger.With("load_id", m.loadID)
	m.dispatcher = dispatch.New(m.store, m.logger)
	m.state.Store(StateIdle)
	return m
}

// Path returns the trace log path.
func (m *Model) Path() string {
	return m.path
}

// LoadID returns the id correlating this model's log lines and exports.
func (m *Model) LoadID() string {
	return m.loadID
}

// State returns the load state.
func (m *Model) State() State {
	return m.state.Load().(State)
}

// Err returns the error that ended the load, if any.
func (m *Model) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.loadErr
}

func (m *Model) finish(err error, state State) {
	m.errMu.Lock()
	m.loadErr = err
	m.errMu.Unlock()
	m.state.Store(state)
}
