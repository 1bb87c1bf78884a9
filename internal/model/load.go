package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/roach88/skroot/internal/dispatch"
	"github.com/roach88/skroot/internal/tracelog"
)

// syntaxErrorCode labels lines that failed the top-level grammar in metrics.
const syntaxErrorCode = "SYNTAX"

// Load reads the trace log from the start to the end of file and applies
// every record under the gate. It returns nil at end of file.
//
// Per-record problems never stop the load. Load returns an error when the
// log cannot be opened or read, when a record triggers an internal invariant
// violation, or when ctx is cancelled. A Model can be loaded only once.
func (m *Model) Load(ctx context.Context) (err error) {
	if !m.loading.CompareAndSwap(false, true) {
		return ErrAlreadyLoading
	}
	m.state.Store(StateLoading)
	started := time.Now()

	defer func() {
		switch {
		case err == nil:
			m.finish(nil, StateLoaded)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			m.finish(err, StateStopped)
		default:
			m.logger.Error("loading the model failed", "error", err)
			m.finish(err, StateFailed)
		}
	}()

	f, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("open trace log: %w", err)
	}
	defer f.Close()

	r := tracelog.NewReader(f, m.logger,
		tracelog.WithClock(m.now),
		tracelog.WithSkipHook(func(*tracelog.SyntaxError) {
			m.metrics.ObserveError(syntaxErrorCode)
		}),
	)

	m.logger.Info("loading trace log", "path", m.path)

	var records int64
	var lastParse time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := r.Next()

		m.consumed.Store(r.BytesConsumed())
		m.skipped.Store(r.Skipped())
		parse := r.ParseTime()
		m.parseTime.Store(int64(parse))
		m.metrics.AddParseTime(parse - lastParse)
		lastParse = parse

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if err := m.apply(rec); err != nil {
			return err
		}

		records++
		if records%m.progressEvery == 0 {
			m.reportProgress(records)
		}
	}

	m.reportProgress(records)
	files, procs := m.counts()
	m.logger.Info("trace log loaded",
		"records", records,
		"bytes", m.consumed.Load(),
		"skipped_lines", m.skipped.Load(),
		"rejected_records", m.rejected.Load(),
		"files", files,
		"processes", procs,
		"parse_time", m.ParseTime(),
		"elapsed", time.Since(started),
	)
	return nil
}

// apply dispatches one record while holding the gate.
func (m *Model) apply(rec tracelog.Record) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: line %d (%s): %v", ErrInvariant, rec.Line, rec.TypeName, r)
		}
	}()

	if derr := m.dispatcher.Dispatch(rec); derr != nil {
		code, ok := dispatch.CodeOf(derr)
		if !ok {
			return derr
		}
		m.rejected.Add(1)
		m.metrics.ObserveError(string(code))
	} else {
		m.metrics.ObserveRecord(rec.Type.String())
	}
	m.metrics.SetGraphSize(m.store.FileCount(), m.store.ProcessCount())
	return nil
}

func (m *Model) reportProgress(records int64) {
	consumed, total, err := m.Progress()
	if err != nil {
		m.logger.Debug("progress unavailable", "error", err)
		return
	}
	m.metrics.SetProgress(consumed, total)
	m.logger.Info("load progress", "records", records, "bytes", consumed, "size", total)
}

func (m *Model) counts() (files, procs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.FileCount(), m.store.ProcessCount()
}
