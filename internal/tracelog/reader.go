package tracelog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// recordPattern is the top-level grammar shared with existing producers.
var recordPattern = regexp.MustCompile(`^([0-9]+) ([0-9]+) ([a-z]*): (.*)$`)

// continuation marks a physical line that continues on the next one.
const continuation = '\\'

// SyntaxError describes a logical line that failed the top-level grammar.
type SyntaxError struct {
	Line int
	Text string
	Err  error // set when the fields matched but could not be converted
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: malformed record %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("line %d: malformed record %q", e.Line, e.Text)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithClock overrides the time source used for parse-time accounting.
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) {
		r.now = now
	}
}

// WithSkipHook registers a callback invoked for every malformed line after it
// has been logged.
func WithSkipHook(hook func(*SyntaxError)) ReaderOption {
	return func(r *Reader) {
		r.onSkip = hook
	}
}

// Reader turns a byte stream into Records.
//
// Next must be called from a single goroutine. BytesConsumed, ParseTime and
// Skipped may be read concurrently; they are informational and may lag the
// most recent record slightly.
type Reader struct {
	src    *bufio.Reader
	logger *slog.Logger
	now    func() time.Time
	onSkip func(*SyntaxError)

	line    int
	pending strings.Builder

	consumed  atomic.Int64
	parseTime atomic.Int64
	skipped   atomic.Int64
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, logger *slog.Logger, opts ...ReaderOption) *Reader {
	rd := &Reader{
		src:    bufio.NewReaderSize(r, 64*1024),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next returns the next well-formed record.
//
// Malformed lines are logged, counted and skipped. At end of input Next
// returns io.EOF; an unterminated continuation fragment at that point is
// dropped. Any other error comes from the underlying reader and is fatal for
// this Reader.
func (r *Reader) Next() (Record, error) {
	start := r.now()
	defer func() {
		r.parseTime.Add(int64(r.now().Sub(start)))
	}()

	for {
		logical, ok, err := r.nextLogical()
		if err != nil {
			return Record{}, err
		}
		if !ok {
			continue
		}

		rec, perr := r.parse(logical)
		if perr != nil {
			r.skip(perr)
			continue
		}
		return rec, nil
	}
}

// nextLogical reads one physical line. It returns ok=false while a
// continuation is still being accumulated.
func (r *Reader) nextLogical() (string, bool, error) {
	raw, err := r.src.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("read trace log: %w", err)
	}
	if len(raw) == 0 && err != nil {
		if r.pending.Len() > 0 {
			r.logger.Debug("dropping unterminated continuation at end of log",
				"line", r.line,
				"bytes", r.pending.Len(),
			)
			r.pending.Reset()
		}
		return "", false, io.EOF
	}

	r.line++
	r.consumed.Add(int64(len(raw)))

	text := strings.TrimSuffix(raw, "\n")
	if strings.HasSuffix(text, string(continuation)) {
		r.pending.WriteString(text[:len(text)-1])
		return "", false, nil
	}

	if r.pending.Len() > 0 {
		r.pending.WriteString(text)
		text = r.pending.String()
		r.pending.Reset()
	}
	return text, true, nil
}

func (r *Reader) parse(text string) (Record, *SyntaxError) {
	m := recordPattern.FindStringSubmatch(text)
	if m == nil {
		return Record{}, &SyntaxError{Line: r.line, Text: text}
	}
	t, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Record{}, &SyntaxError{Line: r.line, Text: text, Err: err}
	}
	return Record{
		PID:      m[1],
		Time:     t,
		Type:     ParseEventType(m[3]),
		TypeName: m[3],
		Args:     m[4],
		Line:     r.line,
	}, nil
}

func (r *Reader) skip(err *SyntaxError) {
	r.skipped.Add(1)
	r.logger.Warn("skipping malformed trace line", "line", err.Line, "text", err.Text)
	if r.onSkip != nil {
		r.onSkip(err)
	}
}

// BytesConsumed returns the number of raw bytes read so far, terminators included.
func (r *Reader) BytesConsumed() int64 {
	return r.consumed.Load()
}

// ParseTime returns the cumulative wall time spent inside Next.
func (r *Reader) ParseTime() time.Duration {
	return time.Duration(r.parseTime.Load())
}

// Skipped returns the number of malformed lines discarded so far.
func (r *Reader) Skipped() int64 {
	return r.skipped.Load()
}
