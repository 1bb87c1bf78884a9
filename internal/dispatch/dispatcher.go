package dispatch

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/tracelog"
)

// PipeToken is the argv token that marks a process as a pass-through.
const PipeToken = "-pipe"

var (
	// openArgs is "<path> <fd> <mode>"; the path may itself contain spaces.
	openArgs = regexp.MustCompile(`^(.*) (-?[0-9]+) ([adwrtb+]+)$`)
	// closeArgs is "<fd> <bytesRead> <bytesWritten>"; deltas may be negative.
	closeArgs = regexp.MustCompile(`^(-?[0-9]+) (-?[0-9]+) (-?[0-9]+)$`)
	pidArg    = regexp.MustCompile(`^[0-9]+$`)
)

type handler func(proc *graph.ProcessNode, rec tracelog.Record) error

// Dispatcher routes records to per-type handlers that mutate a graph.Store.
type Dispatcher struct {
	store    *graph.Store
	logger   *slog.Logger
	handlers map[tracelog.EventType]handler
}

// New creates a Dispatcher writing into store.
func New(store *graph.Store, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		logger: logger,
	}
	d.handlers = map[tracelog.EventType]handler{
		tracelog.EventInit:    d.noop,
		tracelog.EventStart:   d.start,
		tracelog.EventFork:    d.fork,
		tracelog.EventOpen:    d.open,
		tracelog.EventClose:   d.close,
		tracelog.EventMiss:    d.noop,
		tracelog.EventArgv:    d.argv,
		tracelog.EventEnv:     d.env,
		tracelog.EventGetenv:  d.getenv,
		tracelog.EventForking: d.noop,
		tracelog.EventCwd:     d.cwd,
		tracelog.EventFini:    d.fini,
	}
	return d
}

// Dispatch applies one record. The acting process is created on first
// reference even when the record is then rejected.
//
// A returned error is always a *RecordError; it has already been logged at
// the severity matching its code.
func (d *Dispatcher) Dispatch(rec tracelog.Record) error {
	proc := d.store.ProcessFor(rec.PID)

	h, ok := d.handlers[rec.Type]
	if !ok {
		err := newRecordError(ErrCodeUnknownType, rec, "log type not supported")
		d.report(err)
		return err
	}

	if err := h(proc, rec); err != nil {
		d.report(err)
		return err
	}
	return nil
}

func (d *Dispatcher) report(err error) {
	var re *RecordError
	if !errors.As(err, &re) {
		d.logger.Error("record handler failed", "error", err)
		return
	}
	attrs := []any{
		"code", re.Code,
		"type", re.TypeName,
		"pid", re.PID,
		"line", re.Line,
		"args", re.Args,
	}
	switch re.Code {
	case ErrCodeMalformed:
		d.logger.Error(re.Message, attrs...)
	default:
		d.logger.Warn(re.Message, attrs...)
	}
}

func (d *Dispatcher) noop(*graph.ProcessNode, tracelog.Record) error {
	return nil
}

// parentFor validates a start/fork argument and resolves the parent process.
func (d *Dispatcher) parentFor(proc *graph.ProcessNode, rec tracelog.Record) (*graph.ProcessNode, error) {
	ppid := strings.TrimSpace(rec.Args)
	if !pidArg.MatchString(ppid) {
		return nil, newRecordError(ErrCodeMalformed, rec, "parent pid is not a number")
	}
	if ppid == proc.PID {
		return nil, newRecordError(ErrCodeLifecycle, rec, "process names itself as parent")
	}
	return d.store.ProcessFor(ppid), nil
}

func (d *Dispatcher) start(proc *graph.ProcessNode, rec tracelog.Record) error {
	parent, err := d.parentFor(proc, rec)
	if err != nil {
		return d.startAnyway(proc, rec, err)
	}
	if !proc.HasParent() {
		d.store.LinkProcess(parent, proc)
	}
	proc.StartTime = rec.Time
	proc.Started = true
	return nil
}

func (d *Dispatcher) fork(proc *graph.ProcessNode, rec tracelog.Record) error {
	parent, err := d.parentFor(proc, rec)
	if err != nil {
		return d.startAnyway(proc, rec, err)
	}
	d.store.LinkProcess(parent, proc)
	proc.StartTime = rec.Time
	proc.Started = true
	return nil
}

// startAnyway records the start time of a process whose parent link was
// rejected as a lifecycle error. Malformed records stay unapplied.
func (d *Dispatcher) startAnyway(proc *graph.ProcessNode, rec tracelog.Record, err error) error {
	if IsLifecycle(err) {
		proc.StartTime = rec.Time
		proc.Started = true
	}
	return err
}

// accountable returns the process that owns file I/O for proc: its parent
// when the parent is piped, otherwise proc itself.
func (d *Dispatcher) accountable(proc *graph.ProcessNode) *graph.ProcessNode {
	if !proc.HasParent() {
		return proc
	}
	parent, ok := d.store.Process(proc.Parent)
	if ok && parent.Piped {
		return parent
	}
	return proc
}

func (d *Dispatcher) open(proc *graph.ProcessNode, rec tracelog.Record) error {
	m := openArgs.FindStringSubmatch(rec.Args)
	if m == nil {
		return newRecordError(ErrCodeMalformed, rec, "troubling fileinfo")
	}
	fd, err := strconv.Atoi(m[2])
	if err != nil {
		re := newRecordError(ErrCodeMalformed, rec, "file descriptor out of range")
		re.Err = err
		return re
	}

	if m[1] == "" {
		return newRecordError(ErrCodeMalformed, rec, "open names an empty path")
	}

	file := d.store.FileFor(m[1])
	if file == nil {
		return newRecordError(ErrCodeMalformed, rec, "open names the root or current directory")
	}

	mode := m[3]
	owner := d.accountable(proc)
	owner.FileDescriptors[fd] = file.ID
	if strings.ContainsAny(mode, "+wa") {
		d.store.RecordWrite(owner, file)
	}
	if strings.ContainsAny(mode, "+r") {
		d.store.RecordRead(owner, file)
	}
	return nil
}

func (d *Dispatcher) close(proc *graph.ProcessNode, rec tracelog.Record) error {
	m := closeArgs.FindStringSubmatch(rec.Args)
	if m == nil {
		return newRecordError(ErrCodeMalformed, rec, "troubling close info")
	}
	fd, errFD := strconv.Atoi(m[1])
	read, errRead := strconv.ParseInt(m[2], 10, 64)
	written, errWritten := strconv.ParseInt(m[3], 10, 64)
	for _, err := range []error{errFD, errRead, errWritten} {
		if err != nil {
			re := newRecordError(ErrCodeMalformed, rec, "close field out of range")
			re.Err = err
			return re
		}
	}

	id, ok := d.accountable(proc).FileDescriptors[fd]
	if !ok {
		return nil
	}
	file, ok := d.store.File(id)
	if !ok {
		return nil
	}
	file.BytesRead += read
	file.BytesWritten += written
	return nil
}

func (d *Dispatcher) argv(proc *graph.ProcessNode, rec tracelog.Record) error {
	proc.Argv = append(proc.Argv, rec.Args)
	if rec.Args == PipeToken {
		proc.Piped = true
	}
	return nil
}

func (d *Dispatcher) env(proc *graph.ProcessNode, rec tracelog.Record) error {
	proc.Env = append(proc.Env, rec.Args)
	return nil
}

func (d *Dispatcher) getenv(proc *graph.ProcessNode, rec tracelog.Record) error {
	proc.EnvQueries = append(proc.EnvQueries, rec.Args)
	return nil
}

func (d *Dispatcher) cwd(proc *graph.ProcessNode, rec tracelog.Record) error {
	proc.WorkDir = rec.Args
	return nil
}

func (d *Dispatcher) fini(proc *graph.ProcessNode, rec tracelog.Record) error {
	proc.EndTime = rec.Time
	proc.Ended = true
	if !proc.Started {
		return newRecordError(ErrCodeLifecycle, rec, "process ended without a start time")
	}
	proc.Duration = proc.EndTime - proc.StartTime
	return nil
}
