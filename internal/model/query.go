package model

import (
	"fmt"
	"os"
	"time"

	"github.com/roach88/skroot/internal/graph"
)

// Stats summarizes the model for status pages.
type Stats struct {
	Path            string        `json:"path"`
	LoadID          string        `json:"load_id"`
	State           State         `json:"state"`
	Files           int           `json:"files"`
	Processes       int           `json:"processes"`
	BytesConsumed   int64         `json:"bytes_consumed"`
	SkippedLines    int64         `json:"skipped_lines"`
	RejectedRecords int64         `json:"rejected_records"`
	ParseTime       time.Duration `json:"parse_time_ns"`
}

// Snapshot is a deep copy of the whole graph taken under the gate.
type Snapshot struct {
	LoadID        string
	Path          string
	BytesConsumed int64
	Files         []graph.FileNode
	Processes     []graph.ProcessNode
}

// WithModel runs fn with exclusive access to the store, for compound reads
// that must see one consistent state. fn must not retain the store or any
// node pointer after returning, and must not call other Model query methods.
func (m *Model) WithModel(fn func(s *graph.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.store)
}

// FileByID returns a copy of the file with the given id.
func (m *Model) FileByID(id graph.FileID) (graph.FileNode, error) {
	var out graph.FileNode
	err := m.WithModel(func(s *graph.Store) error {
		f, ok := s.File(id)
		if !ok {
			return fmt.Errorf("file %d: %w", id, ErrNotFound)
		}
		out = f.Clone()
		return nil
	})
	return out, err
}

// ProcessByID returns a copy of the process with the given id.
func (m *Model) ProcessByID(id graph.ProcessID) (graph.ProcessNode, error) {
	var out graph.ProcessNode
	err := m.WithModel(func(s *graph.Store) error {
		p, ok := s.Process(id)
		if !ok {
			return fmt.Errorf("process %d: %w", id, ErrNotFound)
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// RootFiles returns copies of all files without a parent.
func (m *Model) RootFiles() []graph.FileNode {
	var out []graph.FileNode
	_ = m.WithModel(func(s *graph.Store) error {
		out = CloneFiles(s.RootFiles())
		return nil
	})
	return out
}

// RootProcesses returns copies of all processes without a parent.
func (m *Model) RootProcesses() []graph.ProcessNode {
	var out []graph.ProcessNode
	_ = m.WithModel(func(s *graph.Store) error {
		out = CloneProcesses(s.RootProcesses())
		return nil
	})
	return out
}

// FileDependencies returns every file the given file transitively depends
// on, itself included.
func (m *Model) FileDependencies(id graph.FileID) ([]graph.FileNode, error) {
	var out []graph.FileNode
	err := m.WithModel(func(s *graph.Store) error {
		if _, ok := s.File(id); !ok {
			return fmt.Errorf("file %d: %w", id, ErrNotFound)
		}
		out = CloneFiles(s.FileDependencies(id))
		return nil
	})
	return out, err
}

// ProcessDependencies returns every process the given file transitively
// depends on.
func (m *Model) ProcessDependencies(id graph.FileID) ([]graph.ProcessNode, error) {
	var out []graph.ProcessNode
	err := m.WithModel(func(s *graph.Store) error {
		if _, ok := s.File(id); !ok {
			return fmt.Errorf("file %d: %w", id, ErrNotFound)
		}
		out = CloneProcesses(s.ProcessDependencies(id))
		return nil
	})
	return out, err
}

// Progress returns bytes consumed so far and the current size of the log.
// It does not take the gate.
func (m *Model) Progress() (consumed, total int64, err error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return m.consumed.Load(), 0, fmt.Errorf("stat trace log: %w", err)
	}
	return m.consumed.Load(), info.Size(), nil
}

// LastModified returns the modification time of the log.
func (m *Model) LastModified() (time.Time, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat trace log: %w", err)
	}
	return info.ModTime(), nil
}

// ParseTime returns the cumulative wall time spent parsing records.
func (m *Model) ParseTime() time.Duration {
	return time.Duration(m.parseTime.Load())
}

// Stats returns node counts and load counters.
func (m *Model) Stats() Stats {
	files, procs := m.counts()
	return Stats{
		Path:            m.path,
		LoadID:          m.loadID,
		State:           m.State(),
		Files:           files,
		Processes:       procs,
		BytesConsumed:   m.consumed.Load(),
		SkippedLines:    m.skipped.Load(),
		RejectedRecords: m.rejected.Load(),
		ParseTime:       m.ParseTime(),
	}
}

// Snapshot copies the whole graph under the gate.
func (m *Model) Snapshot() Snapshot {
	snap := Snapshot{LoadID: m.loadID, Path: m.path}
	_ = m.WithModel(func(s *graph.Store) error {
		snap.BytesConsumed = m.consumed.Load()
		snap.Files = CloneFiles(s.Files())
		snap.Processes = CloneProcesses(s.Processes())
		return nil
	})
	return snap
}

// CloneFiles deep-copies a list of file nodes.
func CloneFiles(files []*graph.FileNode) []graph.FileNode {
	out := make([]graph.FileNode, len(files))
	for i, f := range files {
		out[i] = f.Clone()
	}
	return out
}

// CloneProcesses deep-copies a list of process nodes.
func CloneProcesses(procs []*graph.ProcessNode) []graph.ProcessNode {
	out := make([]graph.ProcessNode, len(procs))
	for i, p := range procs {
		out[i] = p.Clone()
	}
	return out
}
