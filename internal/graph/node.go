package graph

import (
	"maps"
	"slices"
)

// FileID is the dense identity of a FileNode.
type FileID int

// ProcessID is the dense identity of a ProcessNode.
type ProcessID int

// NoFile and NoProcess mark an absent reference (no parent).
const (
	NoFile    FileID    = -1
	NoProcess ProcessID = -1
)

// FileNode represents one filesystem path as reported by the trace producer.
type FileNode struct {
	ID       FileID   `json:"id"`
	Path     string   `json:"path"`
	Parent   FileID   `json:"parent"` // NoFile for paths directly under "." or "/"
	Children []FileID `json:"children"`

	// Readers and Writers keep append order; a process appears once per open.
	Readers []ProcessID `json:"readers"`
	Writers []ProcessID `json:"writers"`

	// Counters accumulate close deltas as reported, including negative ones.
	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`
}

// HasParent reports whether the file has a materialized parent directory.
func (f *FileNode) HasParent() bool {
	return f.Parent != NoFile
}

// Clone returns a deep copy safe to use after the gate is released.
func (f *FileNode) Clone() FileNode {
	c := *f
	c.Children = slices.Clone(f.Children)
	c.Readers = slices.Clone(f.Readers)
	c.Writers = slices.Clone(f.Writers)
	return c
}

// ProcessNode represents one operating-system process instance, keyed by pid.
//
// A node may exist before any of its lifecycle events were seen (it was named
// by an open, or as someone's parent); fields fill in as later records arrive.
type ProcessNode struct {
	ID       ProcessID   `json:"id"`
	PID      string      `json:"pid"`
	Parent   ProcessID   `json:"parent"`
	Children []ProcessID `json:"children"`

	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
	Duration  int64 `json:"duration"`
	Started   bool  `json:"started"`
	Ended     bool  `json:"ended"`

	WorkDir    string   `json:"work_dir"`
	Argv       []string `json:"argv"`
	Env        []string `json:"env"`
	EnvQueries []string `json:"env_queries"`

	// FileDescriptors maps open fds to files. When this process is a child of
	// a piped process, its descriptors live on the parent instead.
	FileDescriptors map[int]FileID `json:"-"`
	Piped           bool           `json:"piped"`

	ReadFiles  []FileID `json:"read_files"`
	WriteFiles []FileID `json:"write_files"`
}

// HasParent reports whether a start or fork record linked this process to a parent.
func (p *ProcessNode) HasParent() bool {
	return p.Parent != NoProcess
}

// Clone returns a deep copy safe to use after the gate is released.
func (p *ProcessNode) Clone() ProcessNode {
	c := *p
	c.Children = slices.Clone(p.Children)
	c.Argv = slices.Clone(p.Argv)
	c.Env = slices.Clone(p.Env)
	c.EnvQueries = slices.Clone(p.EnvQueries)
	c.ReadFiles = slices.Clone(p.ReadFiles)
	c.WriteFiles = slices.Clone(p.WriteFiles)
	c.FileDescriptors = maps.Clone(p.FileDescriptors)
	return c
}
