package graph

import "strings"

// Store owns the file and process tables.
//
// Lookup by id is an index into a dense slice; lookup by key (path or pid)
// goes through a map. Both tables only grow.
type Store struct {
	files     []*FileNode
	processes []*ProcessNode
	fileIndex map[string]FileID
	procIndex map[string]ProcessID
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		files:     make([]*FileNode, 0, 256),
		processes: make([]*ProcessNode, 0, 64),
		fileIndex: make(map[string]FileID),
		procIndex: make(map[string]ProcessID),
	}
}

// ProcessFor returns the process registered for pid, creating and
// registering it with the next dense id on first reference.
func (s *Store) ProcessFor(pid string) *ProcessNode {
	if id, ok := s.procIndex[pid]; ok {
		return s.processes[id]
	}
	p := &ProcessNode{
		ID:              ProcessID(len(s.processes)),
		PID:             pid,
		Parent:          NoProcess,
		FileDescriptors: make(map[int]FileID),
	}
	s.processes = append(s.processes, p)
	s.procIndex[pid] = p.ID
	return p
}

// FileFor returns the file registered for path, creating it on first
// reference. Creating a file first resolves its parent directory the same
// way, so ancestry is materialized lazily from the leaf up.
//
// "." and "/" are never materialized: FileFor returns nil for them, which is
// how a top-level path ends up with no parent.
func (s *Store) FileFor(path string) *FileNode {
	if path == "." || path == "/" {
		return nil
	}
	if id, ok := s.fileIndex[path]; ok {
		return s.files[id]
	}

	parent := NoFile
	if dir := s.FileFor(splitDir(path)); dir != nil {
		parent = dir.ID
	}

	f := &FileNode{
		ID:     FileID(len(s.files)),
		Path:   path,
		Parent: parent,
	}
	s.files = append(s.files, f)
	s.fileIndex[path] = f.ID
	if parent != NoFile {
		s.files[parent].Children = append(s.files[parent].Children, f.ID)
	}
	return f
}

// File returns the file with the given id.
func (s *Store) File(id FileID) (*FileNode, bool) {
	if id < 0 || int(id) >= len(s.files) {
		return nil, false
	}
	return s.files[id], true
}

// Process returns the process with the given id.
func (s *Store) Process(id ProcessID) (*ProcessNode, bool) {
	if id < 0 || int(id) >= len(s.processes) {
		return nil, false
	}
	return s.processes[id], true
}

// LookupFile finds a file by path without creating it.
func (s *Store) LookupFile(path string) (*FileNode, bool) {
	id, ok := s.fileIndex[path]
	if !ok {
		return nil, false
	}
	return s.files[id], true
}

// LookupProcess finds a process by pid without creating it.
func (s *Store) LookupProcess(pid string) (*ProcessNode, bool) {
	id, ok := s.procIndex[pid]
	if !ok {
		return nil, false
	}
	return s.processes[id], true
}

// FileCount returns the number of registered files.
func (s *Store) FileCount() int {
	return len(s.files)
}

// ProcessCount returns the number of registered processes.
func (s *Store) ProcessCount() int {
	return len(s.processes)
}

// Files returns the file table in id order. The slice must not be modified.
func (s *Store) Files() []*FileNode {
	return s.files
}

// Processes returns the process table in id order. The slice must not be modified.
func (s *Store) Processes() []*ProcessNode {
	return s.processes
}

// RootFiles returns files without a parent, in id order.
func (s *Store) RootFiles() []*FileNode {
	var roots []*FileNode
	for _, f := range s.files {
		if !f.HasParent() {
			roots = append(roots, f)
		}
	}
	return roots
}

// RootProcesses returns processes without a parent, in id order.
func (s *Store) RootProcesses() []*ProcessNode {
	var roots []*ProcessNode
	for _, p := range s.processes {
		if !p.HasParent() {
			roots = append(roots, p)
		}
	}
	return roots
}

// LinkProcess records parent as the parent of child and appends child to
// parent's children. Repeated links are not deduplicated.
func (s *Store) LinkProcess(parent, child *ProcessNode) {
	child.Parent = parent.ID
	parent.Children = append(parent.Children, child.ID)
}

// RecordRead cross-links a read access on both nodes.
func (s *Store) RecordRead(p *ProcessNode, f *FileNode) {
	p.ReadFiles = append(p.ReadFiles, f.ID)
	f.Readers = append(f.Readers, p.ID)
}

// RecordWrite cross-links a write access on both nodes.
func (s *Store) RecordWrite(p *ProcessNode, f *FileNode) {
	p.WriteFiles = append(p.WriteFiles, f.ID)
	f.Writers = append(f.Writers, p.ID)
}

// splitDir returns the directory part of path the way dirname(1) does,
// without cleaning "." or ".." segments.
func splitDir(path string) string {
	if path == "" {
		return "."
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	i := strings.LastIndexByte(trimmed, '/')
	if i < 0 {
		return "."
	}
	dir := strings.TrimRight(trimmed[:i], "/")
	if dir == "" {
		return "/"
	}
	return dir
}
