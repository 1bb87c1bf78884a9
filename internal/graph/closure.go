package graph

import "slices"

// NodeKind distinguishes the two sides of the bipartite graph.
type NodeKind int

const (
	// KindFile marks a FileNode reference.
	KindFile NodeKind = iota + 1
	// KindProcess marks a ProcessNode reference.
	KindProcess
)

// NodeRef is a typed reference to either a file or a process.
type NodeRef struct {
	Kind NodeKind
	ID   int
}

// FileRef returns the NodeRef for a file id.
func FileRef(id FileID) NodeRef { return NodeRef{Kind: KindFile, ID: int(id)} }

// ProcessRef returns the NodeRef for a process id.
func ProcessRef(id ProcessID) NodeRef { return NodeRef{Kind: KindProcess, ID: int(id)} }

type markState uint8

const (
	unseen markState = iota
	discovered
	processed
)

// Closure returns every node reachable from start through expand, each
// exactly once, start included.
//
// The walk is an iterative depth-first search with a two-phase mark. The
// first pop of a node marks it discovered and pushes it back underneath its
// unseen neighbors; the second pop marks it processed and emits it. A
// discovered or processed node is never pushed again, so cycles terminate and
// each edge is followed at most once. The result is reverse postorder: start
// comes first and every node precedes the nodes it alone leads to.
func Closure[N comparable](start N, expand func(N) []N) []N {
	state := map[N]markState{}
	stack := []N{start}
	var out []N

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch state[n] {
		case processed:
			continue
		case discovered:
			state[n] = processed
			out = append(out, n)
		default:
			state[n] = discovered
			stack = append(stack, n)
			for _, next := range expand(n) {
				if state[next] == unseen {
					stack = append(stack, next)
				}
			}
		}
	}
	slices.Reverse(out)
	return out
}

// expandDependencies follows the "depends on" relation: a file depends on the
// processes that wrote it, a process depends on the files it read.
func (s *Store) expandDependencies(n NodeRef) []NodeRef {
	switch n.Kind {
	case KindFile:
		f, ok := s.File(FileID(n.ID))
		if !ok {
			return nil
		}
		refs := make([]NodeRef, len(f.Writers))
		for i, w := range f.Writers {
			refs[i] = ProcessRef(w)
		}
		return refs
	case KindProcess:
		p, ok := s.Process(ProcessID(n.ID))
		if !ok {
			return nil
		}
		refs := make([]NodeRef, len(p.ReadFiles))
		for i, r := range p.ReadFiles {
			refs[i] = FileRef(r)
		}
		return refs
	}
	return nil
}

// Dependencies returns the transitive dependency closure of a file, mixing
// files and processes.
func (s *Store) Dependencies(id FileID) []NodeRef {
	if _, ok := s.File(id); !ok {
		return nil
	}
	return Closure(FileRef(id), s.expandDependencies)
}

// FileDependencies returns every file the given file transitively depends
// on, the file itself included.
func (s *Store) FileDependencies(id FileID) []*FileNode {
	var files []*FileNode
	for _, ref := range s.Dependencies(id) {
		if ref.Kind == KindFile {
			files = append(files, s.files[ref.ID])
		}
	}
	return files
}

// ProcessDependencies returns every process the given file transitively
// depends on.
func (s *Store) ProcessDependencies(id FileID) []*ProcessNode {
	var procs []*ProcessNode
	for _, ref := range s.Dependencies(id) {
		if ref.Kind == KindProcess {
			procs = append(procs, s.processes[ref.ID])
		}
	}
	return procs
}
