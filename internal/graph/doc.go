// Package graph holds the in-memory provenance graph rebuilt from a trace log.
//
// The graph is bipartite: FileNodes and ProcessNodes, linked by read/write
// accesses, plus two trees (directory ancestry for files, parent/child for
// processes). Nodes live in dense arenas and refer to each other by id, never
// by pointer, so back-references cannot form ownership cycles.
//
// # Identity
//
//   - One FileNode per distinct path string, one ProcessNode per distinct pid
//     string, for the lifetime of the Store.
//   - Ids are assigned densely in first-reference order and never reused.
//   - Nodes are never deleted; the graph only grows.
//
// # Thread Safety
//
// Store is NOT safe for concurrent use. Callers serialize access externally
// (see package model, which owns the single gate).
package graph
