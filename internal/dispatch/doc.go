// Package dispatch applies trace records to the provenance graph.
//
// Each record names a process (by pid) and an event type. The Dispatcher looks
// the process up in the graph.Store, creating it if needed, and runs the
// handler registered for the type:
//
//	init, miss, forking   no-op
//	start                 link to parent if none yet, set start time
//	fork                  link to parent unconditionally, set start time
//	open                  resolve file, classify mode, cross-link, record fd
//	close                 add byte deltas to the file behind the fd
//	argv, env, getenv     append to the process's lists
//	cwd                   set working directory
//	fini / exit           set end time and duration
//
// # Pipe Redirection
//
// A process whose argv contains "-pipe" is a pass-through (the compiler
// driver spawning its pipeline). File I/O of its children is accounted to it:
// open and close records from a child of a piped process resolve
// descriptors and access links on the parent.
//
// # Errors
//
// Problems with a single record are reported as *RecordError and never leave
// the graph half-updated for that record. They are meant to be logged and
// skipped; see IsMalformed, IsUnknownType and IsLifecycle.
//
// Dispatcher is not safe for concurrent use; callers hold the model gate.
package dispatch
