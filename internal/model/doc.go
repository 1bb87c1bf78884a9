// Package model owns the provenance graph of one trace log and the gate that
// serializes access to it.
//
// ARCHITECTURE:
//
// One background goroutine runs Load, which reads the log from byte 0 to the
// end of file it reaches and applies each record under the gate. Any number
// of query goroutines call the read methods (FileByID, FileDependencies,
// WithModel, ...), which take the same gate for the whole operation.
//
// Gate:
// A single sync.Mutex. There is no reader/writer split: queries are cheap
// graph walks and simplicity wins over throughput. The loader holds the gate
// for exactly one record at a time, so a query always sees the graph as of the
// last fully dispatched record and never a partially applied one.
//
// Progress counters (bytes consumed, parse time) are atomics read without the
// gate; they may lag the graph slightly.
//
// Failure model:
//   - Malformed lines, unknown types and inconsistent lifecycle data are
//     logged by the parser/dispatcher and skipped.
//   - I/O errors on the log and panics inside dispatch abort Load with an
//     error; the hosting process is expected to stop serving.
//
// Query results are deep copies, safe to use after the gate is released.
package model
