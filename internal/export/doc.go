// Package export writes a model snapshot to an SQLite database.
//
// The database is an output artifact for ad-hoc SQL over a finished build:
//   - snapshot: one row naming the load id and source log
//   - files: one row per file node, parent_id NULL for roots
//   - processes: one row per process node; lifecycle columns NULL when unseen
//   - file_access: reads and writes in the order they were recorded
//   - process_strings: argv, env and getenv values in order
//
// Nothing in skroot reads a snapshot back. Each Write replaces the previous
// contents in a single transaction.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - 5-second busy timeout
//   - Foreign key enforcement
package export
