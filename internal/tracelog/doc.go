// Package tracelog parses the trace log written by the skroot preload library.
//
// Each logical record has the grammar
//
//	<pid> <time> <type>: <rest-of-line>
//
// where pid and time are decimal integers, type is a lowercase word (possibly
// empty) and rest-of-line is free-form, interpreted per type by package
// dispatch. A physical line ending in a backslash continues on the next line;
// the fragments are joined with the backslash removed before matching.
//
// Reader is a forward-only cursor over one log. To restart from the beginning,
// open the file again and create a new Reader.
package tracelog
