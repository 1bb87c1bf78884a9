package tracelog

import "fmt"

// EventType is the closed set of record types the producer emits.
type EventType int

const (
	// EventUnknown is any type name not listed below.
	EventUnknown EventType = iota
	EventInit
	EventStart
	EventFork
	EventOpen
	EventClose
	EventMiss
	EventArgv
	EventEnv
	EventGetenv
	EventForking
	EventCwd
	// EventFini covers both "fini" and its alias "exit".
	EventFini
)

var eventNames = map[string]EventType{
	"init":    EventInit,
	"start":   EventStart,
	"fork":    EventFork,
	"open":    EventOpen,
	"close":   EventClose,
	"miss":    EventMiss,
	"argv":    EventArgv,
	"env":     EventEnv,
	"getenv":  EventGetenv,
	"forking": EventForking,
	"cwd":     EventCwd,
	"fini":    EventFini,
	"exit":    EventFini,
}

// ParseEventType maps a type name to its EventType. Unrecognized names,
// including the empty name, yield EventUnknown.
func ParseEventType(name string) EventType {
	return eventNames[name]
}

// String returns the canonical type name.
func (t EventType) String() string {
	switch t {
	case EventInit:
		return "init"
	case EventStart:
		return "start"
	case EventFork:
		return "fork"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventMiss:
		return "miss"
	case EventArgv:
		return "argv"
	case EventEnv:
		return "env"
	case EventGetenv:
		return "getenv"
	case EventForking:
		return "forking"
	case EventCwd:
		return "cwd"
	case EventFini:
		return "fini"
	default:
		return "unknown"
	}
}

// Record is one logical, continuation-merged line of the log.
type Record struct {
	PID  string
	Time int64
	Type EventType
	// TypeName is the name as written in the log ("exit", "stat", "").
	TypeName string
	Args     string
	// Line is the 1-based physical line number the record ended on.
	Line int
}

func (r Record) String() string {
	return fmt.Sprintf("%s %d %s: %s", r.PID, r.Time, r.TypeName, r.Args)
}
