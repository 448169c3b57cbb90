package manager

import (
	"publishd/internal/media"
)

// EventKind classifies manager lifecycle events.
type EventKind int

const (
	// EventError reports a package that failed a pipeline stage.
	EventError EventKind = iota
	// EventComplete reports a package that reached its final state.
	EventComplete
	// EventRetry reports a package re-entering the pipeline.
	EventRetry
	// EventUpload reports a parked package resuming with a platform.
	EventUpload
	// EventParked reports a package stopping in waitingForUpload.
	EventParked
)

var eventKindNames = map[EventKind]string{
	EventError:    "error",
	EventComplete: "complete",
	EventRetry:    "retry",
	EventUpload:   "upload",
	EventParked:   "parked",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is the typed notification delivered to subscribers. Record is a
// snapshot taken when the event fired.
type Event struct {
	Kind   EventKind
	Record media.Record
	Code   media.ErrorCode
	Err    error
}
