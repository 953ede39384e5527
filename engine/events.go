package engine

// Stats summarises one generation run. For a run that was not cancelled the
// three counters sum to the requested edition count.
type Stats struct {
	Success    int `json:"success"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Event is a notification delivered to the host over the engine's event
// channel. Events are emitted in order by a single owner; consumers must
// keep draining the channel until it is closed after the DoneEvent.
type Event interface {
	isEvent()
}

// LogEvent carries a human readable progress or warning message.
type LogEvent struct {
	Message string
}

// ProgressEvent reports how many editions have been completed so far,
// regardless of outcome.
type ProgressEvent struct {
	Completed int
	Total     int
}

// DoneEvent is the final event of a run.
type DoneEvent struct {
	Stats Stats
}

func (LogEvent) isEvent()      {}
func (ProgressEvent) isEvent() {}
func (DoneEvent) isEvent()     {}

func (e *Engine) emit(event Event) {
	if e.events == nil {
		return
	}
	e.events <- event
}
