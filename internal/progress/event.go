// Package progress carries batch and import progress from workflows to
// HTTP clients as an ordered event sequence ending in one terminal event.
package progress

import "time"

type EventType string

const (
	Connected EventType = "connected"
	Progress  EventType = "progress"
	Warning   EventType = "warning"
	Error     EventType = "error"
	Complete  EventType = "complete"
)

func (t EventType) Terminal() bool {
	return t == Complete || t == Error
}

type ErrorInfo struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type Event struct {
	Seq        int        `json:"seq"`
	Type       EventType  `json:"type"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	Item       int        `json:"item,omitempty"` // 1-based
	Total      int        `json:"total,omitempty"`
	DocumentID string     `json:"document_id,omitempty"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

// Log is the producer-side record kept inside a workflow. It is plain data
// so it replays deterministically; callers stamp At from workflow time.
//
// A log continuing an earlier one starts at Base and never reports progress
// below Floor, so readers see one unbroken sequence.
type Log struct {
	Events []Event `json:"events"`
	Base   int     `json:"base,omitempty"`
	Floor  int     `json:"floor,omitempty"`
}

// Append assigns the next sequence number, keeps progress monotonic and
// ignores anything after a terminal event. It reports whether e was kept.
func (l *Log) Append(e Event) bool {
	floor := l.Floor
	if n := len(l.Events); n > 0 {
		last := l.Events[n-1]
		if last.Type.Terminal() {
			return false
		}
		floor = last.Progress
	}
	if e.Progress < floor {
		e.Progress = floor
	}
	e.Progress = clamp(e.Progress)
	if e.Type == Complete {
		e.Progress = 100
	}
	e.Seq = l.Base + len(l.Events) + 1
	l.Events = append(l.Events, e)
	return true
}

// Since returns the events with Seq greater than after.
func (l *Log) Since(after int) []Event {
	after -= l.Base
	if after < 0 {
		after = 0
	}
	if after >= len(l.Events) {
		return []Event{}
	}
	out := make([]Event, len(l.Events)-after)
	copy(out, l.Events[after:])
	return out
}

// Position returns the last sequence number and progress, the point a
// continuing log resumes from.
func (l *Log) Position() (seq, progress int) {
	if n := len(l.Events); n > 0 {
		return l.Events[n-1].Seq, l.Events[n-1].Progress
	}
	return l.Base, l.Floor
}

func (l *Log) Done() bool {
	n := len(l.Events)
	return n > 0 && l.Events[n-1].Type.Terminal()
}

func clamp(p int) int {
	return min(max(p, 0), 100)
}
