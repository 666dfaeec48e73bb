package events

import (
	"encoding/json"
	"time"
)

// Event name constants
const (
	SolveCompleted = "solve.completed"
	SweepCompleted = "sweep.completed"
	HealthSnapshot = "health.snapshot"

	HealthSnapshotUpcoming = "health.snapshot.upcoming"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SolveCompletedEvent is the typed payload for solve.completed.
type SolveCompletedEvent struct {
	RequestID    string  `json:"requestId"`
	ParameterSet string  `json:"parameterSet,omitempty"`
	CellCapacity float64 `json:"cellCapacity,omitempty"`
	Error        string  `json:"error,omitempty"`
	Ts           int64   `json:"ts"`
}

// SweepCompletedEvent is the typed payload for sweep.completed.
type SweepCompletedEvent struct {
	RequestID    string `json:"requestId"`
	ParameterSet string `json:"parameterSet"`
	Points       int    `json:"points"`
	Failed       int    `json:"failed"`
	Ts           int64  `json:"ts"`
}

// HealthSnapshotUpcomingEvent is the typed payload for
// health.snapshot.upcoming.
type HealthSnapshotUpcomingEvent struct {
	At time.Time `json:"at"`
	Ts int64     `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.SolveCompletedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.RequestID, payload.CellCapacity)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
