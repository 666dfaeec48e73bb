package types

import "time"

// HealthScheduleStatus describes the daemon's host battery snapshot
// schedule.
type HealthScheduleStatus struct {
	// Schedule is the cron expression, empty when disabled.
	Schedule  string     `json:"schedule"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	Postponed bool       `json:"postponed,omitempty"`
}

// PostponeRequest is the body of POST /health-schedule/postpone.
type PostponeRequest struct {
	// Duration is a Go duration string such as "90m".
	Duration string `json:"duration"`
}
