package models

import "time"

// DelayedJob is a row of the job queue table. Only the columns every
// Delayed::Job-compatible schema carries are mapped.
type DelayedJob struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
