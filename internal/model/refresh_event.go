package model

import "time"

// RefreshStatus is the outcome of a single refresh attempt.
type RefreshStatus string

const (
	RefreshSuccess RefreshStatus = "success"
	RefreshFailed  RefreshStatus = "failed"
	RefreshSkipped RefreshStatus = "skipped"
)

// RefreshEvent records one refresh attempt for the audit log.
// It never carries token values.
type RefreshEvent struct {
	ID         string        `json:"id"`
	Status     RefreshStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	ExpiryDate int64         `json:"expiry_date,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
}
