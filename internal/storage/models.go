package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run records one finished pipeline request.
type Run struct {
	ID         string
	Topic      string
	ModuleID   string
	Status     string // "succeeded", "failed"
	Attempts   int
	LastOrigin string
	LastError  string
	VideoPath  string
	FromCache  bool
	Source     string // "api", "job", "mcp", "cli"
	DurationMs int64
	CreatedAt  time.Time
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	ResultJSON  string
}
