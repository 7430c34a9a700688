package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TaskRecord is the archived form of a task. Keep it schema-stable.
type TaskRecord struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Domain      string         `json:"domain"`
	Category    string         `json:"category"`
	Action      string         `json:"action"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Priority    string         `json:"priority"`
	Risk        string         `json:"risk"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt time.Time      `json:"completed_at"`
	ArchivedAt  time.Time      `json:"archived_at"`
}
