package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	HistorySize int           // in-memory ring size; 0 means default (200)
}

// Entry records one runtime activity transition.
// Keep it compact and schema-stable.
type Entry struct {
	At      time.Time `json:"at"`
	Session string    `json:"session"`
	Kind    string    `json:"kind"`   // "state" | "manual" | "continuous" | "plan"
	Detail  string    `json:"detail"` // "idle"/"active", "on"/"off", or the plan's target
}
