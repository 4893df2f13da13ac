package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Runtime controls the motion scheduler itself.
	Runtime RuntimeConfig `json:"runtime"`

	// Journal persists runtime activity transitions. Omitted means disabled.
	Journal *JournalConfig `json:"journal,omitempty"`

	// Pprof exposes the optional diagnostics HTTP server.
	Pprof PprofConfig `json:"pprof,omitempty"`

	// Sequencer controls the cron-driven plan submitter.
	Sequencer SequencerConfig `json:"sequencer"`

	// Sequence lists the scheduled scene submissions.
	Sequence []SequenceEntry `json:"sequence,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    FileLoggingConfig `json:"file"`
}

type FileLoggingConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// RuntimeConfig tunes the frame pump.
//
// FrameRate is in frames per second; 0 means the default (60).
type RuntimeConfig struct {
	FrameRate int `json:"frame_rate,omitempty"`
}

// JournalConfig configures the activity journal.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// BusyTimeout is a Go duration string (sqlite only). HistorySize bounds the
// in-memory recent-entry ring (0 means default).
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// BusyTimeoutDuration parses the BusyTimeout field. Nil receiver or an
// empty field yields zero (driver default).
func (j *JournalConfig) BusyTimeoutDuration() (time.Duration, error) {
	if j == nil {
		return 0, nil
	}
	return fieldDuration("journal.busy_timeout", j.BusyTimeout)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Prefer binding to localhost (default). If binding to a non-loopback
// address, set Token or enable AllowInsecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// SequencerConfig controls sequence execution.
//
// Enabled is a pointer so we can distinguish "omitted" (default true when
// any sequence entries exist) from an explicit false.
type SequencerConfig struct {
	Enabled   *bool `json:"enabled,omitempty"`
	QueueSize int   `json:"queue_size,omitempty"`
}

// SequenceEntry schedules one scene submission.
//
// Schedule accepts the same forms as the sequencer parser: a cron
// expression ("*/5 * * * *", "@hourly"), a Go duration ("45s"), or HH:MM.
// Duration and Period are Go duration strings interpreted by the scene.
type SequenceEntry struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Scene    string `json:"scene"`
	Target   string `json:"target"`
	Duration string `json:"duration,omitempty"`
	Period   string `json:"period,omitempty"`
}

// DurationOrDefault parses the Duration field, falling back to def when the
// field is empty or zero.
func (e SequenceEntry) DurationOrDefault(def time.Duration) (time.Duration, error) {
	return fieldDurationOrDefault("sequence.duration", e.Duration, def)
}

// PeriodOrDefault parses the Period field, falling back to def when the
// field is empty or zero.
func (e SequenceEntry) PeriodOrDefault(def time.Duration) (time.Duration, error) {
	return fieldDurationOrDefault("sequence.period", e.Period, def)
}

// fieldDuration parses a Go duration config field. An empty field means
// absent and yields zero; negative durations are rejected.
func fieldDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func fieldDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := fieldDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
