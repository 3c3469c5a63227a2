package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultRetain is the number of runs kept per job when Config.Retain is 0.
const DefaultRetain = 200

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Retain caps the runs kept per job. 0 means DefaultRetain.
	Retain int
}

// RunRecord is one finished run. Keep it compact and schema-stable.
type RunRecord struct {
	ID         string        `json:"id"`
	JobID      string        `json:"job_id"`
	Name       string        `json:"name,omitempty"`
	Run        uint64        `json:"run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Took       time.Duration `json:"took"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
}

func (c Config) retain() int {
	if c.Retain <= 0 {
		return DefaultRetain
	}
	return c.Retain
}
