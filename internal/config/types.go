package config

import (
	"bytes"
	"encoding/json"
)

// Config is the daemon configuration file.
//
// Example (YAML):
//
//	timezone: Asia/Jakarta
//	logging: { level: info, console: true }
//	storage: { driver: sqlite, path: ./runs.db }
//	jobs:
//	  - id: heartbeat
//	    schedule: "*/30 * * * * *"
//	    start: true
//	    action: { type: log, message: alive }
type Config struct {
	// Timezone is the scheduler default zone. Changing it requires a restart.
	Timezone string         `json:"timezone"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`

	// ShutdownTimeout bounds the wait for in-flight runs on exit (Go duration string).
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	// Watchdog enables systemd WATCHDOG pings when the unit asks for them.
	Watchdog bool `json:"watchdog,omitempty"`

	HTTP *HTTPConfig `json:"http,omitempty"`

	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the run-history store.
//
//	"storage": { "driver": "file", "path": "./cronsched_runs" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// Retain caps the runs kept per job. 0 keeps the storage default (200).
	Retain int `json:"retain,omitempty"`
}

// HTTPConfig controls the status API.
//
// Security: prefer binding to localhost (default). A non-loopback address
// needs Token or AllowInsecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// JobConfig describes one scheduled job.
//
// Schedule accepts "cron:<pattern>", "at:<RFC3339>", a bare RFC3339 timestamp
// or a bare cron pattern (5 or 6 fields, or an @descriptor).
type JobConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`

	Start             bool `json:"start"`
	RunOnInit         bool `json:"run_on_init,omitempty"`
	WaitForCompletion bool `json:"wait_for_completion,omitempty"`

	// Threshold is the misfire threshold (Go duration). "off" disables it.
	Threshold string `json:"threshold,omitempty"`
	Timeout   string `json:"timeout,omitempty"`

	Action ActionConfig `json:"action"`
}

// ActionConfig selects what a config-defined job does on every fire.
type ActionConfig struct {
	Type string `json:"type"` // log | exec | http | systemd

	// log
	Message string `json:"message,omitempty"`

	// exec
	Command []string          `json:"command,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// http
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// systemd
	Unit string `json:"unit,omitempty"`
	Op   string `json:"op,omitempty"` // start | stop | restart
}

// UnmarshalJSON rejects unknown keys inside an action block, so a typo in one
// job is caught at load time.
func (a *ActionConfig) UnmarshalJSON(b []byte) error {
	type plain ActionConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*a = ActionConfig(p)
	return nil
}
