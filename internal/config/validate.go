package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"cronsched/internal/cronexpr"
	"cronsched/internal/tzone"
	logx "cronsched/pkg/logx"
)

var ErrInvalidConfig = errors.New("invalid config")

var (
	actionTypes = map[string]bool{"log": true, "exec": true, "http": true, "systemd": true}
	unitOps     = map[string]bool{"start": true, "stop": true, "restart": true}
)

// Validate checks everything the daemon would otherwise reject at schedule
// time, so a bad reload is refused before anything is torn down.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if r := tzone.Validate(cfg.Timezone); !r.Valid {
		add("timezone: %w", r.Err)
	}
	if _, err := ParseDurationField("shutdown_timeout", cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add("storage.driver: unknown driver %q", st.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if st.Retain < 0 {
			add("storage.retain: must be >= 0")
		}
	}

	if h := cfg.HTTP; h != nil {
		if h.Addr != "" {
			if _, _, err := net.SplitHostPort(h.Addr); err != nil {
				add("http.addr: %w", err)
			}
		}
		for _, f := range [][2]string{
			{"http.read_timeout", h.ReadTimeout},
			{"http.write_timeout", h.WriteTimeout},
			{"http.idle_timeout", h.IdleTimeout},
		} {
			if _, err := ParseDurationField(f[0], f[1]); err != nil {
				errs = append(errs, err)
			}
		}
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		id := strings.TrimSpace(j.ID)
		if id == "" {
			add("%s.id: required", path)
		} else {
			path = fmt.Sprintf("jobs[%s]", id)
			if seen[id] {
				add("%s: duplicate id", path)
			}
			seen[id] = true
		}
		if expr, err := cronexpr.ParseExpression(j.Schedule); err != nil {
			add("%s.schedule: %w", path, err)
		} else if _, err := cronexpr.Validate(expr); err != nil {
			add("%s.schedule: %w", path, err)
		}
		if j.Timezone != "" {
			if r := tzone.Validate(j.Timezone); !r.Valid {
				add("%s.timezone: %w", path, r.Err)
			}
		}
		if _, err := ParseThreshold(path+".threshold", j.Threshold); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
			errs = append(errs, err)
		}
		if err := validateAction(j.Action); err != nil {
			add("%s.action: %w", path, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func validateAction(a ActionConfig) error {
	typ := strings.ToLower(strings.TrimSpace(a.Type))
	if !actionTypes[typ] {
		return fmt.Errorf("unknown type %q", a.Type)
	}
	switch typ {
	case "exec":
		if len(a.Command) == 0 || strings.TrimSpace(a.Command[0]) == "" {
			return errors.New("command required")
		}
	case "http":
		u, err := url.Parse(strings.TrimSpace(a.URL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid url %q", a.URL)
		}
	case "systemd":
		if strings.TrimSpace(a.Unit) == "" {
			return errors.New("unit required")
		}
		if op := strings.ToLower(strings.TrimSpace(a.Op)); op != "" && !unitOps[op] {
			return fmt.Errorf("unknown op %q", a.Op)
		}
	}
	return nil
}

// LogxConfig maps the logging section onto pkg/logx.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
