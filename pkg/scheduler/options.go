package scheduler

import (
	"math"
	"strings"
	"time"

	"cronsched/internal/tzone"
)

// DefaultThreshold is the misfire threshold used when JobOptions.Threshold is zero.
const DefaultThreshold = 250 * time.Millisecond

// StrictThreshold requests a zero threshold: any wake-up later than the
// scheduled instant is skipped. A literal zero means DefaultThreshold.
const StrictThreshold time.Duration = math.MinInt64

// JobOptions are per-job overrides. The zero value is a valid set of options.
type JobOptions struct {
	// Name is diagnostic only; it is copied into every event.
	Name string

	// Start arms the job as part of Schedule.
	Start bool

	// RunOnInit fires once, asynchronously, right after the job is created.
	RunOnInit bool

	// WaitForCompletion skips fires that would overlap an in-flight run.
	WaitForCompletion bool

	// Threshold is the maximum lateness of a wake-up before the fire is
	// skipped. Zero means DefaultThreshold, StrictThreshold means no
	// lateness at all, any other negative value disables the check.
	Threshold time.Duration

	// TimeZone overrides the scheduler zone. Empty means the scheduler zone.
	TimeZone string

	// Timeout bounds each run's context. Zero means no deadline.
	Timeout time.Duration
}

// ResolvedOptions is JobOptions with every default applied.
type ResolvedOptions struct {
	Name              string
	Start             bool
	RunOnInit         bool
	WaitForCompletion bool
	Threshold         time.Duration
	TimeZone          string
	Timeout           time.Duration

	location *time.Location
}

// Location returns the loaded time zone.
func (o ResolvedOptions) Location() *time.Location { return o.location }

func resolveOptions(defaultZone string, defaultLoc *time.Location, o JobOptions) (ResolvedOptions, error) {
	r := ResolvedOptions{
		Name:              strings.TrimSpace(o.Name),
		Start:             o.Start,
		RunOnInit:         o.RunOnInit,
		WaitForCompletion: o.WaitForCompletion,
		Threshold:         o.Threshold,
		TimeZone:          defaultZone,
		Timeout:           o.Timeout,
		location:          defaultLoc,
	}
	switch r.Threshold {
	case 0:
		r.Threshold = DefaultThreshold
	case StrictThreshold:
		r.Threshold = 0
	}
	if r.Timeout < 0 {
		r.Timeout = 0
	}
	if o.TimeZone != "" && o.TimeZone != defaultZone {
		loc, err := tzone.Load(o.TimeZone)
		if err != nil {
			return ResolvedOptions{}, err
		}
		r.TimeZone = o.TimeZone
		r.location = loc
	}
	return r, nil
}
