package engine

import (
	"sync"
	"time"
)

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

func (p OverlapPolicy) String() string {
	if p == OverlapSkipIfRunning {
		return "skip_if_running"
	}
	return "allow"
}

// RunState tracks how many runs of one job are in flight and gates new runs
// according to the overlap policy.
type RunState struct {
	mu       sync.Mutex
	policy   OverlapPolicy
	inflight int
	changed  chan struct{}
}

func NewRunState(policy OverlapPolicy) *RunState {
	return &RunState{policy: policy}
}

// TryAcquire admits a run. It fails only under OverlapSkipIfRunning while
// another run is in flight.
func (s *RunState) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy == OverlapSkipIfRunning && s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) Release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	if s.changed != nil {
		close(s.changed)
		s.changed = nil
	}
	s.mu.Unlock()
}

func (s *RunState) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// Changed returns the current in-flight count and a channel closed on the
// next Release.
func (s *RunState) Changed() (int, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.inflight, s.changed
}

type HistoryItem struct {
	Run       uint64
	Scheduled time.Time
	Started   time.Time
	Duration  time.Duration
	Error     string
}

const defaultHistorySize = 16

// History is a bounded ring of the most recent runs.
type History struct {
	mu    sync.Mutex
	size  int
	items []HistoryItem
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{size: size}
}

func (h *History) Add(it HistoryItem) {
	h.mu.Lock()
	h.items = append(h.items, it)
	if len(h.items) > h.size {
		h.items = h.items[len(h.items)-h.size:]
	}
	h.mu.Unlock()
}

// Items returns a copy, oldest first.
func (h *History) Items() []HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryItem, len(h.items))
	copy(out, h.items)
	return out
}
