package httpapi

import (
	"time"

	"cronsched/pkg/scheduler"
)

type jobView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Expression string    `json:"expression"`
	TimeZone   string    `json:"timezone"`
	State      string    `json:"state"`
	Next       time.Time `json:"next,omitempty"`

	WaitForCompletion bool   `json:"wait_for_completion"`
	Threshold         string `json:"threshold"`
	Timeout           string `json:"timeout,omitempty"`

	Runs      uint64    `json:"runs"`
	Failures  uint64    `json:"failures"`
	Misfires  uint64    `json:"misfires"`
	Overlaps  uint64    `json:"overlaps"`
	LastStart time.Time `json:"last_start,omitempty"`
	LastTook  string    `json:"last_took,omitempty"`
	LastError string    `json:"last_error,omitempty"`

	History []historyView `json:"history,omitempty"`
}

type historyView struct {
	Run       uint64    `json:"run"`
	Scheduled time.Time `json:"scheduled"`
	Started   time.Time `json:"started"`
	Took      string    `json:"took"`
	Error     string    `json:"error,omitempty"`
}

func viewOf(info scheduler.JobInfo) jobView {
	v := jobView{
		ID:                info.ID,
		Name:              info.Name,
		Expression:        info.Expression.String(),
		TimeZone:          info.TimeZone,
		State:             info.State.String(),
		Next:              info.Next,
		WaitForCompletion: info.Options.WaitForCompletion,
		Threshold:         info.Options.Threshold.String(),
		Runs:              info.Runs,
		Failures:          info.Failures,
		Misfires:          info.Misfires,
		Overlaps:          info.Overlaps,
		LastStart:         info.LastStart,
		LastError:         info.LastError,
	}
	if info.Options.Threshold < 0 {
		v.Threshold = "off"
	}
	if info.Options.Timeout > 0 {
		v.Timeout = info.Options.Timeout.String()
	}
	if info.LastTook > 0 {
		v.LastTook = info.LastTook.String()
	}
	for _, h := range info.History {
		v.History = append(v.History, historyView{
			Run:       h.Run,
			Scheduled: h.Scheduled,
			Started:   h.Started,
			Took:      h.Duration.String(),
			Error:     h.Error,
		})
	}
	return v
}
