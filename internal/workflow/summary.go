package workflow

import (
	"encoding/json"
	"sort"
	"time"

	"triage/internal/queue"
)

// KindStats counts task outcomes for one kind.
type KindStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Stopped   int `json:"stopped"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// TaskFailure records one failed task.
type TaskFailure struct {
	Task   string `json:"task"`
	Module string `json:"module,omitempty"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Summary describes a finished run.
type Summary struct {
	RunID      string                    `json:"run_id,omitempty"`
	State      State                     `json:"state"`
	Tasks      map[queue.Kind]*KindStats `json:"tasks"`
	Failures   []TaskFailure             `json:"failures,omitempty"`
	Warnings   []string                  `json:"warnings,omitempty"`
	Error      string                    `json:"error,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
}

func newSummary(runID string) Summary {
	return Summary{RunID: runID, State: StateIdle, Tasks: make(map[queue.Kind]*KindStats)}
}

func (s *Summary) stats(kind queue.Kind) *KindStats {
	if s.Tasks == nil {
		s.Tasks = make(map[queue.Kind]*KindStats)
	}
	st, ok := s.Tasks[kind]
	if !ok {
		st = &KindStats{}
		s.Tasks[kind] = st
	}
	return st
}

// Totals sums every kind.
func (s Summary) Totals() KindStats {
	var total KindStats
	for _, st := range s.Tasks {
		total.Processed += st.Processed
		total.Succeeded += st.Succeeded
		total.Stopped += st.Stopped
		total.Failed += st.Failed
		total.Skipped += st.Skipped
	}
	return total
}

// Kinds lists the kinds seen, sorted.
func (s Summary) Kinds() []queue.Kind {
	kinds := make([]queue.Kind, 0, len(s.Tasks))
	for kind := range s.Tasks {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// JSON encodes the summary for the runs table.
func (s Summary) JSON() json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
