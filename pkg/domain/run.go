package domain

import "time"

// RunStatus is the state of a collection run
type RunStatus string

// run statuses: pending -> running -> {completed | error | cancelled}
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final for a run
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunError || s == RunCancelled
}

// SourceStatus is the per-source fetch state within a run
type SourceStatus string

// per-source statuses
const (
	SourcePending   SourceStatus = "pending"
	SourceRunning   SourceStatus = "running"
	SourceCompleted SourceStatus = "completed"
	SourceError     SourceStatus = "error"
	SourceCancelled SourceStatus = "cancelled"
)

// SourceProgress tracks one source's contribution to a run
type SourceProgress struct {
	Count  int          `json:"count"`
	Status SourceStatus `json:"status"`
}

// SourceFailure describes a single source failure within a run
type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// CollectionRun is one execution of the multi-source collection pipeline.
// Mutated only by the run coordinator; callers get copies.
type CollectionRun struct {
	RunID        string                    `json:"run_id"`
	Status       RunStatus                 `json:"status"`
	Sources      map[string]SourceProgress `json:"per_source_progress"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at,omitempty"`
	Errors       []SourceFailure           `json:"errors,omitempty"`
	TotalItems   int                       `json:"total_items"`
	NewItems     int                       `json:"new_items"`
	UpdatedItems int                       `json:"updated_items"`
	SimilarPairs int                       `json:"similar_pairs"`
	TablesVer    string                    `json:"tables_version,omitempty"`
}

// Clone returns a deep copy safe to hand to observers
func (r *CollectionRun) Clone() CollectionRun {
	cp := *r
	cp.Sources = make(map[string]SourceProgress, len(r.Sources))
	for k, v := range r.Sources {
		cp.Sources[k] = v
	}
	cp.Errors = append([]SourceFailure(nil), r.Errors...)
	return cp
}
