package progress

// Tracker is the observer-side stale-data guard. It implements the protocol
// rules any client must follow: updates for a different run id are discarded,
// and an update carrying non-zero counts while the local view is still at
// zero is discarded unless it is a terminal marker. This keeps progress from
// a previous run from leaking into a freshly started one.
type Tracker struct {
	runID    string
	sawStart bool
	state    Update
}

// NewTracker creates a tracker for the given run id with a zeroed local view
func NewTracker(runID string) *Tracker {
	return &Tracker{
		runID: runID,
		state: Update{RunID: runID, SourceCounts: map[string]int{}},
	}
}

// Apply validates an incoming update against the guard rules and merges it
// into the local view. Returns the updated snapshot and whether the update
// was accepted; rejected updates leave the view untouched.
func (t *Tracker) Apply(u Update) (Update, bool) {
	if u.RunID != t.runID {
		return t.state.clone(), false
	}

	if !t.sawStart && totalCounts(u) > 0 && !u.Status.Terminal() {
		// counts before the zero starting update: a leak from elsewhere
		return t.state.clone(), false
	}
	t.sawStart = true

	if u.ProgressPercent < t.state.ProgressPercent {
		u.ProgressPercent = t.state.ProgressPercent
	}
	merged := make(map[string]int, len(u.SourceCounts))
	for src, cnt := range t.state.SourceCounts {
		merged[src] = cnt
	}
	for src, cnt := range u.SourceCounts {
		if cnt > merged[src] {
			merged[src] = cnt
		}
	}
	u.SourceCounts = merged

	t.state = u
	return t.state.clone(), true
}

// State returns the current local view
func (t *Tracker) State() Update { return t.state.clone() }

func totalCounts(u Update) int {
	total := 0
	for _, c := range u.SourceCounts {
		total += c
	}
	return total
}
