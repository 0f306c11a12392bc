package history

import "time"

// Event is one recorded phase result of a run.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task"`
	Round     int       `json:"round"`
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run groups the events of one run in the order they were recorded.
type Run struct {
	RunID  string  `json:"run_id"`
	TaskID string  `json:"task"`
	Round  int     `json:"round"`
	Events []Event `json:"events"`
}

// Final returns the last event of the run, or false when the run is empty.
func (r Run) Final() (Event, bool) {
	if len(r.Events) == 0 {
		return Event{}, false
	}
	return r.Events[len(r.Events)-1], true
}

// GroupRuns splits a task's events into runs, preserving first-seen order.
func GroupRuns(events []Event) []Run {
	index := make(map[string]int)
	var runs []Run
	for _, e := range events {
		i, ok := index[e.RunID]
		if !ok {
			i = len(runs)
			index[e.RunID] = i
			runs = append(runs, Run{RunID: e.RunID, TaskID: e.TaskID, Round: e.Round})
		}
		runs[i].Events = append(runs[i].Events, e)
	}
	return runs
}
