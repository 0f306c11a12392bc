package state

// TaskState is the only data carried across rounds of a task.
type TaskState struct {
	RepoName string `json:"repo_name"`
	RepoURL  string `json:"repo_url"`
}

// Store is the keyed state contract consumed by the pipeline.
type Store interface {
	// Put overwrites any prior state for taskID and is durable on return.
	Put(taskID string, st TaskState) error
	// Get returns the state for taskID. Absent or unreadable state yields false.
	Get(taskID string) (TaskState, bool)
}
