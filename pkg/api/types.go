// Package api defines the wire types shared between the stream client, the
// history client, and the server it talks to.
package api

// ProcessStatus is the lifecycle state of an execution process as reported
// by the server.
type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
	ProcessKilled    ProcessStatus = "killed"
)

// Terminal reports whether the process can emit further entries.
func (s ProcessStatus) Terminal() bool {
	switch s {
	case ProcessCompleted, ProcessFailed, ProcessKilled:
		return true
	default:
		return false
	}
}

// LogEntry structured log entry
type LogEntry struct {
	Level           string `json:"level"`             // "stdout", "stderr", "system"
	Content         string `json:"content"`           // Log content
	Timestamp       int64  `json:"timestamp"`         // Unix second timestamp
	Sequence        int64  `json:"sequence"`          // Monotonic per-process sequence
	Source          string `json:"source,omitempty"`  // Log source
	PendingApproval bool   `json:"pendingApproval,omitempty"` // Entry is waiting on user approval
}

// LoadingSentinel is the placeholder entry a feed shows while a process is
// running and nothing is waiting on approval.
func LoadingSentinel() LogEntry {
	return LogEntry{Level: "system", Source: "loading"}
}

// LogDocument is the local mirror of one process's log stream. The server
// builds it incrementally by pushing JSON Patch operations against it.
type LogDocument struct {
	ProcessID string        `json:"processId"`
	Status    ProcessStatus `json:"status"`
	Entries   []LogEntry    `json:"entries"`
}

// LogPage is one cursor-bounded batch of historical entries. Entries are
// ascending by sequence within the page.
type LogPage struct {
	Entries    []LogEntry `json:"entries"`
	NextCursor string     `json:"nextCursor,omitempty"`
	HasMore    bool       `json:"hasMore"`
	TotalCount *int64     `json:"totalCount,omitempty"`
}
