package api

import "fmt"

// LogsPath returns the REST path for a process's paginated log history.
func LogsPath(processID string) string {
	return fmt.Sprintf("/api/processes/%s/logs", processID)
}

// StreamPath returns the WebSocket path for a process's live state stream.
func StreamPath(processID string) string {
	return fmt.Sprintf("/api/processes/%s/stream", processID)
}
