package job

import "time"

// LogType classifies a job log entry.
type LogType string

const (
	LogInfo             LogType = "info"
	LogThought          LogType = "thought"
	LogCommand          LogType = "command"
	LogOutput           LogType = "output"
	LogHumanInputNeeded LogType = "human_input_needed"
	LogHumanInput       LogType = "human_input"
	LogWarning          LogType = "warning"
	LogError            LogType = "error"
)

// LogEntry is one append-only audit record owned by exactly one job.
// Structured payloads are serialized to text before they land here.
type LogEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Type      LogType   `json:"log_type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
