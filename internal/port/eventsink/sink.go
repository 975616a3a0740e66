// Package eventsink defines the port for delivering live job events to
// zero or more subscribers keyed by job id.
package eventsink

import "context"

// Event type constants shared by all sinks.
const (
	EventJobLog    = "job.log"
	EventJobStatus = "job.status"
)

// StatusChange is the payload broadcast when a job changes state.
type StatusChange struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	FinalOutput string `json:"final_output,omitempty"`
}

// Sink delivers an ordered stream of log/status events for a job.
// Delivery is fire-and-forget: no subscriber is guaranteed to be present,
// and a missing or failing one must never block orchestration.
type Sink interface {
	Publish(ctx context.Context, jobID, eventType string, payload any)
}
