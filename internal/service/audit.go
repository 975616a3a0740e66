package service

import (
	"context"
	"log/slog"

	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/port/database"
	"github.com/muhammad-robitulloh/vareon/internal/port/eventsink"
)

// Auditor appends entries to a job's audit trail and fans them out to live
// subscribers. Entries are always durably persisted before broadcast; a
// missing subscriber never blocks or fails the write.
type Auditor struct {
	store database.Store
	sinks []eventsink.Sink
}

// NewAuditor creates an Auditor fanning out to the given sinks.
func NewAuditor(store database.Store, sinks ...eventsink.Sink) *Auditor {
	return &Auditor{store: store, sinks: sinks}
}

// Log persists one entry and broadcasts it.
func (a *Auditor) Log(ctx context.Context, jobID string, t job.LogType, content string) error {
	entry := &job.LogEntry{JobID: jobID, Type: t, Content: content}
	if err := a.store.AppendJobLog(ctx, entry); err != nil {
		slog.Error("append job log failed", "job_id", jobID, "type", t, "error", err)
		return err
	}
	for _, s := range a.sinks {
		s.Publish(ctx, jobID, eventsink.EventJobLog, entry)
	}
	return nil
}

// Status broadcasts a job status change. The state itself has already been
// durably written by the caller.
func (a *Auditor) Status(ctx context.Context, jobID string, status job.Status, finalOutput string) {
	change := eventsink.StatusChange{JobID: jobID, Status: string(status), FinalOutput: finalOutput}
	for _, s := range a.sinks {
		s.Publish(ctx, jobID, eventsink.EventJobStatus, change)
	}
}

// Recent returns up to the last n persisted log entries for a job, oldest
// first. Used to compose the context shown to a human operator.
func (a *Auditor) Recent(ctx context.Context, jobID string, n int) ([]job.LogEntry, error) {
	entries, err := a.store.ListJobLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
