package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
)

const jobColumns = `id, agent_id, owner_id, status, goal, message_history, original_request,
	COALESCE(parent_job_id::text, ''), COALESCE(final_output, ''), created_at, updated_at, ended_at`

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	historyJSON, err := json.Marshal(j.MessageHistory)
	if err != nil {
		return fmt.Errorf("marshal message history: %w", err)
	}
	var requestJSON []byte
	if j.OriginalRequest != nil {
		requestJSON, err = json.Marshal(j.OriginalRequest)
		if err != nil {
			return fmt.Errorf("marshal original request: %w", err)
		}
	}
	var parentID *string
	if j.ParentJobID != "" {
		parentID = &j.ParentJobID
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (agent_id, owner_id, status, goal, message_history, original_request, parent_job_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		j.AgentID, j.OwnerID, j.Status, j.Goal, historyJSON, requestJSON, parentID)
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &j, nil
}

func (s *Store) ListJobsByAgent(ctx context.Context, agentID string) ([]job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE agent_id = $1 ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) UpdateJobStatus(ctx context.Context, id string, status job.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1 AND ended_at IS NULL`,
		id, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s status: %w", id, domain.ErrInvalidState)
	}
	return nil
}

// TransitionJob conditionally moves the job from one status to another. It
// reports false, nil when the job exists but is not in the expected status,
// which is how concurrent resume attempts lose the race.
func (s *Store) TransitionJob(ctx context.Context, id string, from, to job.Status) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2 AND ended_at IS NULL`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition job %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteJob marks the job terminal and stamps ended_at. The ended_at guard
// makes completion a one-shot operation.
func (s *Store) CompleteJob(ctx context.Context, id string, status job.Status, finalOutput string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, final_output = $3, updated_at = now(), ended_at = now()
		 WHERE id = $1 AND ended_at IS NULL`,
		id, status, finalOutput)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete job %s: %w", id, domain.ErrInvalidState)
	}
	return nil
}

// AppendMessage appends one message to the persisted history without
// rewriting the whole array.
func (s *Store) AppendMessage(ctx context.Context, id string, msg job.Message) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET message_history = message_history || $2::jsonb, updated_at = now()
		 WHERE id = $1 AND ended_at IS NULL`,
		id, msgJSON)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append message to job %s: %w", id, domain.ErrInvalidState)
	}
	return nil
}

// --- Job logs ---

func (s *Store) AppendJobLog(ctx context.Context, entry *job.LogEntry) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO job_logs (job_id, log_type, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		entry.JobID, entry.Type, entry.Content)
	if err := row.Scan(&entry.ID, &entry.Timestamp); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

func (s *Store) ListJobLogs(ctx context.Context, jobID string) ([]job.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, log_type, content, created_at
		 FROM job_logs WHERE job_id = $1 ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()

	var entries []job.LogEntry
	for rows.Next() {
		var e job.LogEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Type, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("list job logs: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (job.Job, error) {
	var j job.Job
	var historyJSON, requestJSON []byte
	err := scanner.Scan(&j.ID, &j.AgentID, &j.OwnerID, &j.Status, &j.Goal,
		&historyJSON, &requestJSON, &j.ParentJobID, &j.FinalOutput,
		&j.CreatedAt, &j.UpdatedAt, &j.EndedAt)
	if err != nil {
		return j, err
	}
	// A history that fails to decode is treated as empty rather than making
	// the job unreadable.
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &j.MessageHistory); err != nil {
			slog.Warn("skipping malformed message history", "job_id", j.ID, "error", err)
			j.MessageHistory = nil
		}
	}
	if len(requestJSON) > 0 {
		var req job.ExecutionRequest
		if err := json.Unmarshal(requestJSON, &req); err == nil {
			j.OriginalRequest = &req
		} else {
			slog.Warn("skipping malformed original request", "job_id", j.ID, "error", err)
		}
	}
	return j, nil
}
