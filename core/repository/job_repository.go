package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"aiforge-core/core/models"
	"aiforge-core/core/scheduler"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	db        *DB
	events    *EventRepository
	artifacts *ArtifactRepository
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{
		db:        db,
		events:    NewEventRepository(db),
		artifacts: NewArtifactRepository(db),
	}
}

const jobColumns = `
	id, job_id, job_type, node_id, status, config, input_files, output_files,
	docker_image, command, environment, progress, result, error, output_cid,
	memory_limit, cpu_limit, gpus, spec_yaml, created_at, started_at,
	completed_at, updated_at`

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var nodeID sql.NullString
	var startedAt, completedAt sql.NullTime
	var config, inputs, outputs, command, env, result []byte

	err := row.Scan(
		&job.ID,
		&job.JobID,
		&job.Type,
		&nodeID,
		&job.Status,
		&config,
		&inputs,
		&outputs,
		&job.DockerImage,
		&command,
		&env,
		&job.Progress,
		&result,
		&job.Error,
		&job.OutputCID,
		&job.Requirements.MemoryLimit,
		&job.Requirements.CPULimit,
		&job.Requirements.GPUs,
		&job.SpecYAML,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nodeID.Valid {
		job.NodeID = &nodeID.String
	}
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)

	for _, f := range []struct {
		raw []byte
		dst interface{}
	}{
		{config, &job.Config},
		{inputs, &job.InputFiles},
		{outputs, &job.OutputFiles},
		{command, &job.Command},
		{env, &job.Environment},
		{result, &job.Result},
	} {
		if err := scanJSON(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decoding job %s: %w", job.JobID, err)
		}
	}
	return &job, nil
}

// jobJSON encodes the JSONB columns of a job in column order
func jobJSON(job *models.Job) ([]interface{}, error) {
	values := make([]interface{}, 0, 6)
	for _, v := range []interface{}{job.Config, job.InputFiles, job.OutputFiles, job.Command, job.Environment, job.Result} {
		enc, err := jsonValue(v)
		if err != nil {
			return nil, fmt.Errorf("encoding job %s: %w", job.JobID, err)
		}
		values = append(values, enc)
	}
	return values, nil
}

// CreateJob inserts a job together with its "submitted" event
func (r *JobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	enc, err := jobJSON(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			job_id, job_type, status, config, input_files, output_files,
			command, environment, result, docker_image, progress,
			memory_limit, cpu_limit, gpus, spec_yaml, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		RETURNING id
	`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query,
			job.JobID,
			job.Type,
			job.Status,
			enc[0], enc[1], enc[2], enc[3], enc[4], enc[5],
			job.DockerImage,
			job.Progress,
			job.Requirements.MemoryLimit,
			job.Requirements.CPULimit,
			job.Requirements.GPUs,
			job.SpecYAML,
			job.CreatedAt,
			job.UpdatedAt,
		).Scan(&job.ID)
		if err != nil {
			return mapError(err, "job "+job.JobID)
		}
		return r.events.createJobEventTx(ctx, tx, job.JobID, nil, job.Status, "submitted", nil)
	})
}

// GetJob retrieves a job by business id
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return nil, mapError(err, "job "+jobID)
	}
	return job, nil
}

// ListJobs lists jobs with optional filters, newest first
func (r *JobRepository) ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.Job, error) {
	var where []string
	var args []interface{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.NodeID != "" {
		args = append(args, filter.NodeID)
		where = append(where, fmt.Sprintf("node_id = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListJobEvents returns the transition log of a job
func (r *JobRepository) ListJobEvents(ctx context.Context, jobID string) ([]models.JobEvent, error) {
	return r.events.GetJobEvents(ctx, jobID)
}

// ClaimJob locks the node row, evaluates guard against its in-flight count
// and assigns the oldest compatible pending job. Concurrent claimers skip
// rows another transaction already locked.
func (r *JobRepository) ClaimJob(ctx context.Context, nodeID string, guard scheduler.ClaimGuard) (*models.Job, error) {
	var claimed *models.Job

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		node, err := scanNode(tx.QueryRowContext(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE node_id = $1 FOR UPDATE`, nodeID))
		if err != nil {
			return mapError(err, "node "+nodeID)
		}

		var inFlight int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM jobs WHERE node_id = $1 AND status IN ('assigned', 'running')`,
			nodeID).Scan(&inFlight)
		if err != nil {
			return err
		}
		if err := guard(node, inFlight); err != nil {
			return err
		}

		job, err := scanJob(tx.QueryRowContext(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE status = 'pending' AND ($1 OR gpus = 0)
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, node.GPUEnabled))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		from := job.Status
		err = tx.QueryRowContext(ctx, `
			UPDATE jobs SET status = 'assigned', node_id = $2, started_at = NOW(), updated_at = NOW()
			WHERE id = $1
			RETURNING started_at, updated_at
		`, job.ID, nodeID).Scan(&job.StartedAt, &job.UpdatedAt)
		if err != nil {
			return err
		}
		job.Status = models.JobStatusAssigned
		job.NodeID = &nodeID

		meta := map[string]interface{}{"node_id": nodeID}
		if err := r.events.createJobEventTx(ctx, tx, job.JobID, &from, job.Status, "claimed_by_node", meta); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// TransitionJob applies fn under the job's row lock and persists the result.
// A status change writes an event and bumps the owning node's counters.
func (r *JobRepository) TransitionJob(ctx context.Context, jobID, reason string, fn func(job *models.Job) error) (*models.Job, error) {
	var next *models.Job

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanJob(tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 FOR UPDATE`, jobID))
		if err != nil {
			return mapError(err, "job "+jobID)
		}

		job := *cur
		if err := fn(&job); err != nil {
			return err
		}

		enc, err := jobJSON(&job)
		if err != nil {
			return err
		}
		var nodeID sql.NullString
		if job.NodeID != nil {
			nodeID = sql.NullString{String: *job.NodeID, Valid: true}
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE jobs SET
				status = $2, node_id = $3, progress = $4, result = $5, error = $6,
				output_cid = $7, started_at = $8, completed_at = $9, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`,
			job.ID,
			job.Status,
			nodeID,
			job.Progress,
			enc[5],
			job.Error,
			job.OutputCID,
			nullTime(job.StartedAt),
			nullTime(job.CompletedAt),
		).Scan(&job.UpdatedAt)
		if err != nil {
			return err
		}

		if job.Status != cur.Status {
			from := cur.Status
			if err := r.events.createJobEventTx(ctx, tx, jobID, &from, job.Status, reason, nil); err != nil {
				return err
			}
			if job.NodeID != nil {
				if err := bumpNodeCounter(ctx, tx, *job.NodeID, job.Status); err != nil {
					return err
				}
			}
		}
		next = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func bumpNodeCounter(ctx context.Context, tx *sql.Tx, nodeID string, status models.JobStatus) error {
	var column string
	switch status {
	case models.JobStatusCompleted:
		column = "total_jobs_completed"
	case models.JobStatusFailed:
		column = "total_jobs_failed"
	default:
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE nodes SET `+column+` = `+column+` + 1, updated_at = NOW() WHERE node_id = $1`, nodeID)
	return err
}

// CreateArtifact records an artifact of a job
func (r *JobRepository) CreateArtifact(ctx context.Context, artifact *models.JobArtifact) error {
	return r.artifacts.CreateArtifact(ctx, artifact)
}

// ListArtifacts lists the artifacts of a job
func (r *JobRepository) ListArtifacts(ctx context.Context, jobID string) ([]*models.JobArtifact, error) {
	return r.artifacts.GetJobArtifacts(ctx, jobID, nil)
}
