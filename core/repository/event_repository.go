package repository

import (
	"context"
	"database/sql"
	"fmt"

	"aiforge-core/core/models"
)

// EventRepository handles database operations for job events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetJobEvents retrieves the events of a job in the order they happened
func (r *EventRepository) GetJobEvents(ctx context.Context, jobID string) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, at, from_status, to_status, reason, meta_json
		FROM job_events
		WHERE job_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.JobEvent, 0)
	for rows.Next() {
		var event models.JobEvent
		var fromStatus sql.NullString
		var meta []byte

		err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.At,
			&fromStatus,
			&event.ToStatus,
			&event.Reason,
			&meta,
		)
		if err != nil {
			return nil, err
		}

		if fromStatus.Valid {
			status := models.JobStatus(fromStatus.String)
			event.FromStatus = &status
		}
		if err := scanJSON(meta, &event.MetaJSON); err != nil {
			return nil, fmt.Errorf("decoding event %d: %w", event.ID, err)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func (r *EventRepository) createJobEventTx(ctx context.Context, tx *sql.Tx, jobID string, fromStatus *models.JobStatus, toStatus models.JobStatus, reason string, meta map[string]interface{}) error {
	var from sql.NullString
	if fromStatus != nil {
		from = sql.NullString{String: string(*fromStatus), Valid: true}
	}

	metaJSON, err := jsonValue(meta)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_events (job_id, from_status, to_status, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`, jobID, from, toStatus, reason, metaJSON)
	return err
}
