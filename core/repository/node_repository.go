package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

// NodeRepository handles database operations for compute nodes
type NodeRepository struct {
	db *DB
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(db *DB) *NodeRepository {
	return &NodeRepository{db: db}
}

const nodeColumns = `
	id, node_id, name, description, is_active, last_heartbeat, resources,
	max_concurrent_jobs, gpu_enabled, total_jobs_completed, total_jobs_failed,
	token_hash, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var node models.Node
	var heartbeat sql.NullTime
	var resources []byte

	err := row.Scan(
		&node.ID,
		&node.NodeID,
		&node.Name,
		&node.Description,
		&node.IsActive,
		&heartbeat,
		&resources,
		&node.MaxConcurrentJobs,
		&node.GPUEnabled,
		&node.TotalJobsCompleted,
		&node.TotalJobsFailed,
		&node.TokenHash,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	node.LastHeartbeat = timePtr(heartbeat)
	if err := scanJSON(resources, &node.Resources); err != nil {
		return nil, fmt.Errorf("decoding resources of node %s: %w", node.NodeID, err)
	}
	return &node, nil
}

// CreateNode inserts a node
func (r *NodeRepository) CreateNode(ctx context.Context, node *models.Node) error {
	resources, err := jsonValue(node.Resources)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO nodes (
			node_id, name, description, is_active, last_heartbeat, resources,
			max_concurrent_jobs, gpu_enabled, token_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		node.NodeID,
		node.Name,
		node.Description,
		node.IsActive,
		nullTime(node.LastHeartbeat),
		resources,
		node.MaxConcurrentJobs,
		node.GPUEnabled,
		node.TokenHash,
		node.CreatedAt,
		node.UpdatedAt,
	).Scan(&node.ID)
	return mapError(err, "node "+node.NodeID)
}

// GetNode retrieves a node by business id
func (r *NodeRepository) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE node_id = $1`, nodeID)
	node, err := scanNode(row)
	if err != nil {
		return nil, mapError(err, "node "+nodeID)
	}
	return node, nil
}

// ListNodes lists nodes in registration order
func (r *NodeRepository) ListNodes(ctx context.Context, offset, limit int) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]*models.Node, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// TouchNode stamps a heartbeat, reactivates the node and optionally replaces its resources
func (r *NodeRepository) TouchNode(ctx context.Context, nodeID string, at time.Time, resources map[string]interface{}) error {
	value, err := jsonValue(resources)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE nodes
		SET last_heartbeat = $2, is_active = TRUE,
			resources = COALESCE($3::jsonb, resources), updated_at = $2
		WHERE node_id = $1
	`, nodeID, at, value)
	if err != nil {
		return err
	}
	return expectRow(res, "node "+nodeID)
}

// SetNodeActive flips the scheduling switch of a node
func (r *NodeRepository) SetNodeActive(ctx context.Context, nodeID string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE nodes SET is_active = $2, updated_at = NOW() WHERE node_id = $1`, nodeID, active)
	if err != nil {
		return err
	}
	return expectRow(res, "node "+nodeID)
}

// DeactivateStaleNodes marks active nodes silent since before cutoff inactive
func (r *NodeRepository) DeactivateStaleNodes(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE nodes SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND (last_heartbeat IS NULL OR last_heartbeat < $1)
		RETURNING node_id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActiveNodes counts nodes open for scheduling
func (r *NodeRepository) CountActiveNodes(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE is_active`).Scan(&n)
	return n, err
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, errs.ErrNotFound)
	}
	return nil
}
