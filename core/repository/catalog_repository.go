package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"aiforge-core/core/models"
)

// CatalogRepository reads the model, group and API tables owned by the
// wider application
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ModelGroup returns the owning group of a model, 0 for a personal model
func (r *CatalogRepository) ModelGroup(ctx context.Context, modelID int64) (int64, error) {
	var groupID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT group_id FROM models WHERE id = $1`, modelID).Scan(&groupID)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("model %d", modelID))
	}
	return groupID.Int64, nil
}

// GroupMembers maps each member of a group to its role
func (r *CatalogRepository) GroupMembers(ctx context.Context, groupID int64) (map[int64]models.GroupRole, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, role FROM group_memberships WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := map[int64]models.GroupRole{}
	for rows.Next() {
		var userID int64
		var role string
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, err
		}
		members[userID] = models.GroupRole(strings.ToLower(role))
	}
	return members, rows.Err()
}

// UserGroupModels lists the group-owned models of every group the user belongs to
func (r *CatalogRepository) UserGroupModels(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT m.id
		FROM models m
		JOIN group_memberships gm ON gm.group_id = m.group_id
		WHERE gm.user_id = $1 AND m.group_id IS NOT NULL AND m.group_id <> 0
		ORDER BY m.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// APISubscriptionModel resolves the model an API subscription pays for
func (r *CatalogRepository) APISubscriptionModel(ctx context.Context, subscriptionID int64) (int64, error) {
	var modelID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT s.model_id
		FROM api_subscriptions sub
		JOIN api_services s ON s.id = sub.service_id
		WHERE sub.id = $1
	`, subscriptionID).Scan(&modelID)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("api subscription %d", subscriptionID))
	}
	return modelID, nil
}

// ModelUsage counts successful API requests per model in [from, to)
func (r *CatalogRepository) ModelUsage(ctx context.Context, from, to time.Time) (map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.model_id, COUNT(*)
		FROM api_requests req
		JOIN api_services s ON s.id = req.service_id
		WHERE req.status = 'success' AND req.created_at >= $1 AND req.created_at < $2
		GROUP BY s.model_id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := map[int64]int64{}
	for rows.Next() {
		var modelID, count int64
		if err := rows.Scan(&modelID, &count); err != nil {
			return nil, err
		}
		usage[modelID] = count
	}
	return usage, rows.Err()
}

// IsAdminWallet reports whether address is an active admin wallet
func (r *CatalogRepository) IsAdminWallet(ctx context.Context, address string) (bool, error) {
	address = strings.TrimSpace(address)
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM admin_wallets
			WHERE is_active AND (wallet_address = $1 OR (LEFT($1, 2) = '0x' AND LOWER(wallet_address) = LOWER($1)))
		)
	`, address).Scan(&exists)
	return exists, err
}
