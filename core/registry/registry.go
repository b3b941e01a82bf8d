package registry

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store persists nodes
type Store interface {
	CreateNode(ctx context.Context, node *models.Node) error
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	ListNodes(ctx context.Context, offset, limit int) ([]*models.Node, error)
	TouchNode(ctx context.Context, nodeID string, at time.Time, resources map[string]interface{}) error
	SetNodeActive(ctx context.Context, nodeID string, active bool) error
	DeactivateStaleNodes(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Registration is the input to Register
type Registration struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	Resources         map[string]interface{} `json:"resources"`
	MaxConcurrentJobs int                    `json:"max_concurrent_jobs"`
	GPUEnabled        bool                   `json:"gpu_enabled"`
}

// Registry tracks compute nodes: identity, capacity and heartbeat liveness
type Registry struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewRegistry creates a node registry. Nodes silent for longer than
// staleAfter are treated as inactive by scheduling checks.
func NewRegistry(store Store, staleAfter time.Duration) *Registry {
	return &Registry{
		store:      store,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// StaleCutoff returns the heartbeat time before which a node counts as stale
func (r *Registry) StaleCutoff() time.Time {
	if r.staleAfter <= 0 {
		return time.Time{}
	}
	return r.now().Add(-r.staleAfter)
}

// Register creates an active node and returns it together with its token.
// Names are not unique.
func (r *Registry) Register(ctx context.Context, reg Registration) (*models.Node, string, error) {
	if strings.TrimSpace(reg.Name) == "" {
		return nil, "", fmt.Errorf("node name is required: %w", errs.ErrValidation)
	}
	if reg.MaxConcurrentJobs == 0 {
		reg.MaxConcurrentJobs = 1
	}
	if reg.MaxConcurrentJobs < 0 {
		return nil, "", fmt.Errorf("max_concurrent_jobs must be positive: %w", errs.ErrValidation)
	}

	now := r.now().UTC()
	nodeID := "node-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	token := fmt.Sprintf("node_%s_%s", nodeID, strings.ReplaceAll(uuid.New().String(), "-", ""))

	node := &models.Node{
		NodeID:            nodeID,
		Name:              reg.Name,
		Description:       reg.Description,
		IsActive:          true,
		LastHeartbeat:     &now,
		Resources:         reg.Resources,
		MaxConcurrentJobs: reg.MaxConcurrentJobs,
		GPUEnabled:        reg.GPUEnabled,
		TokenHash:         HashToken(token),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := r.store.CreateNode(ctx, node); err != nil {
		return nil, "", fmt.Errorf("failed to create node: %w", err)
	}

	log.WithFields(log.Fields{"node_id": nodeID, "gpu": reg.GPUEnabled, "capacity": reg.MaxConcurrentJobs}).Info("node registered")
	return node, token, nil
}

// Heartbeat stamps liveness, optionally replaces the resource descriptor and
// forces the node active.
func (r *Registry) Heartbeat(ctx context.Context, nodeID string, resources map[string]interface{}) error {
	return r.store.TouchNode(ctx, nodeID, r.now().UTC(), resources)
}

// Activate re-enables scheduling for a node
func (r *Registry) Activate(ctx context.Context, nodeID string) error {
	return r.store.SetNodeActive(ctx, nodeID, true)
}

// Deactivate blocks future scheduling on a node. In-flight jobs keep running.
func (r *Registry) Deactivate(ctx context.Context, nodeID string) error {
	return r.store.SetNodeActive(ctx, nodeID, false)
}

// Get returns a node by business id
func (r *Registry) Get(ctx context.Context, nodeID string) (*models.Node, error) {
	return r.store.GetNode(ctx, nodeID)
}

// List returns nodes page by page
func (r *Registry) List(ctx context.Context, offset, limit int) ([]*models.Node, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.store.ListNodes(ctx, offset, limit)
}

// Authenticate checks a node token against the stored hash
func (r *Registry) Authenticate(ctx context.Context, nodeID, token string) error {
	node, err := r.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(node.TokenHash)) != 1 {
		return fmt.Errorf("invalid token for node %s: %w", nodeID, errs.ErrForbidden)
	}
	return nil
}

// SweepStale marks every node silent past the staleness window inactive
func (r *Registry) SweepStale(ctx context.Context) ([]string, error) {
	if r.staleAfter <= 0 {
		return nil, nil
	}
	ids, err := r.store.DeactivateStaleNodes(ctx, r.StaleCutoff())
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.WithField("nodes", ids).Warn("deactivated stale nodes")
	}
	return ids, nil
}

// Start runs SweepStale on every interval until ctx is done
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepStale(ctx); err != nil {
				log.Printf("Node sweep error: %v", err)
			}
		}
	}
}

// HashToken returns the hex SHA-256 of a node token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
