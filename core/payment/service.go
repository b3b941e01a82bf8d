package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
	"aiforge-core/core/monitoring"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Store persists payments
type Store interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	ListPaymentsByAddress(ctx context.Context, address string, offset, limit int) ([]*models.Payment, error)

	// UpdatePayment applies fn under the payment's row lock. Setting a
	// tx_hash already used by another payment fails with errs.ErrConflict.
	UpdatePayment(ctx context.Context, id int64, fn func(p *models.Payment) error) (*models.Payment, error)

	// ConfirmedPayments returns confirmed payments of the given types whose
	// confirmed_at lies in [from, to).
	ConfirmedPayments(ctx context.Context, from, to time.Time, types ...models.PaymentType) ([]*models.Payment, error)
}

// Settings are the per-network and per-type payment constants
type Settings struct {
	Fees                  ledger.FeeTable
	RequiredConfirmations map[models.Network]int
	PlatformWallets       map[models.Network]string

	// RPCTimeout bounds a single chain lookup during Verify
	RPCTimeout time.Duration
}

// DefaultSettings returns the standard fee table and confirmation depths
func DefaultSettings() Settings {
	return Settings{
		Fees: ledger.DefaultFeeTable(),
		RequiredConfirmations: map[models.Network]int{
			models.NetworkEthereum: 3,
			models.NetworkTron:     19,
		},
		PlatformWallets: map[models.Network]string{},
		RPCTimeout:      10 * time.Second,
	}
}

// CreateRequest is the input to Create
type CreateRequest struct {
	Type         models.PaymentType     `json:"payment_type"`
	Amount       decimal.Decimal        `json:"amount"`
	Currency     string                 `json:"currency"`
	Network      models.Network         `json:"network"`
	FromWalletID int64                  `json:"from_wallet_id"`
	FromAddress  string                 `json:"from_address"`
	ToAddress    string                 `json:"to_address"`
	Linked       models.LinkedEntity    `json:"linked"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Service creates payments and drives them through verification
type Service struct {
	store    Store
	chain    ChainRouter
	settings Settings
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewService creates a payment service
func NewService(store Store, chain ChainRouter, settings Settings, metrics *monitoring.Metrics) *Service {
	return &Service{
		store:    store,
		chain:    chain,
		settings: settings,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Create records a pending payment with its platform fee fixed at creation
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Payment, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown payment type %q: %w", req.Type, errs.ErrValidation)
	}
	if !req.Network.Valid() {
		return nil, fmt.Errorf("unsupported network %q: %w", req.Network, errs.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", errs.ErrValidation)
	}
	if !req.Linked.Valid() {
		return nil, fmt.Errorf("invalid linked entity: %w", errs.ErrValidation)
	}
	if req.Currency == "" {
		req.Currency = "USDT"
	}
	req.Currency = strings.ToUpper(req.Currency)

	from := req.Network.NormalizeAddress(req.FromAddress)
	if from == "" {
		return nil, fmt.Errorf("from_address is required: %w", errs.ErrValidation)
	}
	to := req.Network.NormalizeAddress(req.ToAddress)
	if to == "" {
		to = req.Network.NormalizeAddress(s.settings.PlatformWallets[req.Network])
	}
	if to == "" {
		return nil, fmt.Errorf("to_address is required, no platform wallet configured for %s: %w", req.Network, errs.ErrValidation)
	}

	quote, err := s.settings.Fees.Quote(string(req.Type), req.Currency, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}

	now := s.now().UTC()
	p := &models.Payment{
		Type:                  req.Type,
		Status:                models.PaymentStatusPending,
		Amount:                quote.Amount,
		Currency:              req.Currency,
		Network:               req.Network,
		PlatformFeePercent:    quote.Percent,
		PlatformFeeAmount:     quote.Fee,
		NetAmount:             quote.Net,
		FromWalletID:          req.FromWalletID,
		FromAddress:           from,
		ToAddress:             to,
		RequiredConfirmations: s.settings.RequiredConfirmations[req.Network],
		Linked:                req.Linked,
		Metadata:              req.Metadata,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	log.WithFields(log.Fields{
		"payment_id": p.ID,
		"type":       p.Type,
		"network":    p.Network,
		"amount":     p.Amount.String(),
	}).Info("payment created")
	return p, nil
}

// Get returns a payment by id
func (s *Service) Get(ctx context.Context, id int64) (*models.Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// ListForWallet returns payments sent from or to address, newest first
func (s *Service) ListForWallet(ctx context.Context, address string, offset, limit int) ([]*models.Payment, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("wallet address is required: %w", errs.ErrValidation)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	// Ethereum addresses are stored lower-case
	if strings.HasPrefix(address, "0x") {
		address = strings.ToLower(address)
	}
	return s.store.ListPaymentsByAddress(ctx, address, offset, limit)
}

// GetOwned returns a payment only if it was sent from owner. An empty owner
// skips the check and is reserved for admin callers.
func (s *Service) GetOwned(ctx context.Context, id int64, owner string) (*models.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(p, owner); err != nil {
		return nil, err
	}
	return p, nil
}

func checkOwner(p *models.Payment, owner string) error {
	if owner == "" {
		return nil
	}
	if p.Network.NormalizeAddress(owner) != p.FromAddress {
		return fmt.Errorf("payment %d was not sent from %s: %w", p.ID, owner, errs.ErrForbidden)
	}
	return nil
}

// Cancel abandons a payment that has not settled. owner follows GetOwned.
func (s *Service) Cancel(ctx context.Context, id int64, owner string) (*models.Payment, error) {
	return s.store.UpdatePayment(ctx, id, func(p *models.Payment) error {
		if err := checkOwner(p, owner); err != nil {
			return err
		}
		if !p.Status.CanTransition(models.PaymentStatusCancelled) {
			return fmt.Errorf("payment %d is %s and cannot be cancelled: %w", id, p.Status, errs.ErrConflict)
		}
		p.Status = models.PaymentStatusCancelled
		p.UpdatedAt = s.now().UTC()
		return nil
	})
}
