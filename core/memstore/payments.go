package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

// txHashTaken reports whether another payment already carries hash. Callers hold mu.
func (s *Store) txHashTaken(hash string, except int64) bool {
	if hash == "" {
		return false
	}
	for id, p := range s.payments {
		if id != except && p.TxHash == hash {
			return true
		}
	}
	return false
}

func (s *Store) CreatePayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txHashTaken(p.TxHash, 0) {
		return fmt.Errorf("tx_hash %s already used: %w", p.TxHash, errs.ErrConflict)
	}
	p.ID = s.id()
	c := *p
	s.payments[p.ID] = &c
	return nil
}

func (s *Store) GetPayment(_ context.Context, id int64) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, errs.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) ListPaymentsByAddress(_ context.Context, address string, offset, limit int) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Payment, 0)
	for _, p := range s.payments {
		if p.FromAddress == address || p.ToAddress == address {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, offset, limit), nil
}

func (s *Store) UpdatePayment(_ context.Context, id int64, fn func(p *models.Payment) error) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, errs.ErrNotFound)
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	if next.TxHash != cur.TxHash && s.txHashTaken(next.TxHash, id) {
		return nil, fmt.Errorf("tx_hash %s already used: %w", next.TxHash, errs.ErrConflict)
	}
	s.payments[id] = &next
	c := next
	return &c, nil
}

func (s *Store) ConfirmedPayments(_ context.Context, from, to time.Time, types ...models.PaymentType) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[models.PaymentType]bool{}
	for _, t := range types {
		wanted[t] = true
	}

	out := make([]*models.Payment, 0)
	for _, p := range s.payments {
		if p.Status != models.PaymentStatusConfirmed || p.ConfirmedAt == nil {
			continue
		}
		if p.ConfirmedAt.Before(from) || !p.ConfirmedAt.Before(to) {
			continue
		}
		if len(wanted) > 0 && !wanted[p.Type] {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
