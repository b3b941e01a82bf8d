package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"

	log "github.com/sirupsen/logrus"
)

// Verify checks txHash on chain and moves the payment forward. The returned
// bool reports whether the payment is confirmed. RPC failures return
// errs.ErrInconclusive and leave the payment untouched.
//
// The RPC call happens outside the row lock; the observation is merged under
// the lock so concurrent verifies converge: confirmations never decrease and
// status never moves backward.
func (s *Service) Verify(ctx context.Context, id int64, txHash string, network models.Network) (*models.Payment, bool, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, false, fmt.Errorf("tx_hash is required: %w", errs.ErrValidation)
	}
	if network == models.NetworkEthereum {
		txHash = strings.ToLower(txHash)
	}

	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := checkVerifiable(p, txHash, network); err != nil {
		return nil, false, err
	}
	if p.Status.IsTerminal() {
		return p, p.Status == models.PaymentStatusConfirmed, nil
	}

	tx, err := s.lookup(ctx, network, txHash)
	if err != nil {
		s.metrics.PaymentVerification(string(network), "inconclusive")
		if errors.Is(err, ErrTxNotFound) {
			return p, false, fmt.Errorf("transaction %s not found yet: %w", txHash, errs.ErrInconclusive)
		}
		log.WithFields(log.Fields{"payment_id": id, "tx_hash": txHash}).Warnf("Chain RPC failed: %v", err)
		return p, false, fmt.Errorf("chain rpc: %v: %w", err, errs.ErrInconclusive)
	}

	updated, err := s.store.UpdatePayment(ctx, id, func(cur *models.Payment) error {
		if err := checkVerifiable(cur, txHash, network); err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			return nil
		}
		s.apply(cur, txHash, tx)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.metrics.PaymentVerification(string(network), string(updated.Status))
	log.WithFields(log.Fields{
		"payment_id":    id,
		"status":        updated.Status,
		"confirmations": updated.Confirmations,
	}).Info("payment verified")
	return updated, updated.Status == models.PaymentStatusConfirmed, nil
}

func (s *Service) lookup(ctx context.Context, network models.Network, txHash string) (*ChainTransaction, error) {
	if s.settings.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RPCTimeout)
		defer cancel()
	}
	return s.chain.GetTransaction(ctx, network, txHash)
}

func checkVerifiable(p *models.Payment, txHash string, network models.Network) error {
	if p.Network != network {
		return fmt.Errorf("payment %d is on %s, not %s: %w", p.ID, p.Network, network, errs.ErrValidation)
	}
	if p.TxHash != "" && p.TxHash != txHash {
		return fmt.Errorf("payment %d is bound to another transaction: %w", p.ID, errs.ErrConflict)
	}
	return nil
}

// apply merges a chain observation into p following the decision table:
// failed on-chain -> failed, enough depth -> confirmed, else confirming.
func (s *Service) apply(p *models.Payment, txHash string, tx *ChainTransaction) {
	p.TxHash = txHash
	p.UpdatedAt = s.now().UTC()

	if !tx.Success {
		p.Status = models.PaymentStatusFailed
		return
	}

	s.observe(p, tx)

	if tx.BlockNumber > 0 {
		block := tx.BlockNumber
		p.BlockNumber = &block
	}
	if tx.BlockHash != "" {
		p.BlockHash = tx.BlockHash
	}
	if tx.Confirmations > p.Confirmations {
		p.Confirmations = tx.Confirmations
	}

	if p.Confirmations >= p.RequiredConfirmations {
		now := s.now().UTC()
		p.Status = models.PaymentStatusConfirmed
		p.ConfirmedAt = &now
		return
	}
	p.Status = models.PaymentStatusConfirming
}

// observe records the transfer the chain reports under the payment metadata.
// A transfer that does not match the payment is logged and flagged for
// review but does not change the status.
func (s *Service) observe(p *models.Payment, tx *ChainTransaction) {
	if tx.To == "" && !tx.Value.IsPositive() {
		return
	}

	meta := make(map[string]interface{}, len(p.Metadata)+3)
	for k, v := range p.Metadata {
		meta[k] = v
	}

	var mismatch []string
	if tx.To != "" {
		to := p.Network.NormalizeAddress(tx.To)
		meta["observed_to"] = to
		if to != p.ToAddress {
			mismatch = append(mismatch, "recipient")
		}
	}
	if tx.Value.IsPositive() {
		meta["observed_value"] = strings.TrimSpace(tx.Value.String() + " " + tx.Asset)
		switch {
		case tx.Asset != "" && tx.Asset != p.Currency:
			mismatch = append(mismatch, "asset")
		case tx.Value.LessThan(p.Amount):
			mismatch = append(mismatch, "amount")
		}
	}
	if len(mismatch) > 0 {
		meta["transfer_mismatch"] = strings.Join(mismatch, ",")
		log.WithFields(log.Fields{
			"payment_id":     p.ID,
			"tx_hash":        p.TxHash,
			"expected_to":    p.ToAddress,
			"observed_to":    tx.To,
			"expected_value": p.Amount.String(),
			"observed_value": tx.Value.String(),
		}).Warn("on-chain transfer does not match payment")
	}
	p.Metadata = meta
}
