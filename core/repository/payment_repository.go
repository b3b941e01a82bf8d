package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aiforge-core/core/models"

	"github.com/lib/pq"
)

// PaymentRepository handles database operations for payments
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, payment_type, status, amount, currency, network, platform_fee_percent,
	platform_fee_amount, net_amount, from_wallet_id, from_address, to_address,
	tx_hash, block_number, block_hash, confirmations, required_confirmations,
	linked_kind, linked_id, metadata, created_at, confirmed_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var txHash sql.NullString
	var blockNumber sql.NullInt64
	var confirmedAt sql.NullTime
	var metadata []byte

	err := row.Scan(
		&p.ID,
		&p.Type,
		&p.Status,
		&p.Amount,
		&p.Currency,
		&p.Network,
		&p.PlatformFeePercent,
		&p.PlatformFeeAmount,
		&p.NetAmount,
		&p.FromWalletID,
		&p.FromAddress,
		&p.ToAddress,
		&txHash,
		&blockNumber,
		&p.BlockHash,
		&p.Confirmations,
		&p.RequiredConfirmations,
		&p.Linked.Kind,
		&p.Linked.ID,
		&metadata,
		&p.CreatedAt,
		&confirmedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.TxHash = txHash.String
	p.BlockNumber = int64Ptr(blockNumber)
	p.ConfirmedAt = timePtr(confirmedAt)
	if err := scanJSON(metadata, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decoding payment %d: %w", p.ID, err)
	}
	return &p, nil
}

// CreatePayment inserts a payment
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	metadata, err := jsonValue(p.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			payment_type, status, amount, currency, network, platform_fee_percent,
			platform_fee_amount, net_amount, from_wallet_id, from_address, to_address,
			tx_hash, block_number, block_hash, confirmations, required_confirmations,
			linked_kind, linked_id, metadata, created_at, confirmed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		p.Type,
		p.Status,
		p.Amount,
		p.Currency,
		p.Network,
		p.PlatformFeePercent,
		p.PlatformFeeAmount,
		p.NetAmount,
		p.FromWalletID,
		p.FromAddress,
		p.ToAddress,
		nullString(p.TxHash),
		nullInt64(p.BlockNumber),
		p.BlockHash,
		p.Confirmations,
		p.RequiredConfirmations,
		p.Linked.Kind,
		p.Linked.ID,
		metadata,
		p.CreatedAt,
		nullTime(p.ConfirmedAt),
		p.UpdatedAt,
	).Scan(&p.ID)
	return mapError(err, "payment")
}

// GetPayment retrieves a payment by id
func (r *PaymentRepository) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("payment %d", id))
	}
	return p, nil
}

// ListPaymentsByAddress lists payments sent from or to address, newest first
func (r *PaymentRepository) ListPaymentsByAddress(ctx context.Context, address string, offset, limit int) ([]*models.Payment, error) {
	return r.list(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE from_address = $1 OR to_address = $1
		ORDER BY id DESC LIMIT $2 OFFSET $3
	`, address, limit, offset)
}

// UpdatePayment applies fn under the payment's row lock
func (r *PaymentRepository) UpdatePayment(ctx context.Context, id int64, fn func(p *models.Payment) error) (*models.Payment, error) {
	var next *models.Payment

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanPayment(tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err, fmt.Sprintf("payment %d", id))
		}
		if err := fn(p); err != nil {
			return err
		}
		metadata, err := jsonValue(p.Metadata)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE payments SET
				status = $2, tx_hash = $3, block_number = $4, block_hash = $5,
				confirmations = $6, confirmed_at = $7, metadata = $8, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`,
			p.ID,
			p.Status,
			nullString(p.TxHash),
			nullInt64(p.BlockNumber),
			p.BlockHash,
			p.Confirmations,
			nullTime(p.ConfirmedAt),
			metadata,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return mapError(err, "tx_hash "+p.TxHash)
		}
		next = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ConfirmedPayments lists payments confirmed in [from, to), optionally of the given types
func (r *PaymentRepository) ConfirmedPayments(ctx context.Context, from, to time.Time, types ...models.PaymentType) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE status = 'confirmed' AND confirmed_at >= $1 AND confirmed_at < $2
	`
	args := []interface{}{from, to}
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		args = append(args, pq.Array(names))
		query += ` AND payment_type = ANY($3)`
	}
	query += ` ORDER BY id`
	return r.list(ctx, query, args...)
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
