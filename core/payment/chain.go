package payment

import (
	"context"
	"errors"
	"fmt"

	"aiforge-core/core/models"

	"github.com/shopspring/decimal"
)

// ErrTxNotFound is returned by chain clients when the node does not know the
// transaction yet. The caller treats it as inconclusive.
var ErrTxNotFound = errors.New("transaction not found")

// ChainTransaction is what the verifier needs to know about a transaction
type ChainTransaction struct {
	Hash          string
	Success       bool
	BlockNumber   int64
	BlockHash     string
	Confirmations int
	From          string
	To            string
	Value         decimal.Decimal

	// Asset is USDT for token transfers, else the network's native coin
	Asset string
}

// ChainClient reads transactions from one network
type ChainClient interface {
	GetTransaction(ctx context.Context, txHash string) (*ChainTransaction, error)
}

// ChainRouter dispatches to the client configured for a network
type ChainRouter map[models.Network]ChainClient

func (r ChainRouter) GetTransaction(ctx context.Context, network models.Network, txHash string) (*ChainTransaction, error) {
	client, ok := r[network]
	if !ok || client == nil {
		return nil, fmt.Errorf("no chain client configured for %s", network)
	}
	return client.GetTransaction(ctx, txHash)
}

// confirmationsAt returns max(0, head - block)
func confirmationsAt(head, block int64) int {
	if head <= block {
		return 0
	}
	return int(head - block)
}
