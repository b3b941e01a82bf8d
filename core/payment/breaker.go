package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient wraps a ChainClient with a circuit breaker so a failing RPC
// endpoint is not hammered by verify calls. Not-found answers do not count
// as failures.
type BreakerClient struct {
	next    ChainClient
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient trips after 5 consecutive RPC failures and probes again after 30s
func NewBreakerClient(name string, next ChainClient) *BreakerClient {
	return &BreakerClient{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrTxNotFound)
			},
		}),
	}
}

func (b *BreakerClient) GetTransaction(ctx context.Context, txHash string) (*ChainTransaction, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.GetTransaction(ctx, txHash)
	})
	if err != nil {
		return nil, err
	}
	return res.(*ChainTransaction), nil
}

// State reports the breaker state, e.g. "closed" or "open"
func (b *BreakerClient) State() string {
	return b.breaker.State().String()
}
