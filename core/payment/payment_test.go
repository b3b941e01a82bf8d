package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/memstore"
	"aiforge-core/core/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	mu  sync.Mutex
	tx  *ChainTransaction
	err error
}

func (f *fakeChain) set(tx *ChainTransaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tx, f.err = tx, err
}

func (f *fakeChain) GetTransaction(_ context.Context, hash string) (*ChainTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := *f.tx
	c.Hash = hash
	return &c, nil
}

func newService(chain *fakeChain) *Service {
	settings := DefaultSettings()
	settings.PlatformWallets[models.NetworkTron] = "TPlatformWallet"
	return NewService(memstore.New(), ChainRouter{
		models.NetworkTron:     chain,
		models.NetworkEthereum: chain,
	}, settings, nil)
}

func createTron(t *testing.T, s *Service, amount string) *models.Payment {
	t.Helper()
	p, err := s.Create(context.Background(), CreateRequest{
		Type:        models.PaymentTypeAPIUsage,
		Amount:      decimal.RequireFromString(amount),
		Network:     models.NetworkTron,
		FromAddress: "TSender",
	})
	require.NoError(t, err)
	return p
}

func TestTronPaymentConfirms(t *testing.T) {
	chain := &fakeChain{}
	s := newService(chain)
	p := createTron(t, s, "100")

	assert.Equal(t, "10", p.PlatformFeeAmount.String())
	assert.Equal(t, "90", p.NetAmount.String())
	assert.Equal(t, "0.1", p.PlatformFeePercent.String())
	assert.Equal(t, 19, p.RequiredConfirmations)
	assert.Equal(t, "TPlatformWallet", p.ToAddress)
	assert.Equal(t, "USDT", p.Currency)
	assert.Equal(t, models.PaymentStatusPending, p.Status)

	chain.set(&ChainTransaction{Success: true, BlockNumber: 1000, BlockHash: "bh", Confirmations: 19}, nil)
	got, confirmed, err := s.Verify(context.Background(), p.ID, "abc123", models.NetworkTron)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, models.PaymentStatusConfirmed, got.Status)
	assert.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, int64(1000), *got.BlockNumber)
	assert.True(t, got.Amount.Equal(got.NetAmount.Add(got.PlatformFeeAmount)))
}

func TestVerifyMonotonic(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{}
	s := newService(chain)
	p, err := s.Create(ctx, CreateRequest{
		Type:        models.PaymentTypeJob,
		Amount:      decimal.NewFromInt(5),
		Network:     models.NetworkEthereum,
		FromAddress: "0xABCDEF",
		ToAddress:   "0xFEED",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", p.FromAddress)
	assert.Equal(t, 3, p.RequiredConfirmations)

	hash := "0xAA"
	for _, depth := range []int{0, 1, 2} {
		chain.set(&ChainTransaction{Success: true, BlockNumber: 10, Confirmations: depth}, nil)
		got, confirmed, err := s.Verify(ctx, p.ID, hash, models.NetworkEthereum)
		require.NoError(t, err)
		assert.False(t, confirmed)
		assert.Equal(t, models.PaymentStatusConfirming, got.Status)
		assert.Equal(t, depth, got.Confirmations)
	}

	// a lagging RPC node must not lower the depth
	chain.set(&ChainTransaction{Success: true, BlockNumber: 10, Confirmations: 1}, nil)
	got, _, err := s.Verify(ctx, p.ID, hash, models.NetworkEthereum)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Confirmations)
	assert.Equal(t, models.PaymentStatusConfirming, got.Status)

	chain.set(&ChainTransaction{Success: true, BlockNumber: 10, Confirmations: 3}, nil)
	got, confirmed, err := s.Verify(ctx, p.ID, hash, models.NetworkEthereum)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, models.PaymentStatusConfirmed, got.Status)
	confirmedAt := *got.ConfirmedAt

	// confirmed is final
	chain.set(&ChainTransaction{Success: false}, nil)
	got, confirmed, err = s.Verify(ctx, p.ID, hash, models.NetworkEthereum)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, models.PaymentStatusConfirmed, got.Status)
	assert.Equal(t, confirmedAt, *got.ConfirmedAt)

	_, err = s.Cancel(ctx, p.ID, "")
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestVerifyInconclusive(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{}
	s := newService(chain)
	p := createTron(t, s, "10")

	chain.set(nil, errors.New("connection refused"))
	got, confirmed, err := s.Verify(ctx, p.ID, "abc", models.NetworkTron)
	assert.ErrorIs(t, err, errs.ErrInconclusive)
	assert.False(t, confirmed)
	assert.Equal(t, models.PaymentStatusPending, got.Status)

	chain.set(nil, ErrTxNotFound)
	_, _, err = s.Verify(ctx, p.ID, "abc", models.NetworkTron)
	assert.ErrorIs(t, err, errs.ErrInconclusive)

	stored, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Empty(t, stored.TxHash)
}

func TestVerifyFailedTransaction(t *testing.T) {
	chain := &fakeChain{}
	s := newService(chain)
	p := createTron(t, s, "10")

	chain.set(&ChainTransaction{Success: false}, nil)
	got, confirmed, err := s.Verify(context.Background(), p.ID, "abc", models.NetworkTron)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, models.PaymentStatusFailed, got.Status)
	assert.Nil(t, got.ConfirmedAt)
}

func TestVerifyGuards(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{}
	s := newService(chain)
	p := createTron(t, s, "10")
	other := createTron(t, s, "10")

	_, _, err := s.Verify(ctx, p.ID, "abc", models.NetworkEthereum)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, _, err = s.Verify(ctx, p.ID, "", models.NetworkTron)
	assert.ErrorIs(t, err, errs.ErrValidation)

	chain.set(&ChainTransaction{Success: true, Confirmations: 1}, nil)
	_, _, err = s.Verify(ctx, p.ID, "abc", models.NetworkTron)
	require.NoError(t, err)

	_, _, err = s.Verify(ctx, p.ID, "def", models.NetworkTron)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, _, err = s.Verify(ctx, other.ID, "abc", models.NetworkTron)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, _, err = s.Verify(ctx, 999, "abc", models.NetworkTron)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestConcurrentVerifyConverges(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{}
	s := newService(chain)
	p := createTron(t, s, "50")
	chain.set(&ChainTransaction{Success: true, BlockNumber: 7, Confirmations: 25}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Verify(ctx, p.ID, "abc", models.NetworkTron)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusConfirmed, got.Status)
	assert.Equal(t, 25, got.Confirmations)
}

func TestCreateValidation(t *testing.T) {
	s := NewService(memstore.New(), nil, DefaultSettings(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"unknown type", CreateRequest{Type: "tip", Amount: decimal.NewFromInt(1), Network: models.NetworkTron, FromAddress: "T", ToAddress: "T2"}},
		{"zero amount", CreateRequest{Type: models.PaymentTypeJob, Network: models.NetworkTron, FromAddress: "T", ToAddress: "T2"}},
		{"bad network", CreateRequest{Type: models.PaymentTypeJob, Amount: decimal.NewFromInt(1), Network: "solana", FromAddress: "T", ToAddress: "T2"}},
		{"no wallet", CreateRequest{Type: models.PaymentTypeJob, Amount: decimal.NewFromInt(1), Network: models.NetworkTron, FromAddress: "T"}},
		{"bad link", CreateRequest{Type: models.PaymentTypeJob, Amount: decimal.NewFromInt(1), Network: models.NetworkTron, FromAddress: "T", ToAddress: "T2", Linked: models.LinkedEntity{Kind: models.LinkJob}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.req)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestCancelAndList(t *testing.T) {
	ctx := context.Background()
	s := newService(&fakeChain{})
	p := createTron(t, s, "10")

	got, err := s.Cancel(ctx, p.ID, "TSender")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, got.Status)

	list, err := s.ListForWallet(ctx, "TSender", 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestTronClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/gettransactionbyid":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			switch body["value"] {
			case "tx1":
				_, _ = w.Write([]byte(`{"txID":"tx1","ret":[{"contractRet":"SUCCESS"}],
					"raw_data":{"contract":[{"type":"TransferContract","parameter":{"value":{"owner_address":"TFrom","to_address":"TTo","amount":100000000}}}]}}`))
			case "usdt":
				_, _ = w.Write([]byte(`{"txID":"usdt","ret":[{"contractRet":"SUCCESS"}],
					"raw_data":{"contract":[{"type":"TriggerSmartContract","parameter":{"value":{"owner_address":"TFrom",
					"contract_address":"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
					"data":"` + trc20Call + `"}}}]}}`))
			case "reverted":
				_, _ = w.Write([]byte(`{"txID":"reverted","ret":[{"contractRet":"REVERT"}]}`))
			case "pending":
				_, _ = w.Write([]byte(`{"txID":"pending","raw_data":{}}`))
			default:
				_, _ = w.Write([]byte(`{}`))
			}
		case "/wallet/gettransactioninfobyid":
			_, _ = w.Write([]byte(`{"id":"tx1","blockNumber":500}`))
		case "/wallet/getnowblock":
			_, _ = w.Write([]byte(`{"block_header":{"raw_data":{"number":519}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewTronClient(srv.URL, 5*time.Second)

	tx, err := client.GetTransaction(context.Background(), "tx1")
	require.NoError(t, err)
	assert.True(t, tx.Success)
	assert.Equal(t, int64(500), tx.BlockNumber)
	assert.Equal(t, 19, tx.Confirmations)
	assert.Equal(t, "TFrom", tx.From)
	assert.Equal(t, "TTo", tx.To)
	assert.Equal(t, "100", tx.Value.String())
	assert.Equal(t, "TRX", tx.Asset)

	tx, err = client.GetTransaction(context.Background(), "usdt")
	require.NoError(t, err)
	assert.True(t, tx.Success)
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", tx.To)
	assert.Equal(t, "25.5", tx.Value.String())
	assert.Equal(t, "USDT", tx.Asset)

	tx, err = client.GetTransaction(context.Background(), "reverted")
	require.NoError(t, err)
	assert.False(t, tx.Success)

	// no contract result yet is not a failure
	_, err = client.GetTransaction(context.Background(), "pending")
	assert.ErrorIs(t, err, ErrTxNotFound)

	_, err = client.GetTransaction(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTxNotFound)
}

// transfer(TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t, 25500000)
const trc20Call = "a9059cbb" +
	"000000000000000000000000a614f803b6fd780986a42c78ec9c7f77e6ded13c" +
	"0000000000000000000000000000000000000000000000000000000001851960"

func TestDecodeTRC20Transfer(t *testing.T) {
	to, value, ok := decodeTRC20Transfer(trc20Call)
	require.True(t, ok)
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", to)
	assert.Equal(t, "25.5", value.String())

	_, _, ok = decodeTRC20Transfer("095ea7b3" + trc20Call[8:])
	assert.False(t, ok)
	_, _, ok = decodeTRC20Transfer("a9059cbb00")
	assert.False(t, ok)
}

type blockingChain struct{}

func (blockingChain) GetTransaction(ctx context.Context, _ string) (*ChainTransaction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestVerifyRPCTimeout(t *testing.T) {
	settings := DefaultSettings()
	settings.PlatformWallets[models.NetworkTron] = "TPlatformWallet"
	settings.RPCTimeout = 20 * time.Millisecond
	s := NewService(memstore.New(), ChainRouter{models.NetworkTron: blockingChain{}}, settings, nil)
	p := createTron(t, s, "10")

	done := make(chan error, 1)
	go func() {
		_, _, err := s.Verify(context.Background(), p.ID, "slow", models.NetworkTron)
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errs.Is(err, errs.ErrInconclusive))
	case <-time.After(5 * time.Second):
		t.Fatal("verify did not return after the rpc timeout")
	}

	got, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
	assert.Empty(t, got.TxHash)
}

func TestVerifyRecordsObservedTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("matching transfer", func(t *testing.T) {
		chain := &fakeChain{}
		s := newService(chain)
		p := createTron(t, s, "25")

		chain.set(&ChainTransaction{Success: true, BlockNumber: 7, Confirmations: 1,
			To: "TPlatformWallet", Value: decimal.RequireFromString("25"), Asset: "USDT"}, nil)
		got, _, err := s.Verify(ctx, p.ID, "ok", models.NetworkTron)
		require.NoError(t, err)
		assert.Equal(t, "TPlatformWallet", got.Metadata["observed_to"])
		assert.Equal(t, "25 USDT", got.Metadata["observed_value"])
		assert.NotContains(t, got.Metadata, "transfer_mismatch")
	})

	t.Run("wrong recipient and short amount", func(t *testing.T) {
		chain := &fakeChain{}
		s := newService(chain)
		p, err := s.Create(ctx, CreateRequest{
			Type:        models.PaymentTypeAPIUsage,
			Amount:      decimal.NewFromInt(25),
			Network:     models.NetworkTron,
			FromAddress: "TSender",
			Metadata:    map[string]interface{}{"plan": "pro"},
		})
		require.NoError(t, err)

		chain.set(&ChainTransaction{Success: true, BlockNumber: 7, Confirmations: 1,
			To: "TSomeoneElse", Value: decimal.RequireFromString("2.5"), Asset: "USDT"}, nil)
		got, _, err := s.Verify(ctx, p.ID, "short", models.NetworkTron)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusConfirming, got.Status)
		assert.Equal(t, "recipient,amount", got.Metadata["transfer_mismatch"])
		assert.Equal(t, "pro", got.Metadata["plan"])

		// the creation snapshot keeps its own metadata
		assert.NotContains(t, p.Metadata, "observed_to")
	})

	t.Run("native coin for a token payment", func(t *testing.T) {
		chain := &fakeChain{}
		s := newService(chain)
		p := createTron(t, s, "25")

		chain.set(&ChainTransaction{Success: true, BlockNumber: 7, Confirmations: 1,
			To: "TPlatformWallet", Value: decimal.RequireFromString("100"), Asset: "TRX"}, nil)
		got, _, err := s.Verify(ctx, p.ID, "trx", models.NetworkTron)
		require.NoError(t, err)
		assert.Equal(t, "asset", got.Metadata["transfer_mismatch"])
	})
}

func TestPaymentOwnership(t *testing.T) {
	ctx := context.Background()
	s := newService(&fakeChain{})
	p := createTron(t, s, "10")

	got, err := s.GetOwned(ctx, p.ID, "TSender")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.GetOwned(ctx, p.ID, "TIntruder")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	// empty owner is the admin path
	_, err = s.GetOwned(ctx, p.ID, "")
	require.NoError(t, err)

	_, err = s.Cancel(ctx, p.ID, "TIntruder")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	got, err = s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)

	eth, err := s.Create(ctx, CreateRequest{
		Type:        models.PaymentTypeAPIUsage,
		Amount:      decimal.NewFromInt(5),
		Network:     models.NetworkEthereum,
		FromAddress: "0xABCDEF",
		ToAddress:   "0x1234",
	})
	require.NoError(t, err)
	_, err = s.GetOwned(ctx, eth.ID, "0xAbCdEf")
	assert.NoError(t, err)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	chain := &fakeChain{}
	chain.set(nil, errors.New("timeout"))
	b := NewBreakerClient("test", chain)

	for i := 0; i < 5; i++ {
		_, err := b.GetTransaction(context.Background(), "x")
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())

	nf := &fakeChain{}
	nf.set(nil, ErrTxNotFound)
	b = NewBreakerClient("notfound", nf)
	for i := 0; i < 10; i++ {
		_, err := b.GetTransaction(context.Background(), "x")
		assert.ErrorIs(t, err, ErrTxNotFound)
	}
	assert.Equal(t, "closed", b.State())
}
