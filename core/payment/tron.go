package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// trc20TransferSelector is the 4-byte selector of transfer(address,uint256)
const trc20TransferSelector = "a9059cbb"

// TronClient reads transactions from a TronGrid-compatible REST API
type TronClient struct {
	baseURL string
	http    *http.Client
}

// NewTronClient creates a client for baseURL, e.g. https://api.trongrid.io
func NewTronClient(baseURL string, timeout time.Duration) *TronClient {
	return &TronClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type tronTransaction struct {
	TxID string `json:"txID"`
	Ret  []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
	RawData struct {
		Contract []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value struct {
					OwnerAddress    string `json:"owner_address"`
					ToAddress       string `json:"to_address"`
					Amount          int64  `json:"amount"`
					ContractAddress string `json:"contract_address"`
					Data            string `json:"data"`
				} `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
}

type tronTransactionInfo struct {
	ID          string `json:"id"`
	BlockNumber int64  `json:"blockNumber"`
}

type tronBlock struct {
	BlockID     string `json:"blockID"`
	BlockHeader struct {
		RawData struct {
			Number int64 `json:"number"`
		} `json:"raw_data"`
	} `json:"block_header"`
}

func (c *TronClient) GetTransaction(ctx context.Context, txHash string) (*ChainTransaction, error) {
	var tx tronTransaction
	if err := c.post(ctx, "/wallet/gettransactionbyid", txHash, &tx); err != nil {
		return nil, err
	}
	if tx.TxID == "" {
		return nil, ErrTxNotFound
	}

	if len(tx.Ret) == 0 || tx.Ret[0].ContractRet == "" {
		return nil, fmt.Errorf("tron transaction %s has no result yet: %w", txHash, ErrTxNotFound)
	}
	out := &ChainTransaction{Hash: txHash}
	if tx.Ret[0].ContractRet != "SUCCESS" {
		return out, nil
	}
	out.Success = true

	if len(tx.RawData.Contract) > 0 {
		c := tx.RawData.Contract[0]
		out.From = c.Parameter.Value.OwnerAddress
		switch c.Type {
		case "TriggerSmartContract":
			if to, value, ok := decodeTRC20Transfer(c.Parameter.Value.Data); ok {
				out.To, out.Value, out.Asset = to, value, "USDT"
			}
		default:
			// TransferContract amounts are in sun
			out.To = c.Parameter.Value.ToAddress
			out.Value = decimal.New(c.Parameter.Value.Amount, -6)
			out.Asset = "TRX"
		}
	}

	var info tronTransactionInfo
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", txHash, &info); err != nil {
		return nil, err
	}
	if info.BlockNumber == 0 {
		// not yet in a block
		return nil, ErrTxNotFound
	}
	out.BlockNumber = info.BlockNumber

	var head tronBlock
	if err := c.get(ctx, "/wallet/getnowblock", &head); err != nil {
		return nil, err
	}
	out.Confirmations = confirmationsAt(head.BlockHeader.RawData.Number, info.BlockNumber)
	return out, nil
}

func (c *TronClient) post(ctx context.Context, path, txHash string, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"value": txHash, "visible": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *TronClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *TronClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tron request %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tron request %s returned %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tron response: %w", err)
	}
	return nil
}

// decodeTRC20Transfer reads the recipient and amount from transfer(address,uint256)
// call data. The recipient is returned in base58check form.
func decodeTRC20Transfer(data string) (string, decimal.Decimal, bool) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil || len(raw) != 4+32+32 || hex.EncodeToString(raw[:4]) != trc20TransferSelector {
		return "", decimal.Zero, false
	}
	addr := append([]byte{0x41}, raw[4+12:4+32]...)
	amount := new(big.Int).SetBytes(raw[4+32:])
	return tronAddress(addr), decimal.NewFromBigInt(amount, -usdtDecimals), true
}

// tronAddress encodes a 21-byte 0x41-prefixed address as base58check
func tronAddress(addr []byte) string {
	first := sha256.Sum256(addr)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(addr, second[:4]...))
}
