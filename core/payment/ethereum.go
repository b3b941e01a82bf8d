package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// transferTopic is keccak256("Transfer(address,address,uint256)")
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// usdtDecimals is the token precision of USDT on both networks
const usdtDecimals = 6

// EthereumRPC is the subset of ethclient.Client the verifier uses
type EthereumRPC interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EthereumClient reads transactions over Ethereum JSON-RPC
type EthereumClient struct {
	rpc EthereumRPC
}

// DialEthereum connects to an Ethereum JSON-RPC endpoint
func DialEthereum(ctx context.Context, url string) (*EthereumClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum rpc: %w", err)
	}
	return NewEthereumClient(client), nil
}

// NewEthereumClient wraps an existing RPC client
func NewEthereumClient(rpc EthereumRPC) *EthereumClient {
	return &EthereumClient{rpc: rpc}
}

func (c *EthereumClient) GetTransaction(ctx context.Context, txHash string) (*ChainTransaction, error) {
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		return nil, fmt.Errorf("malformed ethereum tx hash %q", txHash)
	}
	hash := common.HexToHash(txHash)

	receipt, err := c.rpc.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	tx, _, err := c.rpc.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}

	out := &ChainTransaction{
		Hash:      strings.ToLower(txHash),
		Success:   receipt.Status == types.ReceiptStatusSuccessful,
		BlockHash: receipt.BlockHash.Hex(),
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Int64()
		out.Confirmations = confirmationsAt(int64(head), out.BlockNumber)
	}

	if from, to, value, ok := decodeTransfer(receipt.Logs); ok {
		out.From, out.To, out.Value = from, to, value
		out.Asset = "USDT"
		return out, nil
	}

	// Native transfer: value in wei
	if sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		out.From = strings.ToLower(sender.Hex())
	}
	if tx.To() != nil {
		out.To = strings.ToLower(tx.To().Hex())
	}
	out.Value = decimal.NewFromBigInt(tx.Value(), -18)
	out.Asset = "ETH"
	return out, nil
}

// decodeTransfer extracts the first ERC-20 Transfer event of the receipt
func decodeTransfer(logs []*types.Log) (from, to string, value decimal.Decimal, ok bool) {
	for _, l := range logs {
		if l == nil || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		from = strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex())
		to = strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex())
		value = decimal.NewFromBigInt(new(big.Int).SetBytes(l.Data), -usdtDecimals)
		return from, to, value, true
	}
	return "", "", decimal.Zero, false
}
