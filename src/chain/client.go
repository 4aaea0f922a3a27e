package chain

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/model"
)

// ErrReceiptNotFound means the chain has no receipt for the hash yet. The
// transaction may still land; callers re-poll on the next tick.
var ErrReceiptNotFound = errors.New("transaction receipt not available")

// ErrSubmission marks a broadcast that was rejected before obtaining a hash.
var ErrSubmission = errors.New("chain submission rejected")

const (
	ReceiptStatusFailed  uint64 = 0
	ReceiptStatusSuccess uint64 = 1
)

type Receipt struct {
	Status      uint64
	BlockNumber *big.Int
}

func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccess
}

// Client is the remote ledger surface the settlement pipeline depends on.
// Anything that can count transactions, broadcast a signed token transfer and
// fetch a receipt can stand in, including the mock used in tests.
type Client interface {
	HotWalletAddress() model.WalletAddr
	TransactionCount(ctx context.Context, addr model.WalletAddr) (uint64, error)
	SubmitTransfer(ctx context.Context, to model.WalletAddr, amount *big.Int, nonce uint64) (string, error)
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	Close()
}

type Config struct {
	RPCURL        string `yaml:"rpc_url"`
	ChainID       int64  `yaml:"chain_id"`
	TokenContract string `yaml:"token_contract"`
	PrivateKey    string `yaml:"private_key"`
	GasLimit      uint64 `yaml:"gas_limit"`
	GasPriceGwei  int64  `yaml:"gas_price_gwei"`
	Mock          bool   `yaml:"use_mock"`
}

func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (Client, error) {
	if cfg.Mock {
		return NewMockClient(cfg), nil
	}
	return NewEVMClient(ctx, cfg, logger)
}
