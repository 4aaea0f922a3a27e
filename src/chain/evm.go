package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/model"
)

const (
	defaultGasLimit     = 200_000
	defaultGasPriceGwei = 10
	dialMaxElapsed      = 30 * time.Second
)

// EVMClient submits ERC-20 reward transfers from the hot wallet and reads
// receipts back. The signing key lives here and nowhere else.
type EVMClient struct {
	eth      *ethclient.Client
	key      *ecdsa.PrivateKey
	from     common.Address
	token    common.Address
	chainID  *big.Int
	gasLimit uint64
	gasPrice *big.Int
	logger   *zap.Logger
}

func NewEVMClient(ctx context.Context, cfg Config, logger *zap.Logger) (*EVMClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing hot wallet signing key")
	}
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, errors.Errorf("invalid token contract address %s", cfg.TokenContract)
	}

	var eth *ethclient.Client
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = dialMaxElapsed
	err = backoff.Retry(func() error {
		c, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return err
		}
		eth = c
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "failed connecting to chain rpc at %s", cfg.RPCURL)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	gasPriceGwei := cfg.GasPriceGwei
	if gasPriceGwei == 0 {
		gasPriceGwei = defaultGasPriceGwei
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	return &EVMClient{
		eth:      eth,
		key:      key,
		from:     from,
		token:    common.HexToAddress(cfg.TokenContract),
		chainID:  big.NewInt(cfg.ChainID),
		gasLimit: gasLimit,
		gasPrice: new(big.Int).Mul(big.NewInt(gasPriceGwei), big.NewInt(1_000_000_000)),
		logger: logger.With(zap.String("component", "evm_client"),
			zap.String("hot_wallet", from.Hex())),
	}, nil
}

func (c *EVMClient) HotWalletAddress() model.WalletAddr {
	return model.WalletAddr(c.from.Hex())
}

func (c *EVMClient) TransactionCount(ctx context.Context, addr model.WalletAddr) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(string(addr)))
	if err != nil {
		return 0, errors.Wrapf(err, "failed fetching transaction count for %s", addr)
	}
	return nonce, nil
}

// SubmitTransfer signs and broadcasts a token transfer. Broadcasting is
// irreversible; callers must verify through receipts rather than resubmit on
// ambiguous failure.
func (c *EVMClient) SubmitTransfer(ctx context.Context, to model.WalletAddr, amount *big.Int, nonce uint64) (string, error) {
	if !common.IsHexAddress(string(to)) {
		return "", errors.WithMessagef(ErrSubmission, "invalid destination address %s", to)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.token,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: c.gasPrice,
		Data:     transferCalldata(common.HexToAddress(string(to)), amount),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", errors.WithMessagef(ErrSubmission, "failed signing transfer to %s: %v", to, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", errors.WithMessagef(ErrSubmission, "failed broadcasting transfer to %s: %v", to, err)
	}

	hash := signed.Hash().Hex()
	c.logger.Info("broadcast reward transfer",
		zap.String("to", string(to)), zap.String("amount", amount.String()),
		zap.Uint64("nonce", nonce), zap.String("tx_hash", hash))
	return hash, nil
}

func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching receipt for %s", txHash)
	}
	return &Receipt{Status: receipt.Status, BlockNumber: receipt.BlockNumber}, nil
}

func (c *EVMClient) Close() {
	c.eth.Close()
}

// ValidAddress reports whether the destination can receive an ERC-20
// transfer. Invalid addresses fail their payout before any nonce is spent.
func ValidAddress(addr model.WalletAddr) bool {
	return common.IsHexAddress(string(addr))
}

// ChecksumAddress normalizes a destination to its EIP-55 form.
func ChecksumAddress(addr model.WalletAddr) model.WalletAddr {
	return model.WalletAddr(common.HexToAddress(string(addr)).Hex())
}

// transfer(address,uint256)
var transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

func transferCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
