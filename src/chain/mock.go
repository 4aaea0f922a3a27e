package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/cyruslab/pedalpay/src/model"
)

type MockTransfer struct {
	To     model.WalletAddr
	Amount *big.Int
	Nonce  uint64
}

// MockClient records transfers instead of broadcasting them and serves
// scripted receipts. Used by tests and by `use_mock` deployments.
type MockClient struct {
	mu sync.Mutex

	hotWallet model.WalletAddr
	nextNonce uint64

	NonceErr  error
	SubmitErr error
	// FailSubmits rejects this many broadcasts before accepting again.
	FailSubmits int

	Transfers []MockTransfer
	receipts  map[string]*Receipt
}

func NewMockClient(cfg Config) *MockClient {
	return &MockClient{
		hotWallet: "0x00000000000000000000000000000000DeaDBeef",
		receipts:  map[string]*Receipt{},
	}
}

func (c *MockClient) HotWalletAddress() model.WalletAddr {
	return c.hotWallet
}

func (c *MockClient) TransactionCount(ctx context.Context, addr model.WalletAddr) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NonceErr != nil {
		return 0, c.NonceErr
	}
	return c.nextNonce, nil
}

func (c *MockClient) SubmitTransfer(ctx context.Context, to model.WalletAddr, amount *big.Int, nonce uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	if c.FailSubmits > 0 {
		c.FailSubmits--
		return "", ErrSubmission
	}
	c.Transfers = append(c.Transfers, MockTransfer{To: to, Amount: amount, Nonce: nonce})
	return fmt.Sprintf("0x%064x", len(c.Transfers)), nil
}

func (c *MockClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if receipt, found := c.receipts[txHash]; found {
		return receipt, nil
	}
	return nil, ErrReceiptNotFound
}

// ScriptReceipt makes the given receipt available to subsequent polls.
func (c *MockClient) ScriptReceipt(txHash string, receipt *Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[txHash] = receipt
}

// SeedNonce sets the transaction count the chain will report.
func (c *MockClient) SeedNonce(nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextNonce = nonce
}

func (c *MockClient) Close() {}
