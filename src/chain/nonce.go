package chain

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/cyruslab/pedalpay/src/model"
)

// NonceSequencer tracks the transaction sequence number for one wallet within
// one scheduler run. The starting point is read from the chain exactly once;
// after that the sequence advances locally, and only when a broadcast was
// actually accepted. A rejected broadcast leaves the sequence untouched so the
// next payout reuses the nonce; skipping it would leave an on-chain gap that
// strands every later transaction of the run. A fresh sequencer is built per
// run, never reused.
type NonceSequencer struct {
	mu   sync.Mutex
	next uint64
}

// NewNonceSequencer seeds the sequencer from the chain. If the query fails
// there is no safe starting nonce and the caller must abort its run; guessing
// risks colliding with or stalling the wallet's transaction queue.
func NewNonceSequencer(ctx context.Context, client Client, addr model.WalletAddr) (*NonceSequencer, error) {
	nonce, err := client.TransactionCount(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed seeding nonce for wallet %s", addr)
	}
	return &NonceSequencer{next: nonce}, nil
}

// Peek returns the nonce the next broadcast must carry, without consuming it.
func (s *NonceSequencer) Peek() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Advance consumes the current nonce. Call only after the chain accepted the
// broadcast carrying it.
func (s *NonceSequencer) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
}
