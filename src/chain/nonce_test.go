package chain

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestNonceSequencerPeekDoesNotConsume(t *testing.T) {
	mock := NewMockClient(Config{})
	mock.SeedNonce(41)

	seq, err := NewNonceSequencer(context.Background(), mock, mock.HotWalletAddress())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if got := seq.Peek(); got != 41 {
			t.Fatalf("peek %d: got %d, want 41", i, got)
		}
	}
}

func TestNonceSequencerAdvancesGaplessly(t *testing.T) {
	mock := NewMockClient(Config{})
	mock.SeedNonce(41)

	seq, err := NewNonceSequencer(context.Background(), mock, mock.HotWalletAddress())
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 100; i++ {
		if got := seq.Peek(); got != 41+i {
			t.Fatalf("nonce %d: got %d, want %d", i, got, 41+i)
		}
		seq.Advance()
	}
}

func TestNonceSequencerSeedFailure(t *testing.T) {
	mock := NewMockClient(Config{})
	mock.NonceErr = errors.New("rpc timeout")

	if _, err := NewNonceSequencer(context.Background(), mock, mock.HotWalletAddress()); err == nil {
		t.Fatal("expected seed failure to propagate")
	}
}
