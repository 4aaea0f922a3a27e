package settlement

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/chain"
	"github.com/cyruslab/pedalpay/src/model"
	"github.com/cyruslab/pedalpay/src/postgres"
)

// RunSubmissions is one scheduled submission pass: seed the nonce from the
// chain, then broadcast every requested token payout in order. A failed nonce
// seed aborts the whole run with nothing mutated. A failed individual payout
// is marked failed and the run continues; once the run deadline expires the
// remaining payouts wait for the next scheduled invocation.
func (p *Pipeline) RunSubmissions(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.runDeadline)
	defer cancel()

	logger := p.logger.With(zap.String("component", "submission_run"))

	hotWallet := p.chain.HotWalletAddress()
	sequencer, err := chain.NewNonceSequencer(ctx, p.chain, hotWallet)
	if err != nil {
		return errors.Wrap(err, "aborting run, could not seed nonce from chain")
	}

	payouts, err := postgres.GetRequestedPayouts(ctx, p.submitBatchLimit)
	if err != nil {
		return errors.Wrap(err, "aborting run, could not fetch requested payouts")
	}
	logger.Info(fmt.Sprintf("fetched %d payouts for submission", len(payouts)))

	for _, payout := range payouts {
		if ctx.Err() != nil {
			logger.Warn("run deadline reached, deferring remaining payouts",
				zap.Error(ctx.Err()))
			break
		}
		p.submitOne(ctx, logger, sequencer, payout)
	}
	return nil
}

func (p *Pipeline) submitOne(ctx context.Context, logger *zap.Logger, sequencer *chain.NonceSequencer, payout *model.OutboundPayout) {
	logger = logger.With(zap.String("payout", payout.ID),
		zap.String("owner", payout.OwnerID), zap.String("wallet", string(payout.Wallet)),
		zap.String("amount", payout.Amount.String()))

	if !chain.ValidAddress(payout.Wallet) {
		logger.Error("invalid destination address, failing payout")
		p.failPayout(ctx, logger, payout.ID, "invalid destination address")
		return
	}

	nonce := sequencer.Peek()
	txHash, err := p.chain.SubmitTransfer(ctx,
		chain.ChecksumAddress(payout.Wallet), model.ToBaseUnits(payout.Amount), nonce)
	if err != nil {
		// nonce stays unconsumed; a gap here would strand the rest of the run
		logger.Error("chain submission failed", zap.Uint64("nonce", nonce), zap.Error(err))
		p.failPayout(ctx, logger, payout.ID, err.Error())
		return
	}
	sequencer.Advance()

	if err := postgres.MarkPayoutSubmitted(ctx, payout.ID, txHash); err != nil {
		// the transfer is on the wire; losing this write must be loud
		logger.Error("CRITICAL: broadcast succeeded but status write failed",
			zap.String("tx_hash", txHash), zap.Error(err))
		return
	}
	payoutsSubmitted.Inc()
	logger.Info("payout submitted", zap.String("tx_hash", txHash), zap.Uint64("nonce", nonce))
}

func (p *Pipeline) failPayout(ctx context.Context, logger *zap.Logger, id, msg string) {
	if err := postgres.MarkPayoutFailed(ctx, id, msg); err != nil {
		logger.Error("failed recording payout failure", zap.Error(err))
		return
	}
	payoutsFailed.Inc()
}
