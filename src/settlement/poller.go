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

// PollSettlements advances every submitted payout whose receipt is now
// available. Per-payout problems are logged and skipped; one bad lookup never
// aborts the rest of the tick. A missing receipt is not a failure, the
// payout simply stays submitted until a later tick.
func (p *Pipeline) PollSettlements(ctx context.Context) error {
	payouts, err := postgres.GetSubmittedPayouts(ctx, p.pollBatchLimit)
	if err != nil {
		return errors.Wrap(err, "failed fetching submitted payouts to poll")
	}
	logger := p.logger.With(zap.String("component", "settlement_poller"))
	logger.Info(fmt.Sprintf("polling %d submitted payouts", len(payouts)))

	for _, payout := range payouts {
		p.pollOne(ctx, logger, payout)
	}
	return nil
}

func (p *Pipeline) pollOne(ctx context.Context, logger *zap.Logger, payout *model.OutboundPayout) {
	logger = logger.With(zap.String("payout", payout.ID), zap.String("owner", payout.OwnerID))
	if payout.TxHash == nil {
		logger.Warn("submitted payout has no tx hash, skipping")
		return
	}
	logger = logger.With(zap.String("tx_hash", *payout.TxHash))

	receipt, err := p.chain.TransactionReceipt(ctx, *payout.TxHash)
	if errors.Is(err, chain.ErrReceiptNotFound) {
		logger.Debug("no receipt yet, will re-poll")
		return
	}
	if err != nil {
		logger.Warn("receipt lookup failed, will re-poll", zap.Error(err))
		return
	}

	if receipt.Succeeded() {
		if err := postgres.MarkPayoutConfirmed(ctx, payout.ID); err != nil {
			logger.Error("failed confirming payout", zap.Error(err))
			return
		}
		payoutsConfirmed.Inc()
		logger.Info("payout confirmed", zap.String("block", receipt.BlockNumber.String()))
		return
	}

	if err := postgres.MarkPayoutFailed(ctx, payout.ID, "transaction reverted on chain"); err != nil {
		logger.Error("failed recording reverted payout", zap.Error(err))
		return
	}
	payoutsFailed.Inc()
	logger.Error("payout reverted on chain")
}
