package settlement

import (
	"context"

	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/postgres"
)

// ReleaseFailedPayout hands a failed payout's credits back to the unsettled
// pool. This is the only path that unlinks credits from a payout and it is
// operator-invoked; the pipeline never re-queues failed payouts on its own.
func (p *Pipeline) ReleaseFailedPayout(ctx context.Context, payoutID string) error {
	if err := postgres.ReleaseFailedPayoutCredits(ctx, payoutID); err != nil {
		return err
	}
	payoutsReleased.Inc()
	p.logger.Info("released credits from failed payout", zap.String("payout", payoutID))
	return nil
}
