package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/model"
	"github.com/cyruslab/pedalpay/src/postgres"
)

// ErrNoUnsettledCredits means the owner has nothing to pay out.
var ErrNoUnsettledCredits = errors.New("owner has no unsettled credits")

// CreatePayout sweeps every unsettled credit of the given type for the owner
// into one new payout. The payout row and the credit links commit in a single
// transaction; if linking fails the payout does not exist. Token payouts need
// an enabled wallet and wait for the next submission run; point payouts carry
// no wallet and settle off-chain immediately.
func (p *Pipeline) CreatePayout(ctx context.Context, ownerID string, rewardType model.RewardType) (*model.OutboundPayout, error) {
	var walletAddr model.WalletAddr
	if rewardType == model.RewardTypeToken {
		wallet, err := postgres.GetWalletByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		walletAddr = wallet.Address
	}

	credits, err := postgres.GetUnsettledCredits(ctx, ownerID, rewardType)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching unsettled credits for owner %s", ownerID)
	}
	if len(credits) == 0 {
		return nil, ErrNoUnsettledCredits
	}

	ceiling := p.dailyTokenCap
	if rewardType == model.RewardTypePoint {
		ceiling = p.dailyPointCap
	}
	amount := DailyCappedTotal(credits, ceiling)

	now := time.Now().UTC()
	payout := &model.OutboundPayout{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Type:        rewardType,
		Wallet:      walletAddr,
		Amount:      amount,
		Status:      model.PayoutStatusRequested,
		RequestedAt: now,
	}
	switch rewardType {
	case model.RewardTypeToken:
		payout.OperatingFee = amount.Mul(p.feeRate)
	case model.RewardTypePoint:
		// points never touch the chain, the payout is final at creation
		payout.OperatingFee = decimal.Zero
		payout.Status = model.PayoutStatusConfirmed
		payout.ResultAt = &now
	}

	creditIDs := make([]string, 0, len(credits))
	for _, credit := range credits {
		creditIDs = append(creditIDs, credit.ID)
	}
	if err := postgres.CreatePayout(ctx, payout, creditIDs); err != nil {
		return nil, errors.Wrapf(err, "failed creating payout for owner %s", ownerID)
	}

	payoutsCreated.Inc()
	p.logger.Info("created payout",
		zap.String("payout", payout.ID), zap.String("owner", ownerID),
		zap.String("wallet", string(walletAddr)),
		zap.String("amount", amount.String()),
		zap.String("fee", payout.OperatingFee.String()),
		zap.Int("credits", len(credits)),
		zap.Int16("reward_type", int16(rewardType)))
	return payout, nil
}
