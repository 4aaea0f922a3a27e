package settlement

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/chain"
	"github.com/cyruslab/pedalpay/src/common"
	"github.com/cyruslab/pedalpay/src/model"
	"github.com/cyruslab/pedalpay/src/postgres"
)

var logger *zap.Logger

func TestMain(m *testing.M) {
	logger = common.ConfigureZap(zap.DebugLevel)
	postgres.ConfigureDockerConnection()
	if err := postgres.EnsureSchema(context.Background()); err != nil {
		panic(errors.Wrap(err, "FATAL, failed to prepare schema, is the docker postgres up?"))
	}
	m.Run()
}

func cleanTables(t *testing.T) {
	t.Helper()
	postgres.DoExecOrDie(context.Background(), "DELETE from workout_credits")
	postgres.DoExecOrDie(context.Background(), "DELETE from outbound_payouts")
	postgres.DoExecOrDie(context.Background(), "DELETE from wallets")
}

func newTestPipeline(t *testing.T, mock *chain.MockClient) *Pipeline {
	t.Helper()
	pipeline, err := NewPipeline(SettlementConfig{
		FeeRate:       "0.12",
		DailyTokenCap: "6",
		DailyPointCap: "2000",
		RunDeadline:   "1m",
	}, mock, logger)
	require.NoError(t, err)
	return pipeline
}

func seedOwner(t *testing.T, ownerID string, address model.WalletAddr) {
	t.Helper()
	require.NoError(t, postgres.PutWallet(context.Background(), &model.Wallet{
		OwnerID: ownerID,
		Address: address,
		Enabled: true,
	}))
}

func seedCredit(t *testing.T, ownerID string, rewardType model.RewardType, amount string, at time.Time) string {
	t.Helper()
	credit := &model.WorkoutCredit{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Type:        rewardType,
		Amount:      decimal.RequireFromString(amount),
		DurationSec: 600,
		CreatedAt:   at,
	}
	require.NoError(t, postgres.PutCredit(context.Background(), credit))
	return credit.ID
}

const testAddress = model.WalletAddr("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

func TestCreatePayoutCapsDailyTotal(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)

	day := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	seedOwner(t, "owner-a", testAddress)
	seedCredit(t, "owner-a", model.RewardTypeToken, "2", day)
	seedCredit(t, "owner-a", model.RewardTypeToken, "3", day.Add(time.Hour))
	seedCredit(t, "owner-a", model.RewardTypeToken, "2", day.Add(2*time.Hour))

	payout, err := pipeline.CreatePayout(context.Background(), "owner-a", model.RewardTypeToken)
	require.NoError(t, err)
	require.True(t, payout.Amount.Equal(decimal.RequireFromString("6")),
		"amount = %s, want 6", payout.Amount)
	require.True(t, payout.OperatingFee.Equal(decimal.RequireFromString("0.72")),
		"fee = %s, want 6 * 0.12", payout.OperatingFee)
	require.Equal(t, model.PayoutStatusRequested, payout.Status)

	// every contributing credit is linked, including the truncated excess
	credits, err := postgres.GetCreditsByPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Len(t, credits, 3)
	for _, credit := range credits {
		require.Equal(t, model.CreditStatusBatched, credit.Status)
	}
}

func TestCreatePayoutNoCredits(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-b", testAddress)

	_, err := pipeline.CreatePayout(context.Background(), "owner-b", model.RewardTypeToken)
	require.ErrorIs(t, err, ErrNoUnsettledCredits)

	payouts, err := postgres.GetRequestedPayouts(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, payouts, "no payout row may exist after a precondition failure")
}

func TestCreatePayoutNoWallet(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedCredit(t, "owner-c", model.RewardTypeToken, "1", time.Now().UTC())

	_, err := pipeline.CreatePayout(context.Background(), "owner-c", model.RewardTypeToken)
	require.ErrorIs(t, err, postgres.ErrWalletNotFound)
}

func TestCreatePayoutSweepsCreditsOnlyOnce(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-d", testAddress)
	seedCredit(t, "owner-d", model.RewardTypeToken, "2", time.Now().UTC())

	first, err := pipeline.CreatePayout(context.Background(), "owner-d", model.RewardTypeToken)
	require.NoError(t, err)

	_, err = pipeline.CreatePayout(context.Background(), "owner-d", model.RewardTypeToken)
	require.ErrorIs(t, err, ErrNoUnsettledCredits,
		"credits already linked to payout %s must not batch twice", first.ID)
}

func TestPointPayoutSettlesOffChain(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-e", testAddress)
	day := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	seedCredit(t, "owner-e", model.RewardTypePoint, "1500", day)
	seedCredit(t, "owner-e", model.RewardTypePoint, "1500", day.Add(time.Hour))

	payout, err := pipeline.CreatePayout(context.Background(), "owner-e", model.RewardTypePoint)
	require.NoError(t, err)
	require.True(t, payout.Amount.Equal(decimal.RequireFromString("2000")),
		"point amount = %s, want the 2000 daily cap", payout.Amount)
	require.Equal(t, model.PayoutStatusConfirmed, payout.Status)
	require.True(t, payout.OperatingFee.IsZero())
	require.NotNil(t, payout.ResultAt)
	require.Empty(t, mock.Transfers, "point payouts never touch the chain")

	stored, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.RewardTypePoint, stored.Type,
		"the ledger must record which reward type the payout settled")
}

func TestPointPayoutNeedsNoWallet(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedCredit(t, "owner-p", model.RewardTypePoint, "300", time.Now().UTC())

	payout, err := pipeline.CreatePayout(context.Background(), "owner-p", model.RewardTypePoint)
	require.NoError(t, err, "point settlement must not require a registered wallet")
	require.Equal(t, model.PayoutStatusConfirmed, payout.Status)
	require.Empty(t, payout.Wallet)

	// token payouts for the same owner still demand one
	seedCredit(t, "owner-p", model.RewardTypeToken, "1", time.Now().UTC())
	_, err = pipeline.CreatePayout(context.Background(), "owner-p", model.RewardTypeToken)
	require.ErrorIs(t, err, postgres.ErrWalletNotFound)
}

func TestSubmitAndConfirmFlow(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	mock.SeedNonce(7)
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-f", testAddress)
	seedCredit(t, "owner-f", model.RewardTypeToken, "2.5", time.Now().UTC().Add(-time.Hour))

	payout, err := pipeline.CreatePayout(context.Background(), "owner-f", model.RewardTypeToken)
	require.NoError(t, err)

	require.NoError(t, pipeline.RunSubmissions(context.Background()))
	require.Len(t, mock.Transfers, 1)
	require.Equal(t, uint64(7), mock.Transfers[0].Nonce)
	require.Equal(t, model.ToBaseUnits(decimal.RequireFromString("2.5")), mock.Transfers[0].Amount)

	submitted, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusSubmitted, submitted.Status)
	require.Equal(t, model.RewardTypeToken, submitted.Type)
	require.NotNil(t, submitted.TxHash)

	// no receipt on three consecutive polls leaves the payout submitted
	for i := 0; i < 3; i++ {
		require.NoError(t, pipeline.PollSettlements(context.Background()))
		pending, err := postgres.GetPayoutByID(context.Background(), payout.ID)
		require.NoError(t, err)
		require.Equal(t, model.PayoutStatusSubmitted, pending.Status)
	}

	mock.ScriptReceipt(*submitted.TxHash, &chain.Receipt{
		Status:      chain.ReceiptStatusSuccess,
		BlockNumber: big.NewInt(123456),
	})
	require.NoError(t, pipeline.PollSettlements(context.Background()))

	confirmed, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ResultAt)

	credits, err := postgres.GetCreditsByPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, credit := range credits {
		require.Equal(t, model.CreditStatusSettled, credit.Status)
		total = total.Add(credit.Amount)
	}
	require.True(t, total.Equal(confirmed.Amount),
		"sum of linked credits %s must equal payout amount %s", total, confirmed.Amount)
}

func TestRevertedReceiptMarksFailed(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-g", testAddress)
	seedCredit(t, "owner-g", model.RewardTypeToken, "1", time.Now().UTC())

	payout, err := pipeline.CreatePayout(context.Background(), "owner-g", model.RewardTypeToken)
	require.NoError(t, err)
	require.NoError(t, pipeline.RunSubmissions(context.Background()))

	submitted, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	mock.ScriptReceipt(*submitted.TxHash, &chain.Receipt{Status: chain.ReceiptStatusFailed})
	require.NoError(t, pipeline.PollSettlements(context.Background()))

	failed, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusFailed, failed.Status)
}

func TestNonceSeedFailureAbortsRun(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-h", testAddress)
	seedCredit(t, "owner-h", model.RewardTypeToken, "3", time.Now().UTC())

	payout, err := pipeline.CreatePayout(context.Background(), "owner-h", model.RewardTypeToken)
	require.NoError(t, err)

	mock.NonceErr = errors.New("rpc timeout")
	require.Error(t, pipeline.RunSubmissions(context.Background()))
	require.Empty(t, mock.Transfers, "an aborted run must broadcast nothing")

	untouched, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusRequested, untouched.Status)
	require.Nil(t, untouched.TxHash)
}

func TestInvalidDestinationFailsPayout(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-i", "not-a-chain-address")
	seedCredit(t, "owner-i", model.RewardTypeToken, "1", time.Now().UTC())

	payout, err := pipeline.CreatePayout(context.Background(), "owner-i", model.RewardTypeToken)
	require.NoError(t, err)
	require.NoError(t, pipeline.RunSubmissions(context.Background()))
	require.Empty(t, mock.Transfers)

	failed, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusFailed, failed.Status)
}

func TestReleaseFailedPayout(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	seedOwner(t, "owner-j", testAddress)
	creditID := seedCredit(t, "owner-j", model.RewardTypeToken, "2", time.Now().UTC())

	payout, err := pipeline.CreatePayout(context.Background(), "owner-j", model.RewardTypeToken)
	require.NoError(t, err)

	// releasing a non-failed payout is refused
	require.ErrorIs(t, pipeline.ReleaseFailedPayout(context.Background(), payout.ID),
		postgres.ErrPayoutNotReleasable)

	mock.SubmitErr = errors.New("insufficient funds for gas")
	require.NoError(t, pipeline.RunSubmissions(context.Background()))
	failed, err := postgres.GetPayoutByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusFailed, failed.Status)

	require.NoError(t, pipeline.ReleaseFailedPayout(context.Background(), payout.ID))

	credits, err := postgres.GetUnsettledCredits(context.Background(), "owner-j", model.RewardTypeToken)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, creditID, credits[0].ID)

	// a second release is a no-op refusal
	require.ErrorIs(t, pipeline.ReleaseFailedPayout(context.Background(), payout.ID),
		postgres.ErrPayoutNotReleasable)
}

// a rejected broadcast must not consume its nonce; a gap would make every
// later transaction of the run unminable
func TestRejectedBroadcastReusesNonce(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	mock.SeedNonce(50)
	mock.FailSubmits = 1
	pipeline := newTestPipeline(t, mock)

	var payoutIDs []string
	for _, owner := range []string{"owner-n", "owner-o"} {
		seedOwner(t, owner, testAddress)
		seedCredit(t, owner, model.RewardTypeToken, "1", time.Now().UTC())
		payout, err := pipeline.CreatePayout(context.Background(), owner, model.RewardTypeToken)
		require.NoError(t, err)
		payoutIDs = append(payoutIDs, payout.ID)
	}

	require.NoError(t, pipeline.RunSubmissions(context.Background()))

	require.Len(t, mock.Transfers, 1)
	require.Equal(t, uint64(50), mock.Transfers[0].Nonce,
		"the surviving payout must reuse the rejected broadcast's nonce")

	statuses := map[model.PayoutStatus]int{}
	for _, id := range payoutIDs {
		payout, err := postgres.GetPayoutByID(context.Background(), id)
		require.NoError(t, err)
		statuses[payout.Status]++
	}
	require.Equal(t, 1, statuses[model.PayoutStatusFailed])
	require.Equal(t, 1, statuses[model.PayoutStatusSubmitted])
}

func TestSubmissionNoncesIncrease(t *testing.T) {
	cleanTables(t)
	mock := chain.NewMockClient(chain.Config{})
	mock.SeedNonce(100)
	pipeline := newTestPipeline(t, mock)

	for i, owner := range []string{"owner-k", "owner-l", "owner-m"} {
		seedOwner(t, owner, testAddress)
		seedCredit(t, owner, model.RewardTypeToken, "1",
			time.Now().UTC().Add(time.Duration(i)*time.Second))
		_, err := pipeline.CreatePayout(context.Background(), owner, model.RewardTypeToken)
		require.NoError(t, err)
	}

	require.NoError(t, pipeline.RunSubmissions(context.Background()))
	require.Len(t, mock.Transfers, 3)
	for i, transfer := range mock.Transfers {
		require.Equal(t, uint64(100+i), transfer.Nonce)
	}
}
