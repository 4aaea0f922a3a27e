package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cyruslab/pedalpay/src/model"
)

// ErrCreditsContended means another payout grabbed one of the credits between
// the read and the write. The whole batch rolls back, nothing is retried.
var ErrCreditsContended = errors.New("credits already linked to another payout")

// ErrPayoutNotReleasable means the payout is not in the failed state, the only
// state an operator may release credits from.
var ErrPayoutNotReleasable = errors.New("payout is not in a releasable state")

// CreatePayout inserts the payout row and links every contributing credit to
// it in one transaction. The UPDATE refuses credits that are no longer
// unsettled, so two concurrent batch attempts can never split a credit set.
func CreatePayout(ctx context.Context, payout *model.OutboundPayout, creditIDs []string) error {
	return DoTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT into outbound_payouts(id, owner_id, reward_type, wallet, amount, operating_fee, status, requested_at, result_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			payout.ID, payout.OwnerID, payout.Type, payout.Wallet, payout.Amount,
			payout.OperatingFee, payout.Status, payout.RequestedAt.UTC(), payout.ResultAt)
		if err != nil {
			return errors.Wrapf(err, "failed to insert payout for owner %s", payout.OwnerID)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE workout_credits
				SET status = $1, payout_id = $2, operating_at = $3
				WHERE id = ANY($4) AND status = 'unsettled' AND payout_id IS NULL`,
			model.CreditStatusBatched, payout.ID, time.Now().UTC(), creditIDs)
		if err != nil {
			return errors.Wrapf(err, "failed to link credits to payout %s", payout.ID)
		}
		if tag.RowsAffected() != int64(len(creditIDs)) {
			return ErrCreditsContended
		}
		return nil
	})
}

func GetPayoutByID(ctx context.Context, id string) (*model.OutboundPayout, error) {
	payout := &model.OutboundPayout{}
	return payout, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT id, owner_id, reward_type, wallet, amount, operating_fee, tx_hash, status, msg, requested_at, operating_at, result_at
			 FROM outbound_payouts WHERE id = $1`, id)
		return errors.Wrapf(scanPayout(row, payout), "failed to fetch payout %s", id)
	})
}

// GetRequestedPayouts returns payouts waiting for chain submission.
func GetRequestedPayouts(ctx context.Context, limit int) ([]*model.OutboundPayout, error) {
	return getPayouts(ctx,
		`SELECT id, owner_id, reward_type, wallet, amount, operating_fee, tx_hash, status, msg, requested_at, operating_at, result_at
		 FROM outbound_payouts
		 WHERE status = 'requested' AND tx_hash IS NULL
		 ORDER BY requested_at LIMIT $1`, limit)
}

// GetSubmittedPayouts returns payouts with a hash that have not reached a
// terminal state, the poller's working set.
func GetSubmittedPayouts(ctx context.Context, limit int) ([]*model.OutboundPayout, error) {
	return getPayouts(ctx,
		`SELECT id, owner_id, reward_type, wallet, amount, operating_fee, tx_hash, status, msg, requested_at, operating_at, result_at
		 FROM outbound_payouts
		 WHERE status = 'submitted' AND tx_hash IS NOT NULL
		 ORDER BY requested_at LIMIT $1`, limit)
}

func getPayouts(ctx context.Context, query string, limit int) ([]*model.OutboundPayout, error) {
	var fetched []*model.OutboundPayout
	return fetched, DoQuery(ctx, func(conn *pgx.Conn) error {
		cur, err := conn.Query(ctx, query, limit)
		if err != nil {
			return errors.Wrap(err, "failed to fetch payouts from database")
		}
		defer cur.Close()

		for cur.Next() {
			payout := &model.OutboundPayout{}
			if err := scanPayout(cur, payout); err != nil {
				return err
			}
			fetched = append(fetched, payout)
		}
		return cur.Err()
	})
}

func scanPayout(row pgx.Row, payout *model.OutboundPayout) error {
	return row.Scan(&payout.ID, &payout.OwnerID, &payout.Type, &payout.Wallet, &payout.Amount,
		&payout.OperatingFee, &payout.TxHash, &payout.Status, &payout.Msg,
		&payout.RequestedAt, &payout.OperatingAt, &payout.ResultAt)
}

// MarkPayoutSubmitted records the broadcast hash. Guarded on the requested
// state so a duplicate scheduler run cannot clobber a later transition.
func MarkPayoutSubmitted(ctx context.Context, id string, txHash string) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE outbound_payouts SET status = 'submitted', tx_hash = $1, operating_at = $2
				WHERE id = $3 AND status = 'requested'`,
			txHash, time.Now().UTC(), id)
		return errors.Wrapf(err, "failed to mark payout %s submitted", id)
	})
}

func MarkPayoutConfirmed(ctx context.Context, id string) error {
	return DoTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE outbound_payouts SET status = 'confirmed', result_at = $1
				WHERE id = $2 AND status = 'submitted'`,
			time.Now().UTC(), id)
		if err != nil {
			return errors.Wrapf(err, "failed to mark payout %s confirmed", id)
		}
		_, err = tx.Exec(ctx,
			`UPDATE workout_credits SET status = $1 WHERE payout_id = $2`,
			model.CreditStatusSettled, id)
		return errors.Wrapf(err, "failed to settle credits for payout %s", id)
	})
}

func MarkPayoutFailed(ctx context.Context, id string, msg string) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE outbound_payouts SET status = 'failed', msg = $1, result_at = $2
				WHERE id = $3 AND status IN ('requested', 'submitted')`,
			msg, time.Now().UTC(), id)
		return errors.Wrapf(err, "failed to mark payout %s failed", id)
	})
}

// ReleaseFailedPayoutCredits hands the credits of a failed payout back to the
// unsettled pool so a later batch can sweep them again. Operator invoked,
// never automatic. The released state exists so this runs at most once.
func ReleaseFailedPayoutCredits(ctx context.Context, id string) error {
	return DoTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE outbound_payouts SET status = 'released', result_at = $1
				WHERE id = $2 AND status = 'failed'`,
			time.Now().UTC(), id)
		if err != nil {
			return errors.Wrapf(err, "failed to release payout %s", id)
		}
		if tag.RowsAffected() == 0 {
			return ErrPayoutNotReleasable
		}
		_, err = tx.Exec(ctx,
			`UPDATE workout_credits
				SET status = 'unsettled', payout_id = NULL, operating_at = NULL
				WHERE payout_id = $1`, id)
		return errors.Wrapf(err, "failed to unlink credits from payout %s", id)
	})
}
