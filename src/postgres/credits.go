package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cyruslab/pedalpay/src/model"
)

func PutCredit(ctx context.Context, credit *model.WorkoutCredit) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT into workout_credits(id, owner_id, reward_type, amount, duration_sec, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			credit.ID, credit.OwnerID, credit.Type, credit.Amount,
			credit.DurationSec, model.CreditStatusUnsettled, credit.CreatedAt.UTC())
		if err != nil {
			return errors.Wrapf(err, "failed to record credit for owner %s", credit.OwnerID)
		}
		return nil
	})
}

// PutCredits records a batch of credits in one transaction. All-or-nothing:
// a failure midway leaves no partial batch behind, so the caller can safely
// retry the whole batch without double-crediting the rows that had succeeded.
func PutCredits(ctx context.Context, credits []*model.WorkoutCredit) error {
	return DoTx(ctx, func(tx pgx.Tx) error {
		for _, credit := range credits {
			_, err := tx.Exec(ctx,
				`INSERT into workout_credits(id, owner_id, reward_type, amount, duration_sec, status, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				credit.ID, credit.OwnerID, credit.Type, credit.Amount,
				credit.DurationSec, model.CreditStatusUnsettled, credit.CreatedAt.UTC())
			if err != nil {
				return errors.Wrapf(err, "failed to record credit for owner %s", credit.OwnerID)
			}
		}
		return nil
	})
}

// GetUnsettledCredits returns every credit of the given type that has not
// been swept into a payout yet, oldest first.
func GetUnsettledCredits(ctx context.Context, ownerID string, rewardType model.RewardType) ([]*model.WorkoutCredit, error) {
	var fetched []*model.WorkoutCredit
	return fetched, DoQuery(ctx, func(conn *pgx.Conn) error {
		cur, err := conn.Query(ctx,
			`SELECT id, owner_id, reward_type, amount, duration_sec, status, payout_id, created_at
			 FROM workout_credits
			 WHERE owner_id = $1 AND reward_type = $2
			   AND status = 'unsettled' AND payout_id IS NULL
			 ORDER BY created_at`, ownerID, rewardType)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch unsettled credits for owner %s", ownerID)
		}
		defer cur.Close()

		for cur.Next() {
			credit := &model.WorkoutCredit{}
			if err := cur.Scan(&credit.ID, &credit.OwnerID, &credit.Type, &credit.Amount,
				&credit.DurationSec, &credit.Status, &credit.PayoutID, &credit.CreatedAt); err != nil {
				return errors.Wrap(err, "failed scanning credit row")
			}
			fetched = append(fetched, credit)
		}
		return cur.Err()
	})
}

func GetCreditsByPayout(ctx context.Context, payoutID string) ([]*model.WorkoutCredit, error) {
	var fetched []*model.WorkoutCredit
	return fetched, DoQuery(ctx, func(conn *pgx.Conn) error {
		cur, err := conn.Query(ctx,
			`SELECT id, owner_id, reward_type, amount, duration_sec, status, payout_id, created_at
			 FROM workout_credits WHERE payout_id = $1 ORDER BY created_at`, payoutID)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch credits for payout %s", payoutID)
		}
		defer cur.Close()

		for cur.Next() {
			credit := &model.WorkoutCredit{}
			if err := cur.Scan(&credit.ID, &credit.OwnerID, &credit.Type, &credit.Amount,
				&credit.DurationSec, &credit.Status, &credit.PayoutID, &credit.CreatedAt); err != nil {
				return errors.Wrap(err, "failed scanning credit row")
			}
			fetched = append(fetched, credit)
		}
		return cur.Err()
	})
}
