package creditfeed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/model"
	"github.com/cyruslab/pedalpay/src/postgres"
)

type FeedConfig struct {
	SettleDelay string `yaml:"settle_delay"`
	DrainLimit  int64  `yaml:"drain_limit"`
}

// Feed drains buffered workout ticks into workout_credits rows. Ticks only
// leave the buffer after they have been quiet for the settle delay, so a
// still-running session is never split across two credits.
type Feed struct {
	buffer      TickBuffer
	settleDelay time.Duration
	drainLimit  int64
	logger      *zap.Logger
}

func NewFeed(cfg FeedConfig, cache *redis.Client, logger *zap.Logger) (*Feed, error) {
	settleDelay := 5 * time.Minute
	if cfg.SettleDelay != "" {
		var err error
		if settleDelay, err = time.ParseDuration(cfg.SettleDelay); err != nil {
			return nil, errors.Wrapf(err, "invalid settle_delay %q", cfg.SettleDelay)
		}
	}
	drainLimit := cfg.DrainLimit
	if drainLimit == 0 {
		drainLimit = 10000
	}
	return &Feed{
		buffer:      NewTickBuffer(cache),
		settleDelay: settleDelay,
		drainLimit:  drainLimit,
		logger:      logger.With(zap.String("component", "credit_feed")),
	}, nil
}

// PutTick buffers one workout tick.
func (f *Feed) PutTick(ctx context.Context, tick *WorkoutTick) error {
	encoded, err := tick.Encode()
	if err != nil {
		return err
	}
	if err := f.buffer.Add(ctx, float64(tick.EmittedAt), encoded); err != nil {
		return errors.Wrap(err, "failed writing tick to redis")
	}
	return nil
}

func (f *Feed) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("stopping credit feed, context cancelled")
			return ctx.Err()
		case <-ticker.C:
			if err := f.FlushOnce(ctx); err != nil {
				f.logger.Error(err.Error())
				continue
			}
		}
	}
}

// FlushOnce folds one window of settled ticks into per-session credits. The
// credits commit in a single transaction and only the ticks that were fetched
// are removed afterwards; ticks beyond the drain limit stay buffered for the
// next pass. An insert failure leaves the whole window in the buffer, and
// because nothing partial committed the retry cannot double-credit.
func (f *Feed) FlushOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-f.settleDelay).Unix()
	raw, err := f.buffer.GetValuesByScore(ctx, 0, cutoff, f.drainLimit)
	if err != nil {
		return errors.Wrap(err, "failed draining tick buffer")
	}
	if len(raw) == 0 {
		return nil
	}

	credits := FoldTicks(decodeAll(f.logger, raw))
	if err := postgres.PutCredits(ctx, credits); err != nil {
		return errors.Wrap(err, "failed writing credits, leaving buffer intact")
	}
	creditsFlushed.Add(float64(len(credits)))

	if _, err := f.buffer.Remove(ctx, raw...); err != nil {
		return errors.Wrap(err, "failed trimming flushed ticks from buffer")
	}
	f.logger.Info(fmt.Sprintf("flushed %d ticks into %d credits", len(raw), len(credits)))
	return nil
}

func decodeAll(logger *zap.Logger, raw []string) []*WorkoutTick {
	ticks := make([]*WorkoutTick, 0, len(raw))
	for _, r := range raw {
		tick, err := DecodeTick(r)
		if err != nil {
			logger.Warn("dropping undecodable tick", zap.Error(err))
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

// FoldTicks collapses ticks into one credit per workout session. Amounts and
// durations accumulate; the credit is dated by the session's last tick.
func FoldTicks(ticks []*WorkoutTick) []*model.WorkoutCredit {
	bySession := map[string]*model.WorkoutCredit{}
	for _, tick := range ticks {
		credit, found := bySession[tick.SessionID]
		if !found {
			credit = &model.WorkoutCredit{
				ID:      uuid.NewString(),
				OwnerID: tick.OwnerID,
				Type:    tick.Type,
				Status:  model.CreditStatusUnsettled,
			}
			bySession[tick.SessionID] = credit
		}
		credit.Amount = credit.Amount.Add(tick.Amount)
		credit.DurationSec += tick.DurationSec
		if emitted := time.Unix(tick.EmittedAt, 0).UTC(); emitted.After(credit.CreatedAt) {
			credit.CreatedAt = emitted
		}
	}

	credits := make([]*model.WorkoutCredit, 0, len(bySession))
	for _, credit := range bySession {
		credits = append(credits, credit)
	}
	sort.Slice(credits, func(i, j int) bool { return credits[i].CreatedAt.Before(credits[j].CreatedAt) })
	return credits
}
