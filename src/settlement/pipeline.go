package settlement

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cyruslab/pedalpay/src/chain"
)

type SettlementConfig struct {
	FeeRate       string `yaml:"fee_rate"`
	DailyTokenCap string `yaml:"daily_token_cap"`
	DailyPointCap string `yaml:"daily_point_cap"`

	CronHour     int    `yaml:"cron_hour"`
	CronMinute   int    `yaml:"cron_minute"`
	PollInterval string `yaml:"poll_interval"`
	RunDeadline  string `yaml:"run_deadline"`
	LockPath     string `yaml:"lock_path"`

	SubmitBatchLimit int `yaml:"submit_batch_limit"`
	PollBatchLimit   int `yaml:"poll_batch_limit"`
}

// Pipeline is the payout engine: it batches unsettled credits into payouts,
// submits token payouts to the chain and advances their lifecycle from
// receipts. The chain client and signing identity are injected here; nothing
// in this package touches process-wide state.
type Pipeline struct {
	chain  chain.Client
	logger *zap.Logger

	feeRate       decimal.Decimal
	dailyTokenCap decimal.Decimal
	dailyPointCap decimal.Decimal
	pollInterval  time.Duration
	runDeadline   time.Duration

	submitBatchLimit int
	pollBatchLimit   int
}

func NewPipeline(cfg SettlementConfig, client chain.Client, logger *zap.Logger) (*Pipeline, error) {
	feeRate, err := decimal.NewFromString(cfg.FeeRate)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid fee_rate %q", cfg.FeeRate)
	}
	tokenCap, err := decimal.NewFromString(cfg.DailyTokenCap)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid daily_token_cap %q", cfg.DailyTokenCap)
	}
	pointCap, err := decimal.NewFromString(cfg.DailyPointCap)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid daily_point_cap %q", cfg.DailyPointCap)
	}

	pollInterval := 30 * time.Second
	if cfg.PollInterval != "" {
		if pollInterval, err = time.ParseDuration(cfg.PollInterval); err != nil {
			return nil, errors.Wrapf(err, "invalid poll_interval %q", cfg.PollInterval)
		}
	}
	runDeadline := 10 * time.Minute
	if cfg.RunDeadline != "" {
		if runDeadline, err = time.ParseDuration(cfg.RunDeadline); err != nil {
			return nil, errors.Wrapf(err, "invalid run_deadline %q", cfg.RunDeadline)
		}
	}

	submitLimit := cfg.SubmitBatchLimit
	if submitLimit == 0 {
		submitLimit = 256
	}
	pollLimit := cfg.PollBatchLimit
	if pollLimit == 0 {
		pollLimit = 1024
	}

	return &Pipeline{
		chain:            client,
		logger:           logger,
		feeRate:          feeRate,
		dailyTokenCap:    tokenCap,
		dailyPointCap:    pointCap,
		pollInterval:     pollInterval,
		runDeadline:      runDeadline,
		submitBatchLimit: submitLimit,
		pollBatchLimit:   pollLimit,
	}, nil
}
