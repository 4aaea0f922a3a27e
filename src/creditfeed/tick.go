package creditfeed

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/cyruslab/pedalpay/src/model"
)

// WorkoutTick is one progress report from a connected bike during a session.
// Ticks pile up in the redis buffer and are folded into a single credit row
// per session once the session has gone quiet.
type WorkoutTick struct {
	SessionID   string           `json:"session_id"`
	OwnerID     string           `json:"owner_id"`
	Type        model.RewardType `json:"reward_type"`
	Amount      decimal.Decimal  `json:"amount"`
	DurationSec int64            `json:"duration_sec"`
	EmittedAt   int64            `json:"emitted_at"`
}

func (t *WorkoutTick) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", errors.Wrap(err, "failed encoding workout tick")
	}
	return string(raw), nil
}

func DecodeTick(raw string) (*WorkoutTick, error) {
	tick := &WorkoutTick{}
	if err := json.Unmarshal([]byte(raw), tick); err != nil {
		return nil, errors.Wrap(err, "failed decoding workout tick")
	}
	return tick, nil
}
