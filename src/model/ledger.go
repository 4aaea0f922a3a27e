package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type RewardType int16
type CreditStatus string
type PayoutStatus string
type WalletAddr string

const (
	RewardTypeToken RewardType = 0
	RewardTypePoint RewardType = 1
)

const ( // needs to match `status` values in the workout_credits table
	CreditStatusUnsettled CreditStatus = "unsettled"
	CreditStatusBatched   CreditStatus = "batched"
	CreditStatusSettled   CreditStatus = "settled"
)

const ( // needs to match `status` values in the outbound_payouts table
	PayoutStatusRequested PayoutStatus = "requested"
	PayoutStatusSubmitted PayoutStatus = "submitted"
	PayoutStatusConfirmed PayoutStatus = "confirmed"
	PayoutStatusFailed    PayoutStatus = "failed"
	PayoutStatusReleased  PayoutStatus = "released"
)

// WorkoutCredit is one unsettled reward generated by a single workout
// session. Once swept into a payout it is linked by PayoutID and its
// status advances to batched.
type WorkoutCredit struct {
	ID          string
	OwnerID     string
	Type        RewardType
	Amount      decimal.Decimal
	DurationSec int64
	Status      CreditStatus
	PayoutID    *string
	CreatedAt   time.Time
}

// OutboundPayout is one attempt to settle a batch of credits, on-chain for
// token rewards, off-chain for point rewards. Point payouts carry no wallet.
type OutboundPayout struct {
	ID           string
	OwnerID      string
	Type         RewardType
	Wallet       WalletAddr
	Amount       decimal.Decimal
	OperatingFee decimal.Decimal
	TxHash       *string
	Status       PayoutStatus
	Msg          *string
	RequestedAt  time.Time
	OperatingAt  *time.Time
	ResultAt     *time.Time
}

// Terminal reports whether the payout can no longer change state on its own.
// A released payout stays terminal; its credits have been handed back.
func (p *OutboundPayout) Terminal() bool {
	switch p.Status {
	case PayoutStatusConfirmed, PayoutStatusFailed, PayoutStatusReleased:
		return true
	}
	return false
}

type Wallet struct {
	OwnerID   string
	Address   WalletAddr
	Enabled   bool
	CreatedAt time.Time
}
