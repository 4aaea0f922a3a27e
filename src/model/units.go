package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the exponent between whole token units in the ledger and
// the smallest on-chain denomination.
const TokenDecimals = 18

// ToBaseUnits converts a decimal token amount to the integer on-chain
// denomination. The shift happens in base-10 integer space, any digits
// beyond the 18th decimal place are truncated, never rounded.
func ToBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).BigInt()
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -TokenDecimals)
}
