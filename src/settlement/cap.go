package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/cyruslab/pedalpay/src/model"
)

// DailyCappedTotal sums credit amounts per UTC calendar day, clamps each
// day's sum to the ceiling and returns the total over all days. A day whose
// raw sum exceeds the ceiling contributes exactly the ceiling; the excess is
// truncated from the payable amount but stays recorded on the credit rows.
// The clamp keeps a burst of duplicated or oversized credit entries from
// turning into a runaway payout.
func DailyCappedTotal(credits []*model.WorkoutCredit, ceiling decimal.Decimal) decimal.Decimal {
	byDay := map[string]decimal.Decimal{}
	for _, credit := range credits {
		day := credit.CreatedAt.UTC().Format("2006-01-02")
		byDay[day] = byDay[day].Add(credit.Amount)
	}

	total := decimal.Zero
	for _, sum := range byDay {
		if sum.GreaterThan(ceiling) {
			sum = ceiling
		}
		total = total.Add(sum)
	}
	return total
}
