package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var payoutsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pedalpay_payouts_created_total",
	Help: "payout batches created from unsettled credits",
})

var payoutsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pedalpay_payouts_submitted_total",
	Help: "payouts broadcast to the chain",
})

var payoutsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pedalpay_payouts_confirmed_total",
	Help: "payouts with a successful receipt",
})

var payoutsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pedalpay_payouts_failed_total",
	Help: "payouts that failed submission or reverted on chain",
})

var payoutsReleased = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pedalpay_payouts_released_total",
	Help: "failed payouts whose credits an operator released back",
})
