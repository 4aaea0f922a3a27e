package creditfeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var creditsFlushed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pedalpay_credits_flushed_total",
	Help: "workout credits materialized from the tick buffer",
})
