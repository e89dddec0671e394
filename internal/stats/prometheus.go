package stats

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStore exposes events as Prometheus counters.
type PrometheusStore struct {
	claims      *prometheus.CounterVec
	dispensed   *prometheus.CounterVec
	eligibility *prometheus.CounterVec
}

// NewPrometheusStore creates the counters and registers them on reg.
func NewPrometheusStore(reg prometheus.Registerer) (*PrometheusStore, error) {
	s := &PrometheusStore{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_claims_total",
			Help: "Claim attempts by outcome and blocking identity axis.",
		}, []string{"outcome", "axis"}),
		dispensed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_dispensed_total",
			Help: "Coupons handed out, by coupon code.",
		}, []string{"code"}),
		eligibility: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_eligibility_checks_total",
			Help: "Eligibility checks by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{s.claims, s.dispensed, s.eligibility} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Record implements Store.
func (s *PrometheusStore) Record(_ context.Context, ev Event) error {
	switch ev.Op {
	case OpClaim:
		s.claims.WithLabelValues(string(ev.Outcome), ev.Axis).Inc()
		if ev.Outcome == OutcomeClaimed && ev.CouponCode != "" {
			s.dispensed.WithLabelValues(ev.CouponCode).Inc()
		}
	case OpEligibility:
		s.eligibility.WithLabelValues(string(ev.Outcome)).Inc()
	}
	return nil
}

// RegisterLedgerSize registers gauges reporting how many identities are
// currently tracked per axis. size is called on every scrape.
func RegisterLedgerSize(reg prometheus.Registerer, size func() (ips, cookies int)) error {
	ipGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "coupon_ledger_entries",
		Help:        "Identities currently held in the claim ledger.",
		ConstLabels: prometheus.Labels{"axis": "ip"},
	}, func() float64 {
		ips, _ := size()
		return float64(ips)
	})
	cookieGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "coupon_ledger_entries",
		Help:        "Identities currently held in the claim ledger.",
		ConstLabels: prometheus.Labels{"axis": "cookie"},
	}, func() float64 {
		_, cookies := size()
		return float64(cookies)
	})

	if err := reg.Register(ipGauge); err != nil {
		return err
	}
	return reg.Register(cookieGauge)
}
