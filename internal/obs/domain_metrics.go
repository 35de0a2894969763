package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponApplyTotal counts coupon application attempts by outcome.
	CouponApplyTotal *prometheus.CounterVec
	// CouponRedeemTotal counts coupon redemptions by outcome.
	CouponRedeemTotal *prometheus.CounterVec
	// CouponSweepDeactivated counts coupons retired by the sweep job.
	CouponSweepDeactivated prometheus.Counter
	// CartSummaryTotal counts computed cart summaries.
	CartSummaryTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_apply_total",
			Help:      "Count of coupon application attempts by outcome.",
		}, []string{"result"})
		CouponRedeemTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redeem_total",
			Help:      "Count of coupon redemptions by outcome.",
		}, []string{"result"})
		CouponSweepDeactivated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_sweep_deactivated_total",
			Help:      "Number of coupons deactivated by the sweep job.",
		})
		CartSummaryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_summary_total",
			Help:      "Count of computed cart summaries.",
		}, []string{"has_coupon"})

		mustRegisterCollector(reg, CouponApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponApplyTotal = v
			}
		})
		mustRegisterCollector(reg, CouponRedeemTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponRedeemTotal = v
			}
		})
		mustRegisterCollector(reg, CouponSweepDeactivated, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CouponSweepDeactivated = v
			}
		})
		mustRegisterCollector(reg, CartSummaryTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartSummaryTotal = v
			}
		})
	})
}

// ObserveCouponApply records a coupon application outcome when metrics are registered.
func ObserveCouponApply(result string) {
	if CouponApplyTotal != nil {
		CouponApplyTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCouponRedeem records a redemption outcome when metrics are registered.
func ObserveCouponRedeem(result string) {
	if CouponRedeemTotal != nil {
		CouponRedeemTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCouponSweep adds n deactivated coupons.
func ObserveCouponSweep(n int) {
	if CouponSweepDeactivated != nil && n > 0 {
		CouponSweepDeactivated.Add(float64(n))
	}
}

// ObserveCartSummary records a computed summary.
func ObserveCartSummary(hasCoupon bool) {
	if CartSummaryTotal == nil {
		return
	}
	label := "false"
	if hasCoupon {
		label = "true"
	}
	CartSummaryTotal.WithLabelValues(label).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
