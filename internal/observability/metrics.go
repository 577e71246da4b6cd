// Package observability は Prometheus メトリクスを提供します。
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics は認証まわりのカスタムメトリクスです。nil でも各メソッドは安全に呼べます。
type Metrics struct {
	LoginAttempts  *prometheus.CounterVec
	AuthRejections *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
}

// NewMetrics はメトリクスを作成して reg に登録します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debt_tracer_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AuthRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debt_tracer_auth_rejections_total",
				Help: "Total number of requests rejected by the login guard",
			},
			[]string{"reason"},
		),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "debt_tracer_password_verify_seconds",
			Help:    "Time spent verifying a password hash on the worker pool",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	reg.MustRegister(m.LoginAttempts, m.AuthRejections, m.VerifyDuration)
	return m
}

// LoginAttempt はログイン結果を1件記録します。
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// AuthRejected は保護ルートでの拒否を1件記録します。
func (m *Metrics) AuthRejected(reason string) {
	if m == nil {
		return
	}
	m.AuthRejections.WithLabelValues(reason).Inc()
}

// ObserveVerify はパスワード照合の所要時間を記録します。
func (m *Metrics) ObserveVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.VerifyDuration.Observe(d.Seconds())
}

// NewRegistry は Go ランタイムとプロセスのメトリクスを登録済みのレジストリを返します。
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Handler は /metrics 用のハンドラーです。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
