package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"credserver/internal/model"
)

// Metrics holds the refresher's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	refreshTotal *prometheus.CounterVec
	tokenExpiry  prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credserver_refresh_total",
				Help: "Token refresh attempts by outcome.",
			},
			[]string{"status"},
		),
		tokenExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credserver_token_expiry_timestamp_seconds",
			Help: "Unix time at which the current access token expires.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credserver_last_refresh_success_timestamp_seconds",
			Help: "Unix time of the last successful token refresh.",
		}),
	}

	for _, c := range []prometheus.Collector{m.refreshTotal, m.tokenExpiry, m.lastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(ev *model.RefreshEvent) {
	if m == nil || ev == nil {
		return
	}
	m.refreshTotal.WithLabelValues(string(ev.Status)).Inc()
	if ev.Status == model.RefreshSuccess {
		m.tokenExpiry.Set(float64(ev.ExpiryDate))
		m.lastSuccess.Set(float64(ev.CreatedAt.Unix()))
	}
}
