package server

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry             *prometheus.Registry
	seedRequestsTotal    *prometheus.CounterVec
	fulfillmentsTotal    *prometheus.CounterVec
	shoeCommitsTotal     *prometheus.CounterVec
	gamesStartedTotal    *prometheus.CounterVec
	gamesFinishedTotal   *prometheus.CounterVec
	outstandingLiability prometheus.Gauge
	activeGames          prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	seeds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chiprails_seed_requests_total",
		Help: "Total number of randomness seed requests",
	}, []string{"status"})

	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chiprails_seed_fulfillments_total",
		Help: "Total number of oracle fulfillment callbacks",
	}, []string{"status"})

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chiprails_shoe_commits_total",
		Help: "Total number of shoe commit attempts",
	}, []string{"status"})

	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chiprails_games_started_total",
		Help: "Total number of game start attempts",
	}, []string{"status"})

	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chiprails_games_finished_total",
		Help: "Total number of game finish attempts",
	}, []string{"status"})

	liability := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chiprails_outstanding_liability",
		Help: "Summed win-liability of active games in token base units",
	})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chiprails_active_games",
		Help: "Number of games currently awaiting a finish",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(seeds, fulfillments, commits, started, finished, liability, active)

	return &metricsRegistry{
		registry:             r,
		seedRequestsTotal:    seeds,
		fulfillmentsTotal:    fulfillments,
		shoeCommitsTotal:     commits,
		gamesStartedTotal:    started,
		gamesFinishedTotal:   finished,
		outstandingLiability: liability,
		activeGames:          active,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incSeedRequest(status string) {
	m.seedRequestsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incFulfillment(status string) {
	m.fulfillmentsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incCommit(status string) {
	m.shoeCommitsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incStart(status string) {
	m.gamesStartedTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incFinish(status string) {
	m.gamesFinishedTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) setExposure(liability *big.Int, activeGames int) {
	f, _ := new(big.Float).SetInt(liability).Float64()
	m.outstandingLiability.Set(f)
	m.activeGames.Set(float64(activeGames))
}
