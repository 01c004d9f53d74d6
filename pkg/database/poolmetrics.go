package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPoolMetrics exposes pgxpool statistics as prometheus gauges labeled
// with the owning service. Call once per pool at startup.
func RegisterPoolMetrics(pool *pgxpool.Pool, service string) {
	labels := prometheus.Labels{"service": service}

	gauges := []struct {
		name string
		help string
		fn   func(*pgxpool.Stat) float64
	}{
		{"pgx_pool_total_conns", "Total connections in the pool", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		{"pgx_pool_idle_conns", "Idle connections in the pool", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
		{"pgx_pool_acquired_conns", "Connections currently in use", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
		{"pgx_pool_max_conns", "Configured pool size", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
		{"pgx_pool_empty_acquire_count", "Acquires that had to wait for a connection", func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
	}

	for _, g := range gauges {
		fn := g.fn
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        g.name,
			Help:        g.help,
			ConstLabels: labels,
		}, func() float64 {
			return fn(pool.Stat())
		})
		// A second registration of the same pool/service keeps the first.
		_ = prometheus.Register(collector)
	}
}
