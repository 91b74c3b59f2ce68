package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolStats is the subset of pgxpool.Stat the collector exports.
type poolStats struct {
	acquired        int32
	idle            int32
	total           int32
	max             int32
	acquireCount    int64
	emptyAcquire    int64
	canceledAcquire int64
	acquireDuration time.Duration
}

type poolCollector struct {
	stats func() poolStats

	acquired        *prometheus.Desc
	idle            *prometheus.Desc
	total           *prometheus.Desc
	max             *prometheus.Desc
	acquireCount    *prometheus.Desc
	emptyAcquire    *prometheus.Desc
	canceledAcquire *prometheus.Desc
	acquireSeconds  *prometheus.Desc
}

func newPoolCollector(stats func() poolStats) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("timeoff_db_pool_"+name, help, nil, nil)
	}
	return &poolCollector{
		stats:           stats,
		acquired:        desc("acquired_conns", "Connections currently checked out of the pool"),
		idle:            desc("idle_conns", "Idle connections in the pool"),
		total:           desc("total_conns", "Open connections in the pool"),
		max:             desc("max_conns", "Configured maximum pool size"),
		acquireCount:    desc("acquires_total", "Successful connection acquires"),
		emptyAcquire:    desc("empty_acquires_total", "Acquires that had to wait for a connection"),
		canceledAcquire: desc("canceled_acquires_total", "Acquires canceled by their context"),
		acquireSeconds:  desc("acquire_seconds_total", "Time spent waiting for connections"),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.acquired, c.idle, c.total, c.max,
		c.acquireCount, c.emptyAcquire, c.canceledAcquire, c.acquireSeconds,
	} {
		ch <- d
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge(c.acquired, float64(s.acquired))
	gauge(c.idle, float64(s.idle))
	gauge(c.total, float64(s.total))
	gauge(c.max, float64(s.max))
	counter(c.acquireCount, float64(s.acquireCount))
	counter(c.emptyAcquire, float64(s.emptyAcquire))
	counter(c.canceledAcquire, float64(s.canceledAcquire))
	counter(c.acquireSeconds, s.acquireDuration.Seconds())
}

// RegisterPgxPoolMetrics exports the pool's connection statistics on the
// default registry. Calling it twice panics.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	prometheus.MustRegister(newPoolCollector(func() poolStats {
		st := pool.Stat()
		return poolStats{
			acquired:        st.AcquiredConns(),
			idle:            st.IdleConns(),
			total:           st.TotalConns(),
			max:             st.MaxConns(),
			acquireCount:    st.AcquireCount(),
			emptyAcquire:    st.EmptyAcquireCount(),
			canceledAcquire: st.CanceledAcquireCount(),
			acquireDuration: st.AcquireDuration(),
		}
	}))
}
