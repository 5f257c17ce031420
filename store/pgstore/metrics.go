package pgstore

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// transactConflicts counts serialization failures that made Transact run its
// body again. Any escrow call in the body runs again too, which is why the
// auction service passes idempotent transfer refs.
var transactConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "confidentialbid",
	Subsystem: "pgstore",
	Name:      "transact_conflicts_total",
	Help:      "Transactions retried after a serialization failure.",
})

// stat is the subset of *pgxpool.Stat the pool collector reads.
type stat interface {
	AcquireCount() int64
	AcquireDuration() time.Duration
	AcquiredConns() int32
	CanceledAcquireCount() int64
	ConstructingConns() int32
	EmptyAcquireCount() int64
	IdleConns() int32
	MaxConns() int32
	TotalConns() int32
}

type statFunc func() stat

// poolMetric reads one value out of a pool snapshot.
type poolMetric struct {
	desc  *prometheus.Desc
	typ   prometheus.ValueType
	value func(stat) float64
}

// poolCollector exports pgxpool statistics, snapshotting the pool once per
// scrape.
type poolCollector struct {
	fn      statFunc
	metrics []poolMetric
}

var poolCollectorID uint64

func newPoolCollector(user, host, name string, fn statFunc) *poolCollector {
	labels := prometheus.Labels{
		"db_user":       user,
		"db_host":       host,
		"db_name":       name,
		"db_procpoolid": strconv.FormatUint(atomic.AddUint64(&poolCollectorID, 1), 10),
	}

	metric := func(name, help string, typ prometheus.ValueType, value func(stat) float64) poolMetric {
		return poolMetric{
			desc:  prometheus.NewDesc("confidentialbid_pgxpool_"+name, help, nil, labels),
			typ:   typ,
			value: value,
		}
	}

	return &poolCollector{
		fn: fn,
		metrics: []poolMetric{
			metric("acquire_count_total", "Successful acquires from the pool.", prometheus.CounterValue,
				func(s stat) float64 { return float64(s.AcquireCount()) }),
			metric("acquire_seconds_total", "Time spent in successful acquires.", prometheus.CounterValue,
				func(s stat) float64 { return s.AcquireDuration().Seconds() }),
			metric("canceled_acquire_count_total", "Acquires canceled by their context.", prometheus.CounterValue,
				func(s stat) float64 { return float64(s.CanceledAcquireCount()) }),
			metric("empty_acquire_count_total", "Acquires that waited because the pool was empty.", prometheus.CounterValue,
				func(s stat) float64 { return float64(s.EmptyAcquireCount()) }),
			metric("acquired_conns", "Connections currently in use.", prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.AcquiredConns()) }),
			metric("constructing_conns", "Connections being established.", prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.ConstructingConns()) }),
			metric("idle_conns", "Idle connections.", prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.IdleConns()) }),
			metric("max_conns", "Pool size limit.", prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.MaxConns()) }),
			metric("total_conns", "Acquired, idle and constructing connections.", prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.TotalConns()) }),
		},
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.fn()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.typ, m.value(s))
	}
}
