package pgstore

import (
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPoolCollector(t *testing.T) {
	var (
		user  = "myuser"
		host  = "myhost"
		name  = "mydbname"
		count = 3
	)
	for i := 1; i <= count; i++ {
		c := newPoolCollector(user, host, name, func() stat { return &pgxStatMock{maxConns: 4, idleConns: 1} })
		if err := prometheus.Register(c); err != nil {
			t.Errorf("Register %d/%d: %v", i, count, err)
		}
	}

	c := newPoolCollector(user, host, name, func() stat { return &pgxStatMock{} })
	if n := testutil.CollectAndCount(c); n != 9 {
		t.Errorf("collected %d metrics, want 9", n)
	}
}

func TestPoolCollectorValues(t *testing.T) {
	c := newPoolCollector("u", "h", "n", func() stat {
		return &pgxStatMock{acquireDuration: 1500 * time.Millisecond, idleConns: 2, maxConns: 8}
	})
	labels := `{db_host="h",db_name="n",db_procpoolid="` + strconv.FormatUint(atomic.LoadUint64(&poolCollectorID), 10) + `",db_user="u"}`

	want := `
# HELP confidentialbid_pgxpool_acquire_seconds_total Time spent in successful acquires.
# TYPE confidentialbid_pgxpool_acquire_seconds_total counter
confidentialbid_pgxpool_acquire_seconds_total` + labels + ` 1.5
# HELP confidentialbid_pgxpool_idle_conns Idle connections.
# TYPE confidentialbid_pgxpool_idle_conns gauge
confidentialbid_pgxpool_idle_conns` + labels + ` 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"confidentialbid_pgxpool_acquire_seconds_total",
		"confidentialbid_pgxpool_idle_conns",
	); err != nil {
		t.Error(err)
	}
}

type pgxStatMock struct {
	acquireCount         int64
	acquireDuration      time.Duration
	canceledAcquireCount int64
	emptyAcquireCount    int64
	acquiredConns        int32
	constructingConns    int32
	idleConns            int32
	maxConns             int32
	totalConns           int32
}

var _ stat = (*pgxStatMock)(nil)

func (m *pgxStatMock) AcquireCount() int64            { return m.acquireCount }
func (m *pgxStatMock) AcquireDuration() time.Duration { return m.acquireDuration }
func (m *pgxStatMock) AcquiredConns() int32           { return m.acquiredConns }
func (m *pgxStatMock) CanceledAcquireCount() int64    { return m.canceledAcquireCount }
func (m *pgxStatMock) ConstructingConns() int32       { return m.constructingConns }
func (m *pgxStatMock) EmptyAcquireCount() int64       { return m.emptyAcquireCount }
func (m *pgxStatMock) IdleConns() int32               { return m.idleConns }
func (m *pgxStatMock) MaxConns() int32                { return m.maxConns }
func (m *pgxStatMock) TotalConns() int32              { return m.totalConns }
