package metrics_test

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/metrics"
)

func TestPackage(t *testing.T) {
	gc.TestingT(t)
}

type metricsSuite struct{}

var _ = gc.Suite(&metricsSuite{})

func (s *metricsSuite) TestCollectorRegistersAndCounts(c *gc.C) {
	col := metrics.NewCollector()
	reg := prometheus.NewPedanticRegistry()
	c.Assert(reg.Register(col), jc.ErrorIsNil)

	col.ObserveOperation("register", "ok", 10*time.Millisecond)
	col.ObserveOperation("register", "conflict", time.Millisecond)
	col.ObserveReload("events", nil)
	col.ObserveReload("events", errors.New("boom"))
	col.ObserveActivity("registration.created")
	col.SetSessions(3)

	count, err := testutil.GatherAndCount(reg, "campusevents_operations_total")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(count, gc.Equals, 2)
	count, err = testutil.GatherAndCount(reg, "campusevents_cache_reloads_total")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(count, gc.Equals, 2)
}

func (s *metricsSuite) TestNilCollectorIsNoop(c *gc.C) {
	var col *metrics.Collector
	col.ObserveOperation("register", "ok", time.Second)
	col.ObserveReload("events", nil)
	col.ObserveActivity("x")
	col.SetSessions(1)
}
