package activity_test

import (
	"context"
	"testing"
	"time"

	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gc "gopkg.in/check.v1"

	"campusevents/internal/activity"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
)

func TestPackage(t *testing.T) { gc.TestingT(t) }

type consumerSuite struct{}

var _ = gc.Suite(&consumerSuite{})

func (*consumerSuite) TestRunHandlesActivities(c *gc.C) {
	q := queue.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, kind := range []string{"attendance.marked", "event.created"} {
		msg, err := queue.NewActivityMessage(queue.Activity{Kind: kind, EventID: "e1", At: time.Now()})
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(q.Publish(ctx, msg), jc.ErrorIsNil)
	}
	c.Assert(q.Publish(ctx, queue.Message{Type: "junk", Body: []byte("{")}), jc.ErrorIsNil)

	seen := make(chan string, 3)
	m := metrics.NewCollector()
	consumer := &activity.Consumer{
		Queue:   q,
		Metrics: m,
		Handle: func(_ context.Context, a queue.Activity) {
			seen <- a.Kind
			if len(seen) == 2 {
				cancel()
			}
		},
	}
	done := make(chan int)
	go func() {
		n, err := consumer.Run(ctx)
		c.Check(err, jc.ErrorIsNil)
		done <- n
	}()
	select {
	case n := <-done:
		c.Check(n, gc.Equals, 2)
	case <-time.After(10 * time.Second):
		c.Fatal("consumer did not stop")
	}
	c.Check(<-seen, gc.Equals, "attendance.marked")
	c.Check(<-seen, gc.Equals, "event.created")
	c.Check(testutil.CollectAndCount(m, "campusevents_activities_consumed_total"), gc.Equals, 2)
}
