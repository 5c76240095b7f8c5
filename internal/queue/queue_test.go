package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/queue"
)

func TestPackage(t *testing.T) { gc.TestingT(t) }

type queueSuite struct{}

var _ = gc.Suite(&queueSuite{})

func (*queueSuite) TestActivityRoundTripThroughInMemory(c *gc.C) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewInMemory(4)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	msg, err := queue.NewActivityMessage(queue.Activity{Kind: "attendance_marked", EventID: "e1", UserID: "u1", At: at})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(q.Publish(ctx, msg), jc.ErrorIsNil)
	c.Check(q.Len(), gc.Equals, 1)

	out, err := q.Consume(ctx)
	c.Assert(err, jc.ErrorIsNil)
	select {
	case got := <-out:
		c.Check(got.Type, gc.Equals, "attendance_marked")
		a, err := queue.DecodeActivity(got)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(a.EventID, gc.Equals, "e1")
		c.Check(a.UserID, gc.Equals, "u1")
		c.Check(a.At.Equal(at), jc.IsTrue)
	case <-time.After(5 * time.Second):
		c.Fatal("no message consumed")
	}
}

func (*queueSuite) TestPublishRespectsContext(c *gc.C) {
	q := queue.NewInMemory(1)
	c.Assert(q.Publish(context.Background(), queue.Message{Type: "x"}), jc.ErrorIsNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Publish(ctx, queue.Message{Type: "y"})
	c.Check(errors.Is(err, context.Canceled), jc.IsTrue)
}

func (*queueSuite) TestConsumeClosesOnCancel(c *gc.C) {
	ctx, cancel := context.WithCancel(context.Background())
	out, err := queue.NewInMemory(1).Consume(ctx)
	c.Assert(err, jc.ErrorIsNil)
	cancel()
	select {
	case _, ok := <-out:
		c.Check(ok, jc.IsFalse)
	case <-time.After(5 * time.Second):
		c.Fatal("consumer did not stop")
	}
}

func (*queueSuite) TestDecodeRejectsGarbage(c *gc.C) {
	_, err := queue.DecodeActivity(queue.Message{Type: "x", Body: []byte("nope")})
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}
