// Package activity drains the activity queue.
package activity

import (
	"context"

	"github.com/juju/loggo/v2"

	"campusevents/internal/metrics"
	"campusevents/internal/queue"
)

var logger = loggo.GetLogger("campus.activity")

// Consumer reads activity messages until its context ends.
type Consumer struct {
	Queue   queue.Queue
	Metrics *metrics.Collector
	// Handle, when set, runs for every decoded activity.
	Handle func(context.Context, queue.Activity)
}

// Run consumes messages and returns how many activities were handled.
func (c *Consumer) Run(ctx context.Context) (int, error) {
	messages, err := c.Queue.Consume(ctx)
	if err != nil {
		return 0, err
	}
	handled := 0
	for msg := range messages {
		a, err := queue.DecodeActivity(msg)
		if err != nil {
			logger.Warningf("skipping %s message: %v", msg.Type, err)
			continue
		}
		logger.Infof("%s event=%s stall=%s user=%s actor=%s at=%s",
			a.Kind, a.EventID, a.StallID, a.UserID, a.ActorID, a.At.Format("2006-01-02T15:04:05Z07:00"))
		c.Metrics.ObserveActivity(a.Kind)
		if c.Handle != nil {
			c.Handle(ctx, a)
		}
		handled++
	}
	return handled, nil
}
