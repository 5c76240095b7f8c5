// Package queue carries activity messages from the API to background workers.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/redis/go-redis/v9"
)

var logger = loggo.GetLogger("campus.queue")

// DefaultKey is the Redis list that holds activity messages.
const DefaultKey = "campus:activity"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// Activity describes one domain mutation.
type Activity struct {
	Kind    string    `json:"kind"`
	EventID string    `json:"event_id,omitempty"`
	StallID string    `json:"stall_id,omitempty"`
	UserID  string    `json:"user_id,omitempty"`
	ActorID string    `json:"actor_id,omitempty"`
	At      time.Time `json:"at"`
}

// NewActivityMessage wraps a in a Message typed by its kind.
func NewActivityMessage(a Activity) (Message, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return Message{}, errors.Annotate(err, "encode activity")
	}
	return Message{Type: a.Kind, Body: body}, nil
}

// DecodeActivity reads the activity carried by msg.
func DecodeActivity(msg Message) (Activity, error) {
	var a Activity
	if err := json.Unmarshal(msg.Body, &a); err != nil {
		return Activity{}, errors.NotValidf("activity body %q", msg.Body)
	}
	if a.Kind == "" {
		a.Kind = msg.Type
	}
	return a, nil
}

// InMemory is a channel-backed queue for single-process deployments and tests.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Len reports how many messages are waiting.
func (q *InMemory) Len() int {
	return len(q.ch)
}

// Consume returns a channel for workers. It closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Annotate(err, "encode message")
	}
	return errors.Annotate(q.client.LPush(ctx, q.key, payload).Err(), "publish")
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					logger.Warningf("brpop %s: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				logger.Warningf("dropping malformed message: %v", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
