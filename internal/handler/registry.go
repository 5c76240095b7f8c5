package handler

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	"campusevents/internal/dataservice"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
	"campusevents/internal/session"
	"campusevents/internal/store"
)

// ServiceFactory builds a data service bound to sess.
type ServiceFactory func(sess *session.Session) *dataservice.Service

type entry struct {
	sess   *session.Session
	svc    *dataservice.Service
	cancel func()
}

// Registry keeps one data service per signed-in user. Shared changes made
// through one service mark every other service stale, and domain changes
// are published to the activity queue.
type Registry struct {
	store   store.Store
	factory ServiceFactory
	queue   queue.Queue
	metrics *metrics.Collector
	// PublishTimeout bounds a single queue publish.
	PublishTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry. q may be nil.
func NewRegistry(st store.Store, factory ServiceFactory, q queue.Queue, m *metrics.Collector) *Registry {
	return &Registry{
		store:          st,
		factory:        factory,
		queue:          q,
		metrics:        m,
		PublishTimeout: 2 * time.Second,
		entries:        map[string]*entry{},
	}
}

// Service returns the data service for userID, signing it in on first use.
func (r *Registry) Service(ctx context.Context, userID string) (*dataservice.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[userID]; ok {
		return e.svc, nil
	}
	p, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess := session.New()
	svc := r.factory(sess)
	e := &entry{sess: sess, svc: svc}
	e.cancel = svc.Subscribe(func(ch dataservice.Change) { r.changed(userID, ch) })
	sess.Login(session.UserFromProfile(p))
	r.entries[userID] = e
	r.metrics.SetSessions(len(r.entries))
	return svc, nil
}

// Reload re-reads userID's profile into its session, if one is live.
func (r *Registry) Reload(ctx context.Context, userID string) error {
	r.mu.Lock()
	e, ok := r.entries[userID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	p, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return errors.Trace(err)
	}
	e.sess.Login(session.UserFromProfile(p))
	return nil
}

// Drop signs userID out and forgets its service.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	delete(r.entries, userID)
	r.metrics.SetSessions(len(r.entries))
	r.mu.Unlock()
	if !ok {
		return
	}
	e.cancel()
	e.svc.Close()
	e.sess.Logout()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) changed(owner string, ch dataservice.Change) {
	if ch.Kind.Shared() {
		r.mu.Lock()
		for id, e := range r.entries {
			if id != owner {
				e.svc.MarkStale()
			}
		}
		r.mu.Unlock()
	}
	if ch.Kind.Activity() {
		r.publish(ch)
	}
}

func (r *Registry) publish(ch dataservice.Change) {
	if r.queue == nil {
		return
	}
	msg, err := queue.NewActivityMessage(queue.Activity{
		Kind:    string(ch.Kind),
		EventID: ch.EventID,
		StallID: ch.StallID,
		UserID:  ch.UserID,
		ActorID: ch.ActorID,
		At:      ch.At,
	})
	if err != nil {
		logger.Warningf("encode %s activity: %v", ch.Kind, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.PublishTimeout)
	defer cancel()
	if err := r.queue.Publish(ctx, msg); err != nil {
		logger.Warningf("publish %s activity: %v", ch.Kind, err)
	}
}
