// Package dataservice mediates between API callers and the store. Each
// Service belongs to one session and keeps a read-through cache of events,
// food stalls and the session user's registrations and attendance. The
// cache is refreshed after every mutating operation and is never the
// source of truth.
package dataservice

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"campusevents/internal/metrics"
	"campusevents/internal/model"
	"campusevents/internal/payment"
	"campusevents/internal/session"
	"campusevents/internal/store"
)

var logger = loggo.GetLogger("campus.dataservice")

// Options tune a Service. Zero values pick defaults.
type Options struct {
	Clock   clock.Clock
	Metrics *metrics.Collector
	// DefaultPaymentMethod is used when a paid registration names none.
	DefaultPaymentMethod string
	Currency             string
	// ReloadTimeout bounds the reload triggered by a session change.
	ReloadTimeout time.Duration
	// Location is the campus time zone used for event dates.
	Location *time.Location
}

// Service is the event and attendance data service for one session.
type Service struct {
	store   store.Store
	session *session.Session
	gateway payment.Gateway
	clock   clock.Clock
	metrics *metrics.Collector
	opts    Options

	// op serializes operations: one logical thread of control per session.
	op sync.Mutex

	mu         sync.RWMutex
	events     []model.Event
	stalls     []model.FoodStall
	registered []model.Event
	attended   []string

	stale atomic.Bool

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Change)

	cancelSession func()
}

// New builds a Service bound to sess. Call RefreshData to populate the cache.
func New(st store.Store, sess *session.Session, gw payment.Gateway, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.DefaultPaymentMethod == "" {
		opts.DefaultPaymentMethod = payment.MethodUPI
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Service{
		store:   st,
		session: sess,
		gateway: gw,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		opts:    opts,
		subs:    map[int]func(Change){},
	}
	s.cancelSession = sess.OnChange(s.sessionChanged)
	return s
}

// Close detaches the service from its session and drops subscribers.
func (s *Service) Close() {
	if s.cancelSession != nil {
		s.cancelSession()
	}
	s.subMu.Lock()
	s.subs = map[int]func(Change){}
	s.subMu.Unlock()
}

// Subscribe registers fn for change notifications. fn runs synchronously
// and must not call back into mutating operations.
func (s *Service) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Service) notify(ch Change) {
	if ch.At.IsZero() {
		ch.At = s.clock.Now().UTC()
	}
	if ch.ActorID == "" {
		if u := s.session.Current(); u != nil {
			ch.ActorID = u.ID
		}
	}
	s.subMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ch)
	}
}

// MarkStale flags the cache as out of date with the store.
func (s *Service) MarkStale() {
	s.stale.Store(true)
}

// Stale reports whether a reload is due.
func (s *Service) Stale() bool {
	return s.stale.Load()
}

// run serializes an operation and records its outcome.
func (s *Service) run(op string, fn func() Result) Result {
	s.op.Lock()
	defer s.op.Unlock()
	start := s.clock.Now()
	res := fn()
	s.metrics.ObserveOperation(op, string(res.Code), s.clock.Now().Sub(start))
	switch {
	case res.OK:
	case res.Code == CodeTransient:
		logger.Errorf("%s failed: %v", op, res.Err)
	default:
		logger.Debugf("%s rejected (%s): %s", op, res.Code, res.Message)
	}
	return res
}

func (s *Service) requireUser() (*session.User, Result) {
	u := s.session.Current()
	if u == nil {
		return nil, failure(CodeForbidden, MsgSignInRequired, errors.Unauthorizedf("no session"))
	}
	return u, Result{OK: true}
}

func (s *Service) requireAdmin() (*session.User, Result) {
	u, res := s.requireUser()
	if !res.OK {
		return nil, res
	}
	if !u.IsAdmin() {
		return nil, failure(CodeForbidden, MsgAdminOnly, errors.Forbiddenf("user %q is not an admin", u.ID))
	}
	return u, res
}

// requireSelfOrAdmin lets students act only on their own behalf.
func (s *Service) requireSelfOrAdmin(userID string) (*session.User, Result) {
	u, res := s.requireUser()
	if !res.OK {
		return nil, res
	}
	if !u.IsAdmin() && u.ID != userID {
		return nil, failure(CodeForbidden, "cannot act for another user", errors.Forbiddenf("user %q acting for %q", u.ID, userID))
	}
	return u, res
}

// -------- Cache accessors --------

// Events returns the cached events.
func (s *Service) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.events...)
}

// Event returns one cached event.
func (s *Service) Event(id string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, evt := range s.events {
		if evt.ID == id {
			return evt, true
		}
	}
	return model.Event{}, false
}

// FoodStalls returns the cached stalls with their ratings.
func (s *Service) FoodStalls() []model.FoodStall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.FoodStall(nil), s.stalls...)
}

// UserRegisteredEvents returns the events the session user is registered for.
func (s *Service) UserRegisteredEvents() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.registered...)
}

// UserAttendance returns ids of the events the session user attended.
func (s *Service) UserAttendance() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.attended...)
}

// IsRegistered reports whether the cache holds a registration for eventID.
func (s *Service) IsRegistered(eventID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, evt := range s.registered {
		if evt.ID == eventID {
			return true
		}
	}
	return false
}

// HasAttended reports whether the cache holds attendance for eventID.
func (s *Service) HasAttended(eventID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.attended {
		if id == eventID {
			return true
		}
	}
	return false
}

// -------- Reloads --------

// RefreshData reloads events, stalls and the session user's registrations
// and attendance. Data that fails to load keeps its previous cached value.
func (s *Service) RefreshData(ctx context.Context) Result {
	return s.run("refresh", func() Result {
		return s.refreshAll(ctx)
	})
}

func (s *Service) refreshAll(ctx context.Context) Result {
	// Cleared first so a MarkStale that lands mid-reload survives.
	s.stale.Store(false)
	var failed []error
	for _, reload := range []func(context.Context) error{
		s.reloadEvents, s.reloadStalls, s.reloadRegistrations, s.reloadAttendance,
	} {
		if err := reload(ctx); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		s.stale.Store(true)
		return failure(CodeTransient, "some data could not be refreshed", failed[0])
	}
	return success("", "")
}

// reloadAfterWrite runs reloads that follow a successful write. A failed
// reload leaves the cache behind the store, so the service is marked stale.
func (s *Service) reloadAfterWrite(ctx context.Context, reloads ...func(context.Context) error) {
	for _, reload := range reloads {
		if err := reload(ctx); err != nil {
			s.MarkStale()
		}
	}
}

func (s *Service) reloadEvents(ctx context.Context) error {
	events, err := s.store.ListEvents(ctx)
	s.metrics.ObserveReload("events", err)
	if err != nil {
		logger.Warningf("reload events: %v", err)
		return errors.Annotate(err, "reload events")
	}
	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeEventsReloaded})
	return nil
}

func (s *Service) reloadStalls(ctx context.Context) error {
	stalls, err := s.store.ListFoodStalls(ctx, true)
	s.metrics.ObserveReload("stalls", err)
	if err != nil {
		logger.Warningf("reload food stalls: %v", err)
		return errors.Annotate(err, "reload food stalls")
	}
	for i := range stalls {
		stalls[i].Rating, stalls[i].ReviewCount = Rating(stalls[i].Reviews)
	}
	s.mu.Lock()
	s.stalls = stalls
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeStallsReloaded})
	return nil
}

func (s *Service) reloadRegistrations(ctx context.Context) error {
	u := s.session.Current()
	if u == nil {
		s.mu.Lock()
		s.registered = nil
		s.mu.Unlock()
		return nil
	}
	events, err := s.store.ListUserRegistrations(ctx, u.ID)
	s.metrics.ObserveReload("registrations", err)
	if err != nil {
		logger.Warningf("reload registrations for %s: %v", u.ID, err)
		return errors.Annotate(err, "reload registrations")
	}
	s.mu.Lock()
	s.registered = events
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeRegistrationsReloaded, UserID: u.ID})
	return nil
}

func (s *Service) reloadAttendance(ctx context.Context) error {
	u := s.session.Current()
	if u == nil {
		s.mu.Lock()
		s.attended = nil
		s.mu.Unlock()
		return nil
	}
	ids, err := s.store.ListUserAttendance(ctx, u.ID)
	s.metrics.ObserveReload("attendance", err)
	if err != nil {
		logger.Warningf("reload attendance for %s: %v", u.ID, err)
		return errors.Annotate(err, "reload attendance")
	}
	s.mu.Lock()
	s.attended = ids
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeAttendanceReloaded, UserID: u.ID})
	return nil
}

// sessionChanged drops user-scoped cache entries and reloads for the new user.
func (s *Service) sessionChanged(u *session.User) {
	s.mu.Lock()
	s.registered, s.attended = nil, nil
	s.mu.Unlock()
	s.stale.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ReloadTimeout)
	defer cancel()
	s.op.Lock()
	res := s.refreshAll(ctx)
	s.op.Unlock()
	if !res.OK {
		logger.Warningf("reload after session change: %v", res.Err)
	}
	ch := Change{Kind: ChangeSession}
	if u != nil {
		ch.UserID = u.ID
	}
	s.notify(ch)
}

// appendLocalEvent adds evt to the cache only; used when the store cannot
// hold events.
func (s *Service) appendLocalEvent(evt model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	sort.SliceStable(s.events, func(i, j int) bool {
		a, b := s.events[i], s.events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Time < b.Time
	})
}

// Rating returns the mean review rating rounded to one decimal, and the
// number of reviews.
func Rating(reviews []model.Review) (float64, int) {
	if len(reviews) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	mean := float64(sum) / float64(len(reviews))
	return math.Round(mean*10) / 10, len(reviews)
}
