package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"campusevents/internal/model"
)

// Memory is a process-local Store used for offline/demo mode and tests.
// Every check-then-write runs under one lock.
type Memory struct {
	clock clock.Clock

	mu            sync.RWMutex
	profiles      map[string]model.Profile
	events        map[string]model.Event
	registrations map[string]model.Registration
	attendance    map[string]model.AttendanceRecord
	stalls        map[string]model.FoodStall
	reviews       map[string]model.Review
	payments      map[string]model.Payment
	feedback      []model.Feedback
}

// NewMemory returns an empty in-memory store.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Memory{
		clock:         clk,
		profiles:      map[string]model.Profile{},
		events:        map[string]model.Event{},
		registrations: map[string]model.Registration{},
		attendance:    map[string]model.AttendanceRecord{},
		stalls:        map[string]model.FoodStall{},
		reviews:       map[string]model.Review{},
		payments:      map[string]model.Payment{},
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) now() time.Time {
	return m.clock.Now().UTC()
}

// -------- Events --------

func (m *Memory) completedCount(eventID string) int {
	n := 0
	for _, r := range m.registrations {
		if r.EventID == eventID && r.PaymentStatus == model.PaymentCompleted {
			n++
		}
	}
	return n
}

func (m *Memory) withCount(evt model.Event) model.Event {
	evt.RegisteredCount = m.completedCount(evt.ID)
	return evt
}

func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Title < b.Title
	})
}

// ListEvents returns all events ordered by date.
func (m *Memory) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]model.Event, 0, len(m.events))
	for _, evt := range m.events {
		events = append(events, m.withCount(evt))
	}
	sortEvents(events)
	return events, nil
}

// GetEvent returns one event.
func (m *Memory) GetEvent(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evt, ok := m.events[id]
	if !ok {
		return model.Event{}, errors.NotFoundf("event %q", id)
	}
	return m.withCount(evt), nil
}

// CreateEvent stores a new event.
func (m *Memory) CreateEvent(_ context.Context, evt model.Event) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if _, ok := m.events[evt.ID]; ok {
		return model.Event{}, errors.AlreadyExistsf("event %q", evt.ID)
	}
	evt.RegisteredCount = 0
	m.events[evt.ID] = evt
	return evt, nil
}

// UpdateEvent applies a partial update.
func (m *Memory) UpdateEvent(_ context.Context, id string, upd model.EventUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return errors.NotFoundf("event %q", id)
	}
	upd.Apply(&evt)
	m.events[id] = evt
	return nil
}

// DeleteEvent removes an event with its registrations and attendance.
func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return errors.NotFoundf("event %q", id)
	}
	delete(m.events, id)
	for k, r := range m.registrations {
		if r.EventID == id {
			delete(m.registrations, k)
		}
	}
	for k, a := range m.attendance {
		if a.EventID == id {
			delete(m.attendance, k)
		}
	}
	return nil
}

// -------- Registrations --------

// ReserveSeat checks uniqueness and capacity and inserts a pending
// registration under a single lock.
func (m *Memory) ReserveSeat(_ context.Context, eventID, userID string) (model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[eventID]
	if !ok {
		return model.Registration{}, errors.NotFoundf("event %q", eventID)
	}
	active := 0
	for _, r := range m.registrations {
		if r.EventID != eventID || !r.PaymentStatus.Active() {
			continue
		}
		if r.UserID == userID {
			return model.Registration{}, ErrAlreadyRegistered
		}
		active++
	}
	if active >= evt.MaxSeats {
		return model.Registration{}, ErrEventFull
	}
	reg := model.Registration{
		ID:            uuid.NewString(),
		EventID:       eventID,
		UserID:        userID,
		PaymentStatus: model.PaymentPending,
		RegisteredAt:  m.now(),
	}
	m.registrations[reg.ID] = reg
	return reg, nil
}

// SetPaymentStatus updates a registration's payment state.
func (m *Memory) SetPaymentStatus(_ context.Context, registrationID string, status model.PaymentStatus, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[registrationID]
	if !ok {
		return errors.NotFoundf("registration %q", registrationID)
	}
	reg.PaymentStatus = status
	if paymentID != "" {
		reg.PaymentID = paymentID
	}
	m.registrations[registrationID] = reg
	return nil
}

// FindRegistration returns the active registration for the pair, or nil.
func (m *Memory) FindRegistration(_ context.Context, eventID, userID string) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.registrations {
		if r.EventID == eventID && r.UserID == userID && r.PaymentStatus.Active() {
			reg := r
			return &reg, nil
		}
	}
	return nil, nil
}

// DeleteRegistration removes the active registration for the pair. Failed
// and refunded rows are left alone.
func (m *Memory) DeleteRegistration(_ context.Context, eventID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for k, r := range m.registrations {
		if r.EventID == eventID && r.UserID == userID && r.PaymentStatus.Active() {
			delete(m.registrations, k)
			deleted++
		}
	}
	if deleted == 0 {
		return errors.NotFoundf("registration for event %q", eventID)
	}
	return nil
}

// ListUserRegistrations returns events userID completed registration for.
func (m *Memory) ListUserRegistrations(_ context.Context, userID string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []model.Event
	for _, r := range m.registrations {
		if r.UserID != userID || r.PaymentStatus != model.PaymentCompleted {
			continue
		}
		if evt, ok := m.events[r.EventID]; ok {
			events = append(events, m.withCount(evt))
		}
	}
	sortEvents(events)
	return events, nil
}

// -------- Attendance --------

func attendanceKey(eventID, userID string) string {
	return eventID + "/" + userID
}

// InsertAttendance records attendance once per (event, user).
func (m *Memory) InsertAttendance(_ context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[rec.EventID]; !ok {
		return model.AttendanceRecord{}, errors.NotFoundf("event %q", rec.EventID)
	}
	key := attendanceKey(rec.EventID, rec.UserID)
	if _, ok := m.attendance[key]; ok {
		return model.AttendanceRecord{}, ErrDuplicateAttendance
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = m.now()
	}
	m.attendance[key] = rec
	return rec, nil
}

// FindAttendance returns the record for the pair, or nil.
func (m *Memory) FindAttendance(_ context.Context, eventID, userID string) (*model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.attendance[attendanceKey(eventID, userID)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func sortAttendance(records []model.AttendanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].MarkedAt.Equal(records[j].MarkedAt) {
			return records[i].MarkedAt.Before(records[j].MarkedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// ListUserAttendance returns ids of events userID attended.
func (m *Memory) ListUserAttendance(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []model.AttendanceRecord
	for _, a := range m.attendance {
		if a.UserID == userID {
			records = append(records, a)
		}
	}
	sortAttendance(records)
	ids := make([]string, 0, len(records))
	for _, a := range records {
		ids = append(ids, a.EventID)
	}
	return ids, nil
}

// ListEventAttendance returns attendance for an event joined with profiles.
func (m *Memory) ListEventAttendance(_ context.Context, eventID string) ([]model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []model.AttendanceRecord
	for _, a := range m.attendance {
		if a.EventID != eventID {
			continue
		}
		if p, ok := m.profiles[a.UserID]; ok {
			a.Name, a.RollNumber, a.Email = p.Name, p.RollNumber, p.Email
		}
		records = append(records, a)
	}
	sortAttendance(records)
	return records, nil
}

// -------- Food stalls & reviews --------

// ListFoodStalls returns stalls with nested reviews, ordered by name.
func (m *Memory) ListFoodStalls(_ context.Context, activeOnly bool) ([]model.FoodStall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stalls []model.FoodStall
	for _, st := range m.stalls {
		if activeOnly && !st.IsActive {
			continue
		}
		st.Menu = append([]model.MenuItem(nil), st.Menu...)
		st.Reviews = nil
		for _, r := range m.reviews {
			if r.StallID != st.ID {
				continue
			}
			r.UserName = "Anonymous"
			if p, ok := m.profiles[r.UserID]; ok {
				r.UserName = p.Name
			}
			st.Reviews = append(st.Reviews, r)
		}
		sort.SliceStable(st.Reviews, func(i, j int) bool {
			return st.Reviews[i].CreatedAt.Before(st.Reviews[j].CreatedAt)
		})
		stalls = append(stalls, st)
	}
	sort.SliceStable(stalls, func(i, j int) bool { return stalls[i].Name < stalls[j].Name })
	return stalls, nil
}

// CreateFoodStall stores a stall.
func (m *Memory) CreateFoodStall(_ context.Context, st model.FoodStall) (model.FoodStall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Menu == nil {
		st.Menu = []model.MenuItem{}
	}
	st.Reviews, st.Rating, st.ReviewCount = nil, 0, 0
	m.stalls[st.ID] = st
	return st, nil
}

// UpdateFoodStall replaces a stall's editable fields.
func (m *Memory) UpdateFoodStall(_ context.Context, st model.FoodStall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stalls[st.ID]; !ok {
		return errors.NotFoundf("food stall %q", st.ID)
	}
	st.Reviews, st.Rating, st.ReviewCount = nil, 0, 0
	m.stalls[st.ID] = st
	return nil
}

func reviewKey(stallID, userID string) string {
	return stallID + "/" + userID
}

// InsertReview stores one review per (stall, user).
func (m *Memory) InsertReview(_ context.Context, rev model.Review) (model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stalls[rev.StallID]; !ok {
		return model.Review{}, errors.NotFoundf("food stall %q", rev.StallID)
	}
	key := reviewKey(rev.StallID, rev.UserID)
	if _, ok := m.reviews[key]; ok {
		return model.Review{}, ErrDuplicateReview
	}
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	rev.CreatedAt = m.now()
	m.reviews[key] = rev
	return rev, nil
}

// FindReview returns the user's review of the stall, or nil.
func (m *Memory) FindReview(_ context.Context, stallID, userID string) (*model.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rev, ok := m.reviews[reviewKey(stallID, userID)]
	if !ok {
		return nil, nil
	}
	return &rev, nil
}

// -------- Profiles --------

// CreateProfile stores a profile; email and roll number must be unique.
func (m *Memory) CreateProfile(_ context.Context, p model.Profile) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return model.Profile{}, ErrDuplicateProfile
		}
		if p.RollNumber != "" && existing.RollNumber == p.RollNumber {
			return model.Profile{}, ErrDuplicateProfile
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := m.profiles[p.ID]; ok {
		return model.Profile{}, ErrDuplicateProfile
	}
	p.CreatedAt = m.now()
	m.profiles[p.ID] = p
	return p, nil
}

// GetProfile returns a profile by id.
func (m *Memory) GetProfile(_ context.Context, id string) (model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return model.Profile{}, errors.NotFoundf("profile %q", id)
	}
	return p, nil
}

func (m *Memory) findProfile(match func(model.Profile) bool) *model.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if match(p) {
			found := p
			return &found
		}
	}
	return nil
}

// FindProfileByEmail matches email case-insensitively.
func (m *Memory) FindProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	return m.findProfile(func(p model.Profile) bool { return strings.EqualFold(p.Email, email) }), nil
}

// FindProfileByRollNumber matches a student's roll number.
func (m *Memory) FindProfileByRollNumber(_ context.Context, rollNumber string) (*model.Profile, error) {
	if rollNumber == "" {
		return nil, nil
	}
	return m.findProfile(func(p model.Profile) bool { return p.RollNumber == rollNumber }), nil
}

// FindProfileByIdentifier matches email, mobile number or roll number.
func (m *Memory) FindProfileByIdentifier(_ context.Context, identifier string) (*model.Profile, error) {
	if identifier == "" {
		return nil, nil
	}
	return m.findProfile(func(p model.Profile) bool {
		return strings.EqualFold(p.Email, identifier) || p.MobileNumber == identifier || p.RollNumber == identifier
	}), nil
}

// UpdateProfile applies the set fields of upd.
func (m *Memory) UpdateProfile(_ context.Context, id string, upd model.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return errors.NotFoundf("profile %q", id)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.MobileNumber != nil {
		p.MobileNumber = *upd.MobileNumber
	}
	if upd.OTPEnabled != nil {
		p.OTPEnabled = *upd.OTPEnabled
	}
	if upd.AvatarURL != nil {
		p.AvatarURL = *upd.AvatarURL
	}
	m.profiles[id] = p
	return nil
}

// -------- Payments & feedback --------

// InsertPayment records a payment.
func (m *Memory) InsertPayment(_ context.Context, p model.Payment) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = m.now()
	m.payments[p.ID] = p
	return p, nil
}

// Payments returns every recorded payment for userID.
func (m *Memory) Payments(userID string) []model.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// InsertFeedback stores a feedback message.
func (m *Memory) InsertFeedback(_ context.Context, f model.Feedback) (model.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = "pending"
	}
	f.CreatedAt = m.now()
	m.feedback = append(m.feedback, f)
	return f, nil
}

// ListFeedback returns the most recent feedback first.
func (m *Memory) ListFeedback(_ context.Context, limit int) ([]model.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]model.Feedback, 0, limit)
	for i := len(m.feedback) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.feedback[i])
	}
	return out, nil
}
