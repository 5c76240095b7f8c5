package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/model"
	"campusevents/internal/store"
)

func TestPackage(t *testing.T) {
	gc.TestingT(t)
}

type memorySuite struct {
	clock *testclock.Clock
	store *store.Memory
	ctx   context.Context
}

var _ = gc.Suite(&memorySuite{})

func (s *memorySuite) SetUpTest(c *gc.C) {
	s.clock = testclock.NewClock(time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC))
	s.store = store.NewMemory(s.clock)
	s.ctx = context.Background()
}

func (s *memorySuite) addEvent(c *gc.C, id string, seats int) {
	_, err := s.store.CreateEvent(s.ctx, model.Event{
		ID: id, Title: "Event " + id, Date: "2024-12-15", Time: "09:00", MaxSeats: seats,
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *memorySuite) complete(c *gc.C, eventID, userID string) {
	reg, err := s.store.ReserveSeat(s.ctx, eventID, userID)
	c.Assert(err, jc.ErrorIsNil)
	err = s.store.SetPaymentStatus(s.ctx, reg.ID, model.PaymentCompleted, "")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *memorySuite) TestReserveSeatRejectsDuplicate(c *gc.C) {
	s.addEvent(c, "e1", 5)
	s.complete(c, "e1", "u1")

	_, err := s.store.ReserveSeat(s.ctx, "e1", "u1")
	c.Assert(errors.Is(err, store.ErrAlreadyRegistered), jc.IsTrue)
	c.Assert(store.IsConflict(err), jc.IsTrue)

	evt, err := s.store.GetEvent(s.ctx, "e1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(evt.RegisteredCount, gc.Equals, 1)
}

func (s *memorySuite) TestReserveSeatCountsPendingAgainstCapacity(c *gc.C) {
	s.addEvent(c, "e1", 1)
	reg, err := s.store.ReserveSeat(s.ctx, "e1", "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(reg.PaymentStatus, gc.Equals, model.PaymentPending)

	_, err = s.store.ReserveSeat(s.ctx, "e1", "u2")
	c.Assert(errors.Is(err, store.ErrEventFull), jc.IsTrue)

	// A failed payment frees the seat.
	err = s.store.SetPaymentStatus(s.ctx, reg.ID, model.PaymentFailed, "")
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.store.ReserveSeat(s.ctx, "e1", "u2")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *memorySuite) TestReserveSeatConcurrentNeverOverbooks(c *gc.C) {
	s.addEvent(c, "e1", 3)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.store.ReserveSeat(s.ctx, "e1", "user-"+string(rune('a'+i))); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	c.Assert(ok, gc.Equals, 3)
}

func (s *memorySuite) TestReserveSeatUnknownEvent(c *gc.C) {
	_, err := s.store.ReserveSeat(s.ctx, "missing", "u1")
	c.Assert(errors.Is(err, errors.NotFound), jc.IsTrue)
}

func (s *memorySuite) TestDeleteRegistration(c *gc.C) {
	s.addEvent(c, "e1", 5)
	s.complete(c, "e1", "u1")

	err := s.store.DeleteRegistration(s.ctx, "e1", "u2")
	c.Assert(errors.Is(err, errors.NotFound), jc.IsTrue)

	err = s.store.DeleteRegistration(s.ctx, "e1", "u1")
	c.Assert(err, jc.ErrorIsNil)
	reg, err := s.store.FindRegistration(s.ctx, "e1", "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(reg, gc.IsNil)
}

func (s *memorySuite) TestDeleteRegistrationIgnoresFailed(c *gc.C) {
	s.addEvent(c, "e1", 5)
	reg, err := s.store.ReserveSeat(s.ctx, "e1", "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.store.SetPaymentStatus(s.ctx, reg.ID, model.PaymentFailed, ""), jc.ErrorIsNil)

	err = s.store.DeleteRegistration(s.ctx, "e1", "u1")
	c.Assert(errors.Is(err, errors.NotFound), jc.IsTrue)

	// The failed row survives and does not block a new reservation.
	again, err := s.store.ReserveSeat(s.ctx, "e1", "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(again.ID, gc.Not(gc.Equals), reg.ID)
	c.Assert(s.store.DeleteRegistration(s.ctx, "e1", "u1"), jc.ErrorIsNil)
}

func (s *memorySuite) TestListUserRegistrationsCompletedOnly(c *gc.C) {
	s.addEvent(c, "e1", 5)
	s.addEvent(c, "e2", 5)
	s.complete(c, "e1", "u1")
	_, err := s.store.ReserveSeat(s.ctx, "e2", "u1")
	c.Assert(err, jc.ErrorIsNil)

	events, err := s.store.ListUserRegistrations(s.ctx, "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(events, gc.HasLen, 1)
	c.Assert(events[0].ID, gc.Equals, "e1")
}

func (s *memorySuite) TestDeleteEventCascades(c *gc.C) {
	s.addEvent(c, "e1", 5)
	s.complete(c, "e1", "u1")
	_, err := s.store.InsertAttendance(s.ctx, model.AttendanceRecord{EventID: "e1", UserID: "u1"})
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(s.store.DeleteEvent(s.ctx, "e1"), jc.ErrorIsNil)

	events, err := s.store.ListUserRegistrations(s.ctx, "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(events, gc.HasLen, 0)
	attended, err := s.store.ListUserAttendance(s.ctx, "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(attended, gc.HasLen, 0)

	err = s.store.DeleteEvent(s.ctx, "e1")
	c.Assert(errors.Is(err, errors.NotFound), jc.IsTrue)
}

func (s *memorySuite) TestInsertAttendanceOnce(c *gc.C) {
	s.addEvent(c, "e1", 5)
	rec, err := s.store.InsertAttendance(s.ctx, model.AttendanceRecord{EventID: "e1", UserID: "u1", MarkedBy: "admin"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(rec.MarkedAt, gc.Equals, s.clock.Now().UTC())

	_, err = s.store.InsertAttendance(s.ctx, model.AttendanceRecord{EventID: "e1", UserID: "u1"})
	c.Assert(errors.Is(err, store.ErrDuplicateAttendance), jc.IsTrue)

	found, err := s.store.FindAttendance(s.ctx, "e1", "u1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(found.MarkedBy, gc.Equals, "admin")
}

func (s *memorySuite) TestListEventAttendanceJoinsProfiles(c *gc.C) {
	s.addEvent(c, "e1", 5)
	p, err := s.store.CreateProfile(s.ctx, model.Profile{Name: "Asha", Email: "asha@college.edu", RollNumber: "CS01", Role: model.RoleStudent})
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.store.InsertAttendance(s.ctx, model.AttendanceRecord{EventID: "e1", UserID: p.ID})
	c.Assert(err, jc.ErrorIsNil)

	records, err := s.store.ListEventAttendance(s.ctx, "e1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(records, gc.HasLen, 1)
	c.Assert(records[0].Name, gc.Equals, "Asha")
	c.Assert(records[0].RollNumber, gc.Equals, "CS01")
}

func (s *memorySuite) TestReviewsNestedAndUnique(c *gc.C) {
	st, err := s.store.CreateFoodStall(s.ctx, model.FoodStall{Name: "Cafe", IsActive: true})
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.store.InsertReview(s.ctx, model.Review{StallID: st.ID, UserID: "u1", Rating: 4})
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.store.InsertReview(s.ctx, model.Review{StallID: st.ID, UserID: "u1", Rating: 2})
	c.Assert(errors.Is(err, store.ErrDuplicateReview), jc.IsTrue)

	stalls, err := s.store.ListFoodStalls(s.ctx, true)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(stalls, gc.HasLen, 1)
	c.Assert(stalls[0].Reviews, gc.HasLen, 1)
	c.Assert(stalls[0].Reviews[0].UserName, gc.Equals, "Anonymous")
}

func (s *memorySuite) TestListFoodStallsActiveOnly(c *gc.C) {
	_, err := s.store.CreateFoodStall(s.ctx, model.FoodStall{Name: "Open", IsActive: true})
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.store.CreateFoodStall(s.ctx, model.FoodStall{Name: "Closed"})
	c.Assert(err, jc.ErrorIsNil)

	active, err := s.store.ListFoodStalls(s.ctx, true)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(active, gc.HasLen, 1)
	all, err := s.store.ListFoodStalls(s.ctx, false)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(all, gc.HasLen, 2)
}

func (s *memorySuite) TestProfileLookups(c *gc.C) {
	p, err := s.store.CreateProfile(s.ctx, model.Profile{
		Name: "Ravi", Email: "Ravi@College.edu", RollNumber: "CS42", MobileNumber: "9876543210", Role: model.RoleStudent,
	})
	c.Assert(err, jc.ErrorIsNil)

	_, err = s.store.CreateProfile(s.ctx, model.Profile{Email: "ravi@college.edu"})
	c.Assert(errors.Is(err, store.ErrDuplicateProfile), jc.IsTrue)
	_, err = s.store.CreateProfile(s.ctx, model.Profile{Email: "other@college.edu", RollNumber: "CS42"})
	c.Assert(errors.Is(err, store.ErrDuplicateProfile), jc.IsTrue)

	for _, ident := range []string{"ravi@college.edu", "9876543210", "CS42"} {
		found, err := s.store.FindProfileByIdentifier(s.ctx, ident)
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(found, gc.NotNil, gc.Commentf(ident))
		c.Assert(found.ID, gc.Equals, p.ID)
	}
	missing, err := s.store.FindProfileByRollNumber(s.ctx, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(missing, gc.IsNil)

	name := "Ravi K"
	enabled := true
	err = s.store.UpdateProfile(s.ctx, p.ID, model.ProfileUpdate{Name: &name, OTPEnabled: &enabled})
	c.Assert(err, jc.ErrorIsNil)
	got, err := s.store.GetProfile(s.ctx, p.ID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.Name, gc.Equals, "Ravi K")
	c.Assert(got.OTPEnabled, jc.IsTrue)
	c.Assert(got.MobileNumber, gc.Equals, "9876543210")
}

func (s *memorySuite) TestListEventsOrdered(c *gc.C) {
	for _, evt := range []model.Event{
		{ID: "late", Title: "B", Date: "2024-12-20", MaxSeats: 1},
		{ID: "early-b", Title: "B", Date: "2024-12-10", Time: "10:00", MaxSeats: 1},
		{ID: "early-a", Title: "A", Date: "2024-12-10", Time: "09:00", MaxSeats: 1},
	} {
		_, err := s.store.CreateEvent(s.ctx, evt)
		c.Assert(err, jc.ErrorIsNil)
	}
	events, err := s.store.ListEvents(s.ctx)
	c.Assert(err, jc.ErrorIsNil)
	var ids []string
	for _, evt := range events {
		ids = append(ids, evt.ID)
	}
	c.Assert(ids, jc.DeepEquals, []string{"early-a", "early-b", "late"})
}

func (s *memorySuite) TestUpdateEventPartial(c *gc.C) {
	s.addEvent(c, "e1", 5)
	loc := "Hall B"
	err := s.store.UpdateEvent(s.ctx, "e1", model.EventUpdate{Location: &loc})
	c.Assert(err, jc.ErrorIsNil)
	evt, err := s.store.GetEvent(s.ctx, "e1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(evt.Location, gc.Equals, "Hall B")
	c.Assert(evt.MaxSeats, gc.Equals, 5)

	err = s.store.UpdateEvent(s.ctx, "nope", model.EventUpdate{Location: &loc})
	c.Assert(errors.Is(err, errors.NotFound), jc.IsTrue)
}

func (s *memorySuite) TestFeedbackNewestFirst(c *gc.C) {
	for _, subject := range []string{"first", "second", "third"} {
		_, err := s.store.InsertFeedback(s.ctx, model.Feedback{Type: model.FeedbackGeneral, Subject: subject, Message: "m"})
		c.Assert(err, jc.ErrorIsNil)
	}
	list, err := s.store.ListFeedback(s.ctx, 2)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(list, gc.HasLen, 2)
	c.Assert(list[0].Subject, gc.Equals, "third")
	c.Assert(list[0].Status, gc.Equals, "pending")
}

func (s *memorySuite) TestSeedDemoIdempotent(c *gc.C) {
	c.Assert(store.SeedDemo(s.ctx, s.store), jc.ErrorIsNil)
	c.Assert(store.SeedDemo(s.ctx, s.store), jc.ErrorIsNil)

	events, err := s.store.ListEvents(s.ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(events, gc.HasLen, 2)
	c.Assert(events[0].Title, gc.Equals, "Tech Symposium 2024")
	stalls, err := s.store.ListFoodStalls(s.ctx, true)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(stalls, gc.HasLen, 2)
	c.Assert(stalls[1].Menu, gc.HasLen, 3)
}
