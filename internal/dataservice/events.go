package dataservice

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"campusevents/internal/model"
	"campusevents/internal/store"
)

func validateEventFields(title, date, clock string, maxSeats int, price float64) error {
	if strings.TrimSpace(title) == "" {
		return errors.NotValidf("empty title")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return errors.NotValidf("date %q", date)
	}
	if clock != "" {
		if _, err := time.Parse("15:04", clock); err != nil {
			return errors.NotValidf("time %q", clock)
		}
	}
	if maxSeats <= 0 {
		return errors.NotValidf("max seats %d", maxSeats)
	}
	if price < 0 {
		return errors.NotValidf("price %v", price)
	}
	return nil
}

// AddEvent creates an event. When the store has no events table the event
// is kept in the local cache only, so the admin can keep working offline.
func (s *Service) AddEvent(ctx context.Context, evt model.Event) Result {
	return s.run("add_event", func() Result {
		u, res := s.requireAdmin()
		if !res.OK {
			return res
		}
		if err := validateEventFields(evt.Title, evt.Date, evt.Time, evt.MaxSeats, evt.Price); err != nil {
			return failure(CodeInvalid, err.Error(), err)
		}
		evt.CreatedBy = u.ID
		evt.RegisteredCount = 0

		created, err := s.store.CreateEvent(ctx, evt)
		switch {
		case errors.Is(err, store.ErrTableMissing):
			logger.Warningf("events table unavailable, keeping %q locally: %v", evt.Title, err)
			if evt.ID == "" {
				evt.ID = uuid.NewString()
			}
			s.appendLocalEvent(evt)
			s.notify(Change{Kind: ChangeEventCreated, EventID: evt.ID})
			return success(evt.ID, "event saved locally")
		case errors.Is(err, errors.AlreadyExists):
			return failure(CodeConflict, "event already exists", err)
		case err != nil:
			return transient(err)
		}
		s.reloadAfterWrite(ctx, s.reloadEvents)
		s.notify(Change{Kind: ChangeEventCreated, EventID: created.ID})
		return success(created.ID, "event created")
	})
}

// UpdateEvent applies a partial update. Capacity may not drop below the
// number of completed registrations.
func (s *Service) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) Result {
	return s.run("update_event", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		current, err := s.store.GetEvent(ctx, id)
		if errors.Is(err, errors.NotFound) {
			return failure(CodeNotFound, "event not found", err)
		} else if err != nil {
			return transient(err)
		}
		next := current
		upd.Apply(&next)
		if err := validateEventFields(next.Title, next.Date, next.Time, next.MaxSeats, next.Price); err != nil {
			return failure(CodeInvalid, err.Error(), err)
		}
		if next.MaxSeats < current.RegisteredCount {
			return failure(CodeConflict, "max seats below current registrations",
				errors.NotValidf("max seats %d with %d registered", next.MaxSeats, current.RegisteredCount))
		}
		err = s.store.UpdateEvent(ctx, id, upd)
		if errors.Is(err, errors.NotFound) {
			return failure(CodeNotFound, "event not found", err)
		} else if err != nil {
			return transient(err)
		}
		s.reloadAfterWrite(ctx, s.reloadEvents)
		s.notify(Change{Kind: ChangeEventUpdated, EventID: id})
		return success(id, "event updated")
	})
}

// DeleteEvent removes an event together with its registrations and attendance.
func (s *Service) DeleteEvent(ctx context.Context, id string) Result {
	return s.run("delete_event", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		err := s.store.DeleteEvent(ctx, id)
		if errors.Is(err, errors.NotFound) {
			return failure(CodeNotFound, "event not found", err)
		} else if err != nil {
			return transient(err)
		}
		s.reloadAfterWrite(ctx, s.reloadEvents, s.reloadRegistrations, s.reloadAttendance)
		s.notify(Change{Kind: ChangeEventDeleted, EventID: id})
		return success(id, "event deleted")
	})
}
