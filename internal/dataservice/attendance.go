package dataservice

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"

	"campusevents/internal/model"
	"campusevents/internal/qr"
	"campusevents/internal/session"
	"campusevents/internal/store"
)

// MarkAttendance records that userID attended eventID. Only admins may mark,
// the attendee must hold a completed registration, and a second mark for
// the same pair is rejected as a duplicate scan. scanPayload is kept for audit.
func (s *Service) MarkAttendance(ctx context.Context, eventID, userID, scanPayload string) Result {
	return s.run("mark_attendance", func() Result {
		marker, res := s.requireAdmin()
		if !res.OK {
			return res
		}
		return s.markAttendance(ctx, marker, eventID, userID, scanPayload)
	})
}

func (s *Service) markAttendance(ctx context.Context, marker *session.User, eventID, userID, scanPayload string) Result {
	if eventID == "" || userID == "" {
		return failure(CodeInvalid, "event and user are required", errors.NotValidf("empty event or user"))
	}
	existing, err := s.store.FindAttendance(ctx, eventID, userID)
	if err != nil {
		return transient(err)
	}
	if existing != nil {
		return failure(CodeConflict, MsgDuplicateScan, store.ErrDuplicateAttendance)
	}
	reg, err := s.store.FindRegistration(ctx, eventID, userID)
	if err != nil {
		return transient(err)
	}
	if reg == nil || reg.PaymentStatus != model.PaymentCompleted {
		return failure(CodeConflict, MsgNotRegistered, errors.NotFoundf("completed registration of %q for %q", userID, eventID))
	}

	rec, err := s.store.InsertAttendance(ctx, model.AttendanceRecord{
		EventID:  eventID,
		UserID:   userID,
		MarkedBy: marker.ID,
		QRData:   auditPayload(scanPayload),
		MarkedAt: s.clock.Now().UTC(),
	})
	switch {
	case errors.Is(err, store.ErrDuplicateAttendance):
		return failure(CodeConflict, MsgDuplicateScan, err)
	case errors.Is(err, errors.NotFound):
		return failure(CodeNotFound, "event not found", err)
	case err != nil:
		return transient(err)
	}
	s.reloadAfterWrite(ctx, s.reloadAttendance)
	s.notify(Change{Kind: ChangeAttendanceMarked, EventID: eventID, UserID: userID})
	return success(rec.ID, "attendance marked")
}

// auditPayload stores scanned JSON as-is and anything else as a JSON string.
func auditPayload(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

// ScanAttendance parses a scanned QR payload for the selected event, resolves
// the attendee and marks attendance. On success Result.ID is the attendee id
// and Result.Message names them.
func (s *Service) ScanAttendance(ctx context.Context, selectedEventID, raw string) Result {
	return s.run("scan_attendance", func() Result {
		marker, res := s.requireAdmin()
		if !res.OK {
			return res
		}
		if selectedEventID == "" {
			return failure(CodeInvalid, "select an event first", errors.NotValidf("no event selected"))
		}
		p, err := qr.Parse(raw)
		if err != nil {
			return failure(CodeInvalid, MsgInvalidQR, err)
		}
		if !p.MatchesEvent(selectedEventID) {
			return failure(CodeInvalid, MsgWrongEvent, errors.NotValidf("payload for event %q scanned at %q", p.EventID, selectedEventID))
		}
		attendee, err := s.resolveAttendee(ctx, p)
		if errors.Is(err, errors.NotFound) {
			return failure(CodeNotFound, "student not found", err)
		} else if err != nil {
			return transient(err)
		}
		res = s.markAttendance(ctx, marker, selectedEventID, attendee.ID, raw)
		if res.OK {
			res.ID = attendee.ID
			res.Message = "attendance marked for " + attendee.Name
		}
		return res
	})
}

func (s *Service) resolveAttendee(ctx context.Context, p qr.Payload) (model.Profile, error) {
	if p.UserID != "" {
		prof, err := s.store.GetProfile(ctx, p.UserID)
		if err == nil {
			return prof, nil
		}
		if !errors.Is(err, errors.NotFound) || p.RollNumber == "" {
			return model.Profile{}, errors.Trace(err)
		}
	}
	prof, err := s.store.FindProfileByRollNumber(ctx, p.RollNumber)
	if err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	if prof == nil {
		return model.Profile{}, errors.NotFoundf("student with roll number %q", p.RollNumber)
	}
	return *prof, nil
}

// EventAttendance lists attendance for one event, joined with attendee
// names. Admin only.
func (s *Service) EventAttendance(ctx context.Context, eventID string) ([]model.AttendanceRecord, Result) {
	var records []model.AttendanceRecord
	res := s.run("event_attendance", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		var err error
		records, err = s.store.ListEventAttendance(ctx, eventID)
		if err != nil {
			return transient(err)
		}
		return success(eventID, "")
	})
	return records, res
}
