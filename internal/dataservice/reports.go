package dataservice

import (
	"bytes"
	"context"
	"io"

	"github.com/juju/errors"

	"campusevents/internal/analytics"
)

// Analytics computes the admin dashboard from the cache plus per-event
// attendance counts read from the store.
func (s *Service) Analytics(ctx context.Context) (analytics.Dashboard, Result) {
	var d analytics.Dashboard
	res := s.run("analytics", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		events := s.Events()
		counts := make(map[string]int, len(events))
		for _, evt := range events {
			records, err := s.store.ListEventAttendance(ctx, evt.ID)
			if err != nil {
				return transient(errors.Annotatef(err, "attendance for %q", evt.ID))
			}
			counts[evt.ID] = len(records)
		}
		d = analytics.Compute(analytics.Input{
			Events:     events,
			Stalls:     s.FoodStalls(),
			Attendance: counts,
		}, s.clock.Now(), s.opts.Location)
		return success("", "")
	})
	return d, res
}

// ExportAttendance writes eventID's attendance sheet as CSV to w and returns
// the suggested file name in Result.ID. Nothing is written on failure.
func (s *Service) ExportAttendance(ctx context.Context, eventID string, w io.Writer) Result {
	return s.run("export_attendance", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		evt, ok := s.Event(eventID)
		if !ok {
			var err error
			if evt, err = s.store.GetEvent(ctx, eventID); errors.Is(err, errors.NotFound) {
				return failure(CodeNotFound, "event not found", err)
			} else if err != nil {
				return transient(err)
			}
		}
		records, err := s.store.ListEventAttendance(ctx, eventID)
		if err != nil {
			return transient(err)
		}
		var buf bytes.Buffer
		if err := analytics.WriteAttendanceCSV(&buf, evt, records, s.opts.Location); err != nil {
			return transient(err)
		}
		if _, err := buf.WriteTo(w); err != nil {
			return transient(errors.Annotate(err, "send attendance csv"))
		}
		return success(analytics.ExportFilename(evt, s.clock.Now().In(s.opts.Location)), "attendance exported")
	})
}
