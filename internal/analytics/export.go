package analytics

import (
	"encoding/csv"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"

	"campusevents/internal/model"
)

// WriteAttendanceCSV writes a summary header followed by one row per attendee.
func WriteAttendanceCSV(w io.Writer, evt model.Event, records []model.AttendanceRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Event", evt.Title},
		{"Date", evt.Date},
		{"Total Present", strconv.Itoa(len(records))},
		{""},
		{"Name", "Roll Number", "Email", "Marked At"},
	}
	for _, rec := range records {
		rows = append(rows, []string{
			orNA(rec.Name), orNA(rec.RollNumber), orNA(rec.Email),
			rec.MarkedAt.In(loc).Format("2006-01-02 15:04:05"),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return errors.Annotate(err, "write attendance csv")
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportFilename names an attendance export for evt taken on day.
func ExportFilename(evt model.Event, day time.Time) string {
	title := strings.Trim(unsafeFilename.ReplaceAllString(evt.Title, "-"), "-")
	if title == "" {
		title = "event"
	}
	return "attendance-" + title + "-" + day.Format("2006-01-02") + ".csv"
}
