// Package analytics derives admin dashboard figures from cached events,
// stalls and attendance counts.
package analytics

import (
	"math"
	"sort"
	"time"

	"campusevents/internal/model"
)

// TopN is how many entries the popularity rankings keep.
const TopN = 3

// Input is everything a dashboard is computed from. Attendance maps event
// id to the number of attendance records for it.
type Input struct {
	Events     []model.Event
	Stalls     []model.FoodStall
	Attendance map[string]int
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalEvents          int               `json:"total_events"`
	TotalRegistrations   int               `json:"total_registrations"`
	TotalAttendance      int               `json:"total_attendance"`
	AverageRegistrations int               `json:"average_registrations"`
	AttendanceRate       int               `json:"attendance_rate"`
	UpcomingEvents       int               `json:"upcoming_events"`
	PopularEvents        []model.Event     `json:"popular_events"`
	TopRatedStalls       []model.FoodStall `json:"top_rated_stalls"`
	Departments          []DepartmentStats `json:"departments"`
	Events               []EventStats      `json:"events"`
}

// DepartmentStats groups events by organizing department.
type DepartmentStats struct {
	Department    string `json:"department"`
	Events        int    `json:"events"`
	Registrations int    `json:"registrations"`
}

// EventStats is the attendance summary for one event.
type EventStats struct {
	EventID    string `json:"event_id"`
	Title      string `json:"title"`
	Registered int    `json:"registered"`
	Attended   int    `json:"attended"`
	Rate       int    `json:"rate"`
}

// Percent returns part/whole as a rounded percentage, 0 when whole is 0.
func Percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// ForEvent summarizes one event.
func ForEvent(evt model.Event, attended int) EventStats {
	return EventStats{
		EventID:    evt.ID,
		Title:      evt.Title,
		Registered: evt.RegisteredCount,
		Attended:   attended,
		Rate:       Percent(attended, evt.RegisteredCount),
	}
}

// Compute builds the dashboard. Events starting after now, read in loc,
// count as upcoming.
func Compute(in Input, now time.Time, loc *time.Location) Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	d := Dashboard{TotalEvents: len(in.Events)}
	departments := map[string]*DepartmentStats{}
	for _, evt := range in.Events {
		attended := in.Attendance[evt.ID]
		d.TotalRegistrations += evt.RegisteredCount
		d.TotalAttendance += attended
		d.Events = append(d.Events, ForEvent(evt, attended))
		if start, err := evt.StartsAt(loc); err == nil && start.After(now) {
			d.UpcomingEvents++
		}
		dept, ok := departments[evt.Department]
		if !ok {
			dept = &DepartmentStats{Department: evt.Department}
			departments[evt.Department] = dept
		}
		dept.Events++
		dept.Registrations += evt.RegisteredCount
	}
	if d.TotalEvents > 0 {
		d.AverageRegistrations = int(math.Round(float64(d.TotalRegistrations) / float64(d.TotalEvents)))
	}
	d.AttendanceRate = Percent(d.TotalAttendance, d.TotalRegistrations)

	popular := append([]model.Event(nil), in.Events...)
	sort.SliceStable(popular, func(i, j int) bool {
		return popular[i].RegisteredCount > popular[j].RegisteredCount
	})
	d.PopularEvents = popular[:min(TopN, len(popular))]

	rated := append([]model.FoodStall(nil), in.Stalls...)
	sort.SliceStable(rated, func(i, j int) bool { return rated[i].Rating > rated[j].Rating })
	rated = rated[:min(TopN, len(rated))]
	for i := range rated {
		rated[i].Reviews = nil
	}
	d.TopRatedStalls = rated

	for _, dept := range departments {
		d.Departments = append(d.Departments, *dept)
	}
	sort.Slice(d.Departments, func(i, j int) bool {
		return d.Departments[i].Department < d.Departments[j].Department
	})
	return d
}
