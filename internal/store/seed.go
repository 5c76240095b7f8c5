package store

import (
	"context"

	"github.com/juju/errors"

	"campusevents/internal/model"
)

// DemoEvents and DemoStalls are the fixtures loaded in offline/demo mode.
var (
	DemoEvents = []model.Event{{
		ID:          "1",
		Title:       "Tech Symposium 2024",
		Description: "Annual technology symposium featuring latest innovations",
		Date:        "2024-12-15",
		Time:        "09:00",
		Location:    "Main Auditorium",
		Department:  "Computer Science",
		MaxSeats:    200,
		Price:       100,
		ImageURL:    "https://images.pexels.com/photos/2774556/pexels-photo-2774556.jpeg",
	}, {
		ID:          "2",
		Title:       "Cultural Fest",
		Description: "Celebrate diversity with music, dance, and art",
		Date:        "2024-12-20",
		Time:        "18:00",
		Location:    "Cultural Center",
		Department:  "Cultural Committee",
		MaxSeats:    500,
		Price:       50,
		ImageURL:    "https://images.pexels.com/photos/1190298/pexels-photo-1190298.jpeg",
	}}

	DemoStalls = []model.FoodStall{{
		ID:          "1",
		Name:        "Campus Cafe",
		Description: "Fresh coffee and snacks",
		ImageURL:    "https://images.pexels.com/photos/302899/pexels-photo-302899.jpeg",
		Menu: []model.MenuItem{
			{Item: "Coffee", Price: 25},
			{Item: "Sandwich", Price: 80},
			{Item: "Pastry", Price: 45},
		},
		Location: "Main Campus",
		IsActive: true,
	}, {
		ID:          "2",
		Name:        "Pizza Corner",
		Description: "Delicious pizzas and Italian food",
		ImageURL:    "https://images.pexels.com/photos/315755/pexels-photo-315755.jpeg",
		Menu: []model.MenuItem{
			{Item: "Margherita", Price: 120},
			{Item: "Pepperoni", Price: 150},
			{Item: "Garlic Bread", Price: 60},
		},
		Location: "Food Court",
		IsActive: true,
	}}
)

// SeedDemo loads the demo events and stalls into s. Rows that already
// exist are skipped.
func SeedDemo(ctx context.Context, s Store) error {
	for _, evt := range DemoEvents {
		if _, err := s.GetEvent(ctx, evt.ID); err == nil {
			continue
		} else if !errors.Is(err, errors.NotFound) {
			return errors.Trace(err)
		}
		if _, err := s.CreateEvent(ctx, evt); err != nil {
			return errors.Annotatef(err, "seed event %q", evt.Title)
		}
	}
	stalls, err := s.ListFoodStalls(ctx, false)
	if err != nil {
		return errors.Trace(err)
	}
	existing := make(map[string]bool, len(stalls))
	for _, st := range stalls {
		existing[st.ID] = true
	}
	for _, st := range DemoStalls {
		if existing[st.ID] {
			continue
		}
		st.Menu = append([]model.MenuItem(nil), st.Menu...)
		if _, err := s.CreateFoodStall(ctx, st); err != nil {
			return errors.Annotatef(err, "seed stall %q", st.Name)
		}
	}
	return nil
}
