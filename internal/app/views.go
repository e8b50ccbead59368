package app

import (
	"calendar-console/internal/booking"
	"calendar-console/internal/console"
	"calendar-console/internal/grid"
)

type EmployeeView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage,omitempty"`
	Initial      string `json:"initial"`
}

func employeeViews(es []booking.Employee) []EmployeeView {
	out := make([]EmployeeView, 0, len(es))
	for _, e := range es {
		out = append(out, EmployeeView{ID: e.ID, Name: e.Name, ProfileImage: e.ProfileImage, Initial: e.Initial()})
	}
	return out
}

// CalendarView is everything the day view renders after one request.
type CalendarView struct {
	Date        booking.Day        `json:"date"`
	Location    string             `json:"location"`
	Locations   []booking.Location `json:"locations"`
	Employees   []EmployeeView     `json:"employees"`
	Rows        []grid.Row         `json:"rows"`
	CurrentHour int                `json:"currentHour"`
	// Bookings is the day's list view; it includes bookings the grid cannot place.
	Bookings     []booking.Booking `json:"bookings"`
	Unassigned   []booking.Booking `json:"unassigned"`
	Unplaced     []booking.Booking `json:"unplaced"`
	Hidden       []booking.Booking `json:"hidden"`
	Pane         console.Pane      `json:"pane"`
	ScrollToHour *int              `json:"scrollToHour,omitempty"`
	Synced       bool              `json:"synced"`
}

type MonthView struct {
	Year   int         `json:"year"`
	Month  int         `json:"month"`
	Counts map[int]int `json:"counts"`
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
