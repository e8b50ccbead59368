package store

import (
	"testing"

	"calendar-console/internal/booking"
)

func day(t *testing.T, s string) booking.Day {
	t.Helper()
	d, err := booking.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return d
}

func TestReplace_KeepsSnapshotIDs(t *testing.T) {
	s := New()
	snap := []booking.Booking{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	s.Replace(snap)
	if len(s.All()) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(s.All()))
	}
	for i, b := range s.All() {
		if b.ID != snap[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, snap[i].ID, b.ID)
		}
	}
	s.Replace(nil)
	if len(s.All()) != 0 || len(s.Filtered()) != 0 {
		t.Fatalf("expected empty store after replace(nil)")
	}
}

func TestSetFilter_SubsetOfAll(t *testing.T) {
	s := New()
	s.Replace([]booking.Booking{
		{ID: "a", Location: &booking.Location{ID: "location-1"}},
		{ID: "b", Location: &booking.Location{ID: "location-2"}},
		{ID: "c"},
	})
	s.SetFilter("location-2")
	got := s.Filtered()
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected filtered view: %+v", got)
	}

	// the filter survives a new snapshot
	s.Replace([]booking.Booking{
		{ID: "d", Location: &booking.Location{ID: "location-2"}},
		{ID: "e", Location: &booking.Location{ID: "location-1"}},
	})
	got = s.Filtered()
	if len(got) != 1 || got[0].ID != "d" {
		t.Fatalf("filter not reapplied: %+v", got)
	}

	s.SetFilter("")
	if s.Filter() != AllLocations || len(s.Filtered()) != 2 {
		t.Fatalf("expected all bookings after clearing filter")
	}
}

func TestForDate_SortsMixedEncodings(t *testing.T) {
	d := day(t, "2024-05-01")
	s := New()
	s.Replace([]booking.Booking{
		{ID: "late", Date: d, Time: "2:00 PM"},
		{ID: "early", Date: d, Time: "09:30"},
		{ID: "bad", Date: d, Time: "whenever"},
		{ID: "tie-b", Date: d, Time: "10:00"},
		{ID: "tie-a", Date: d, Time: "10:00 AM"},
		{ID: "other-day", Date: d.AddDays(1), Time: "08:00"},
	})
	got := s.ForDate(d)
	want := []string{"early", "tie-a", "tie-b", "late", "bad"}
	if len(got) != len(want) {
		t.Fatalf("expected %d bookings, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestCountByDay(t *testing.T) {
	s := New()
	s.Replace([]booking.Booking{
		{ID: "a", Date: day(t, "2024-05-01")},
		{ID: "b", Date: day(t, "2024-05-01")},
		{ID: "c", Date: day(t, "2024-05-31")},
		{ID: "d", Date: day(t, "2024-06-01")},
	})
	counts := s.CountByDay(2024, 5)
	if counts[1] != 2 || counts[31] != 1 || len(counts) != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
