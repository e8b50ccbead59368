package event

import (
	"testing"
	"time"

	"calendar-console/internal/booking"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return v
}

func TestDiff_IdenticalSnapshotsEmitNothing(t *testing.T) {
	snap := []booking.Booking{
		{ID: "a", Status: booking.StatusPending},
		{ID: "b", Status: booking.StatusConfirmed},
	}
	if got := Diff(snap, snap, time.Now()); len(got) != 0 {
		t.Fatalf("expected no events, got %+v", got)
	}
}

func TestDiff_New(t *testing.T) {
	created := ts(t, "2024-01-01T10:00:00Z")
	prev := []booking.Booking{{ID: "a", Status: booking.StatusPending, CreatedAt: created, UpdatedAt: created}}
	next := append([]booking.Booking{}, prev...)
	next = append(next, booking.Booking{ID: "b", Status: booking.StatusPending, CreatedAt: created.Add(time.Hour)})

	got := Diff(prev, next, time.Now())
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Kind != KindNew || got[0].BookingID != "b" || !got[0].At.Equal(created.Add(time.Hour)) {
		t.Fatalf("unexpected event %+v", got[0])
	}
}

func TestDiff_StatusChanged(t *testing.T) {
	prev := []booking.Booking{{ID: "a", Status: booking.StatusPending, UpdatedAt: ts(t, "2024-01-01T10:00:00Z")}}
	next := []booking.Booking{{ID: "a", Status: booking.StatusConfirmed, UpdatedAt: ts(t, "2024-01-01T10:00:10Z")}}

	got := Diff(prev, next, time.Now())
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	e := got[0]
	if e.Kind != KindStatusChanged || e.From != booking.StatusPending || e.To != booking.StatusConfirmed {
		t.Fatalf("unexpected event %+v", e)
	}
	if !e.At.Equal(ts(t, "2024-01-01T10:00:10Z")) {
		t.Fatalf("expected updatedAt as event time, got %s", e.At)
	}
}

func TestDiff_StatusChangedWithoutUpdatedAtBumpUsesObservedTime(t *testing.T) {
	same := ts(t, "2024-01-01T10:00:00Z")
	observed := ts(t, "2024-01-02T09:00:00Z")
	prev := []booking.Booking{{ID: "a", Status: booking.StatusPending, UpdatedAt: same}}
	next := []booking.Booking{{ID: "a", Status: booking.StatusCancelled, UpdatedAt: same}}

	got := Diff(prev, next, observed)
	if len(got) != 1 || !got[0].At.Equal(observed) {
		t.Fatalf("expected status change stamped at observation time, got %+v", got)
	}
}

func TestDiff_Deleted(t *testing.T) {
	prev := []booking.Booking{{ID: "a"}, {ID: "b"}}
	next := []booking.Booking{{ID: "b"}}
	got := Diff(prev, next, time.Now())
	if len(got) != 1 || got[0].Kind != KindDeleted || got[0].BookingID != "a" {
		t.Fatalf("expected deleted event for a, got %+v", got)
	}
}
