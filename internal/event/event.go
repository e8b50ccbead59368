package event

import (
	"time"

	"calendar-console/internal/booking"
)

type Kind string

const (
	KindNew           Kind = "new"
	KindStatusChanged Kind = "statusChanged"
	// KindDeleted is only published to sinks; the notification feed skips it.
	KindDeleted Kind = "deleted"
)

// Event is one domain change derived by diffing two snapshots.
type Event struct {
	Kind      Kind            `json:"kind"`
	BookingID string          `json:"bookingId"`
	From      booking.Status  `json:"from,omitempty"`
	To        booking.Status  `json:"to,omitempty"`
	At        time.Time       `json:"at"`
	Booking   booking.Booking `json:"booking"`
}

// Diff derives events from prev to next. New bookings are reported in next's
// order, status changes likewise, deletions in prev's order.
//
// The timestamp of a new event is the booking's createdAt and of a status
// change its updatedAt. When the server did not bump updatedAt, observedAt is
// used instead.
func Diff(prev, next []booking.Booking, observedAt time.Time) []Event {
	old := make(map[string]*booking.Booking, len(prev))
	for i := range prev {
		old[prev[i].ID] = &prev[i]
	}
	seen := make(map[string]struct{}, len(next))

	var created, changed []Event
	for _, b := range next {
		seen[b.ID] = struct{}{}
		o, ok := old[b.ID]
		if !ok {
			at := b.CreatedAt
			if at.IsZero() {
				at = observedAt
			}
			created = append(created, Event{Kind: KindNew, BookingID: b.ID, To: b.Status, At: at, Booking: b})
			continue
		}
		if o.Status != b.Status {
			at := b.UpdatedAt
			if !at.After(o.UpdatedAt) {
				at = observedAt
			}
			changed = append(changed, Event{Kind: KindStatusChanged, BookingID: b.ID, From: o.Status, To: b.Status, At: at, Booking: b})
		}
	}

	var deleted []Event
	for _, b := range prev {
		if _, ok := seen[b.ID]; !ok {
			deleted = append(deleted, Event{Kind: KindDeleted, BookingID: b.ID, From: b.Status, At: observedAt, Booking: b})
		}
	}

	out := make([]Event, 0, len(created)+len(changed)+len(deleted))
	out = append(out, created...)
	out = append(out, changed...)
	return append(out, deleted...)
}
