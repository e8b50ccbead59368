package feed

import (
	"fmt"
	"sort"
	"time"

	"calendar-console/internal/booking"
)

type BellKind string

const (
	BellNewBooking   BellKind = "new_booking"
	BellStatusChange BellKind = "status_change"
)

// statusChangeGap separates a plain creation from a later edit.
const statusChangeGap = 5 * time.Second

// BellItem is the per-booking projection shown in the top navigation menu.
type BellItem struct {
	ID        string          `json:"id"`
	Kind      BellKind        `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	When      string          `json:"time"`
	Status    booking.Status  `json:"status"`
	Color     string          `json:"color"`
	Age       string          `json:"age"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	IsNew     bool            `json:"isNew"`
	Booking   booking.Booking `json:"booking"`
}

type Bell struct {
	Items  []BellItem `json:"notifications"`
	Unread int        `json:"unreadCount"`
}

// Derive projects a snapshot into bell items: unread ones first by creation
// time, the rest by update time, both newest first.
func Derive(bookings []booking.Booking, now time.Time) Bell {
	items := make([]BellItem, 0, len(bookings))
	unread := 0
	for _, b := range bookings {
		it := bellItem(b, now)
		if it.IsNew {
			unread++
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsNew != b.IsNew {
			return a.IsNew
		}
		if a.IsNew {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return Bell{Items: items, Unread: unread}
}

func bellItem(b booking.Booking, now time.Time) BellItem {
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = b.CreatedAt
	}
	kind, title := BellNewBooking, "New Booking"
	if updated.Sub(b.CreatedAt) > statusChangeGap {
		kind = BellStatusChange
		switch b.Status {
		case booking.StatusConfirmed:
			title = "Booking Confirmed"
		case booking.StatusCompleted:
			title = "Booking Completed"
		case booking.StatusCancelled:
			title = "Booking Cancelled"
		default:
			title = "Status Updated"
		}
	}
	return BellItem{
		ID:    b.ID,
		Kind:  kind,
		Title: title,
		Message: fmt.Sprintf("%s - %s with %s",
			orDefault(b.Customer().Name, "Unknown Customer"),
			orDefault(b.DisplayService(), "Service"),
			orDefault(b.EmployeeName(), "Not assigned")),
		When:      fmt.Sprintf("%s at %s", b.Date, b.Time),
		Status:    b.Status,
		Color:     StatusColor(b.Status),
		Age:       RelativeAge(updated, now),
		CreatedAt: b.CreatedAt,
		UpdatedAt: updated,
		IsNew:     IsNew(&b, now),
		Booking:   b,
	}
}
