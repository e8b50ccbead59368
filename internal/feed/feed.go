package feed

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"calendar-console/internal/booking"
	"calendar-console/internal/event"
)

const DefaultCapacity = 20

// Entry is one notification in the feed.
type Entry struct {
	ID        string          `json:"id"`
	Kind      event.Kind      `json:"kind"`
	BookingID string          `json:"bookingId"`
	From      booking.Status  `json:"from,omitempty"`
	To        booking.Status  `json:"to,omitempty"`
	At        time.Time       `json:"at"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Color     string          `json:"color"`
	Booking   booking.Booking `json:"booking"`
}

// View adds the time-dependent presentation fields.
type View struct {
	Entry
	Age   string `json:"age"`
	IsNew bool   `json:"isNew"`
}

func (e Entry) View(now time.Time) View {
	return View{Entry: e, Age: RelativeAge(e.Booking.UpdatedAt, now), IsNew: IsNew(&e.Booking, now)}
}

// Feed is a bounded, head-first log of notifications.
type Feed struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

func New(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{capacity: capacity}
}

// Append inserts each event at the head in order, then trims to capacity.
// Deletions are not shown to staff and are skipped.
func (f *Feed) Append(events ...event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range events {
		if ev.Kind == event.KindDeleted {
			continue
		}
		e := present(ev)
		f.entries = append([]Entry{e}, f.entries...)
	}
	if len(f.entries) > f.capacity {
		f.entries = f.entries[:f.capacity]
	}
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Entries returns a copy, newest first.
func (f *Feed) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Entry(nil), f.entries...)
}

func (f *Feed) Find(id string) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func EntryID(ev event.Event) string {
	name := ev.BookingID + "|" + string(ev.Kind) + "|" + strconv.FormatInt(ev.At.UnixNano(), 10)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func present(ev event.Event) Entry {
	b := ev.Booking
	customer := orDefault(b.Customer().Name, "Customer")
	service := orDefault(b.DisplayService(), "service")

	e := Entry{
		ID:        EntryID(ev),
		Kind:      ev.Kind,
		BookingID: ev.BookingID,
		From:      ev.From,
		To:        ev.To,
		At:        ev.At,
		Color:     StatusColor(b.Status),
		Booking:   b,
	}
	switch ev.Kind {
	case event.KindNew:
		e.Title = "New Appointment!"
		e.Message = fmt.Sprintf("%s booked %s with %s", customer, service, orDefault(b.EmployeeName(), "barber"))
	case event.KindStatusChanged:
		e.Title = "Status Changed"
		e.Message = fmt.Sprintf("%s's %s is now %s", customer, service, ev.To.Label())
	}
	return e
}

// StatusColor is the notification colour category for a status.
func StatusColor(s booking.Status) string {
	switch s {
	case booking.StatusPending:
		return "yellow"
	case booking.StatusConfirmed:
		return "green"
	case booking.StatusCompleted:
		return "blue"
	case booking.StatusCancelled:
		return "red"
	}
	return "gray"
}

// RelativeAge renders "Just now", "{m}m ago", "{h}h ago" or "{d}d ago".
func RelativeAge(t, now time.Time) string {
	d := now.Sub(t)
	mins := int(d / time.Minute)
	hours := int(d / time.Hour)
	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return fmt.Sprintf("%dm ago", mins)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}

const (
	newByCreation = 24 * time.Hour
	newByUpdate   = 6 * time.Hour
)

// IsNew is the unread rule: created within 24h or updated within 6h.
func IsNew(b *booking.Booking, now time.Time) bool {
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = b.CreatedAt
	}
	return now.Sub(b.CreatedAt) < newByCreation || now.Sub(updated) < newByUpdate
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
