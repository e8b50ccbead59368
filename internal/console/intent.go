package console

import (
	"sync"

	"calendar-console/internal/booking"
)

// Intent is attached when staff jump from a notification to the calendar.
type Intent struct {
	SelectedBooking booking.Booking `json:"selectedBooking"`
	ScrollToBooking bool            `json:"scrollToBooking"`
}

// Mailbox holds at most one intent. Take clears it, so a re-render never
// replays the same navigation.
type Mailbox struct {
	mu      sync.Mutex
	pending *Intent
}

func (m *Mailbox) Put(in Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &in
}

func (m *Mailbox) Take() (Intent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Intent{}, false
	}
	in := *m.pending
	m.pending = nil
	return in, true
}
