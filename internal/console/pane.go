package console

import "calendar-console/internal/booking"

// State is the detail pane's current mode. Everything other than Closed and
// Detail is a modal layered over the open booking.
type State string

const (
	StateClosed            State = "closed"
	StateDetail            State = "detail"
	StateEditAppointment   State = "editAppointment"
	StateEditCustomer      State = "editCustomer"
	StateCustomerInfo      State = "customerInfo"
	StateAddComment        State = "addComment"
	StateRepeat            State = "repeat"
	StateCreateAppointment State = "createAppointment"
)

// transitions lists the states reachable from each state by a staff action.
// Closing is always allowed and is not listed.
var transitions = map[State][]State{
	StateClosed:       {StateDetail, StateCreateAppointment},
	StateDetail:       {StateDetail, StateEditAppointment, StateAddComment, StateRepeat, StateCustomerInfo},
	StateCustomerInfo: {StateEditCustomer},
}

func ParseState(s string) (State, bool) {
	switch st := State(s); st {
	case StateClosed, StateDetail, StateEditAppointment, StateEditCustomer, StateCustomerInfo,
		StateAddComment, StateRepeat, StateCreateAppointment:
		return st, true
	}
	return "", false
}

func (s State) IsModal() bool {
	return s != StateClosed && s != StateDetail
}

// Pane is a snapshot of the pane as shown to staff.
type Pane struct {
	State      State                   `json:"state"`
	BookingID  string                  `json:"bookingId,omitempty"`
	CustomerID string                  `json:"customerId,omitempty"`
	Booking    *booking.Booking        `json:"booking,omitempty"`
	Customer   *booking.CustomerDetail `json:"customer,omitempty"`
	// Day and Hour prefill the create form when opened from an empty slot.
	Day  booking.Day `json:"day"`
	Hour *int        `json:"hour,omitempty"`
}

// session holds the pane plus the stack of states it came through.
type session struct {
	pane    Pane
	history []State
}

func (s *session) can(to State) bool {
	for _, st := range transitions[s.pane.State] {
		if st == to {
			return true
		}
	}
	return false
}

func (s *session) Go(to State) {
	if to == StateDetail && s.pane.State == StateDetail {
		return
	}
	s.history = append(s.history, s.pane.State)
	s.pane.State = to
}

// Back leaves the current modal. Leaving customer info drops the loaded
// customer record.
func (s *session) Back() {
	if s.pane.State == StateCustomerInfo {
		s.pane.Customer = nil
		s.pane.CustomerID = ""
	}
	if n := len(s.history); n > 0 {
		s.pane.State = s.history[n-1]
		s.history = s.history[:n-1]
	} else {
		s.pane.State = StateClosed
	}
	if s.pane.State == StateClosed {
		s.reset()
	}
}

func (s *session) reset() {
	s.pane = Pane{State: StateClosed}
	s.history = s.history[:0]
}

func (s *session) snapshot() Pane {
	p := s.pane
	if p.Booking != nil {
		b := *p.Booking
		p.Booking = &b
	}
	if p.Customer != nil {
		c := *p.Customer
		p.Customer = &c
	}
	if p.Hour != nil {
		h := *p.Hour
		p.Hour = &h
	}
	return p
}
