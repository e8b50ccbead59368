// Package console holds the staff-facing interaction state of the calendar:
// the selected day, the detail pane and its modals, and the notification
// intent mailbox. Mutations go straight to the booking API; the store is only
// updated by the next synchronizer tick.
package console

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"calendar-console/internal/backend"
	"calendar-console/internal/booking"
)

const (
	SourceManual = "Manual"
	SourceWalkIn = "Walk-in"
)

// Backend is the part of the booking API the controller mutates through.
type Backend interface {
	UpdateBooking(ctx context.Context, id string, patch backend.BookingPatch) (booking.Booking, error)
	UpdateStatus(ctx context.Context, id string, status booking.Status) (booking.Booking, error)
	AddComment(ctx context.Context, id, text string) (booking.Booking, error)
	ChargePayment(ctx context.Context, id string) (backend.ChargeResult, error)
	CreateBooking(ctx context.Context, p backend.BookingPayload) (booking.Booking, error)
	CreateGuestBooking(ctx context.Context, p backend.GuestBookingPayload) (booking.Booking, error)
	GetCustomerByID(ctx context.Context, id string) (booking.CustomerDetail, error)
	GetCustomerByEmail(ctx context.Context, email string) (booking.CustomerDetail, error)
	UpdateCustomer(ctx context.Context, id string, u backend.CustomerUpdate) error
}

// Refresher forces a snapshot fetch after a successful mutation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Bookings interface {
	Find(id string) (booking.Booking, bool)
}

type Config struct {
	Intents *Mailbox
	Now     func() time.Time
}

type Controller struct {
	api       Backend
	bookings  Bookings
	refresher Refresher
	logger    zerolog.Logger
	validate  *validator.Validate
	now       func() time.Time

	Intents *Mailbox

	mu       sync.Mutex
	sess     session
	selected booking.Day
	scroll   *int
}

func New(api Backend, bookings Bookings, refresher Refresher, logger zerolog.Logger, cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Intents == nil {
		cfg.Intents = &Mailbox{}
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Controller{
		api:       api,
		bookings:  bookings,
		refresher: refresher,
		logger:    logger,
		validate:  v,
		now:       cfg.Now,
		Intents:   cfg.Intents,
		sess:      session{pane: Pane{State: StateClosed}},
		selected:  booking.DayOf(cfg.Now()),
	}
}

func (c *Controller) SelectedDate() booking.Day {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Controller) PickDate(d booking.Day) booking.Day {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !d.IsZero() {
		c.selected = d
	}
	return c.selected
}

func (c *Controller) PreviousDay() booking.Day { return c.shiftDay(-1) }
func (c *Controller) NextDay() booking.Day     { return c.shiftDay(1) }

func (c *Controller) Today() booking.Day {
	return c.PickDate(booking.DayOf(c.now()))
}

func (c *Controller) shiftDay(n int) booking.Day {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = c.selected.AddDays(n)
	return c.selected
}

func (c *Controller) Pane() Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot()
}

// TakeScroll returns the hour the grid should bring into view, once.
func (c *Controller) TakeScroll() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scroll == nil {
		return 0, false
	}
	h := *c.scroll
	c.scroll = nil
	return h, true
}

// OpenDetail opens the pane on a booking from the current snapshot.
func (c *Controller) OpenDetail(id string) (Pane, error) {
	b, ok := c.resolve(id)
	if !ok {
		return Pane{}, notFound()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open(b, false)
	return c.sess.snapshot(), nil
}

// ApplyIntent consumes a pending notification intent. A booking that is no
// longer in the snapshot is opened from the intent's own copy.
func (c *Controller) ApplyIntent() (Pane, bool) {
	in, ok := c.Intents.Take()
	if !ok {
		return Pane{}, false
	}
	b := in.SelectedBooking
	if fresh, found := c.bookings.Find(b.ID); found {
		b = fresh
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open(b, in.ScrollToBooking)
	return c.sess.snapshot(), true
}

func (c *Controller) open(b booking.Booking, scroll bool) {
	c.sess.reset()
	c.sess.Go(StateDetail)
	c.sess.pane.BookingID = b.ID
	c.sess.pane.Booking = &b
	if !b.Date.IsZero() {
		c.selected = b.Date
	}
	c.scroll = nil
	if scroll {
		if start, err := b.Start(); err == nil {
			h := start.Hour
			c.scroll = &h
		}
	}
}

// Enter opens a modal over the open booking or customer.
func (c *Controller) Enter(to State) (Pane, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch to {
	case StateClosed:
		c.sess.reset()
		return c.sess.snapshot(), nil
	case StateEditAppointment, StateAddComment, StateRepeat, StateEditCustomer:
	default:
		return c.sess.snapshot(), &ActionError{Alert: fmt.Sprintf("%s cannot be opened directly", to), Err: ErrUnavailable}
	}
	if !c.sess.can(to) {
		return c.sess.snapshot(), &ActionError{
			Alert: fmt.Sprintf("%s is not available from %s", to, c.sess.pane.State),
			Err:   ErrUnavailable,
		}
	}
	c.sess.Go(to)
	return c.sess.snapshot(), nil
}

// Back closes the top-most modal.
func (c *Controller) Back() Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.Back()
	return c.sess.snapshot()
}

func (c *Controller) Close() Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.reset()
	return c.sess.snapshot()
}

// StartCreate opens the create form, prefilled from a grid slot when day or
// hour are given.
func (c *Controller) StartCreate(day booking.Day, hour *int) Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.reset()
	c.sess.Go(StateCreateAppointment)
	c.sess.pane.Day = day
	if day.IsZero() {
		c.sess.pane.Day = c.selected
	}
	if hour != nil && *hour >= 0 && *hour < booking.HoursPerDay {
		h := *hour
		c.sess.pane.Hour = &h
	}
	return c.sess.snapshot()
}

// resolve prefers the copy in the open pane, which may be newer than the
// snapshot after a comment was added.
func (c *Controller) resolve(id string) (booking.Booking, bool) {
	c.mu.Lock()
	if p := c.sess.pane; p.Booking != nil && p.BookingID == id {
		b := *p.Booking
		c.mu.Unlock()
		return b, true
	}
	c.mu.Unlock()
	return c.bookings.Find(id)
}

// closeIfShowing resets the pane when it still shows booking id.
func (c *Controller) closeIfShowing(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.pane.BookingID == id {
		c.sess.reset()
	}
}

func (c *Controller) reconcile(ctx context.Context) {
	if c.refresher == nil {
		return
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("refresh after mutation failed")
	}
}

func (c *Controller) warn(action, id string, err error) {
	c.logger.Warn().Err(err).Str("action", action).Str("booking_id", id).Msg("staff action failed")
}

func (c *Controller) checkSlot(date, clock string) error {
	if _, err := booking.ParseDay(date); err != nil {
		return invalid("Invalid date: " + date)
	}
	if _, err := booking.ParseClock(clock); err != nil {
		return invalid("Invalid time: " + clock)
	}
	return nil
}

// EditAppointment saves date, time, employee, service and notes. The pane
// stays in the edit state when the save fails.
func (c *Controller) EditAppointment(ctx context.Context, id string, patch backend.BookingPatch) (booking.Booking, error) {
	if err := c.validate.Struct(patch); err != nil {
		return booking.Booking{}, formError(err)
	}
	if err := c.checkSlot(patch.Date, patch.Time); err != nil {
		return booking.Booking{}, err
	}
	if _, ok := c.resolve(id); !ok {
		return booking.Booking{}, notFound()
	}
	out, err := c.api.UpdateBooking(ctx, id, patch)
	if err != nil {
		c.warn("edit", id, err)
		return booking.Booking{}, fail("Failed to update appointment", err)
	}
	c.reconcile(ctx)
	c.closeIfShowing(id)
	return out, nil
}

func (c *Controller) SetStatus(ctx context.Context, id string, status booking.Status) (booking.Booking, error) {
	switch status {
	case booking.StatusPending, booking.StatusConfirmed, booking.StatusCompleted, booking.StatusCancelled:
	default:
		return booking.Booking{}, invalid(fmt.Sprintf("Unknown status %q", status))
	}
	if _, ok := c.resolve(id); !ok {
		return booking.Booking{}, notFound()
	}
	out, err := c.api.UpdateStatus(ctx, id, status)
	if err != nil {
		c.warn("status", id, err)
		return booking.Booking{}, fail("Failed to update status", err)
	}
	c.mu.Lock()
	if c.sess.pane.BookingID == id && out.ID == id {
		c.sess.pane.Booking = &out
	}
	c.mu.Unlock()
	c.reconcile(ctx)
	return out, nil
}

// AddComment posts a comment and shows the server's copy of the booking in
// the pane. The detail pane stays open.
func (c *Controller) AddComment(ctx context.Context, id, text string) (booking.Booking, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return booking.Booking{}, invalid("Please enter a comment")
	}
	if _, ok := c.resolve(id); !ok {
		return booking.Booking{}, notFound()
	}
	out, err := c.api.AddComment(ctx, id, text)
	if err != nil {
		c.warn("comment", id, err)
		return booking.Booking{}, fail("Failed to add comment", err)
	}
	c.mu.Lock()
	if c.sess.pane.BookingID == id {
		c.sess.pane.Booking = &out
		if c.sess.pane.State == StateAddComment {
			c.sess.Back()
		}
	}
	c.mu.Unlock()
	c.reconcile(ctx)
	return out, nil
}

// RepeatRequest picks the target day either as a whole number of weeks after
// the original or as an explicit date.
type RepeatRequest struct {
	Weeks int    `json:"weeks" validate:"omitempty,oneof=1 2 4"`
	Date  string `json:"date"`
}

// Repeat books the same customer, time, employee, service and location on a
// later day.
func (c *Controller) Repeat(ctx context.Context, id string, req RepeatRequest) (booking.Booking, error) {
	if err := c.validate.Struct(req); err != nil {
		return booking.Booking{}, invalid("Repeat must be 1, 2 or 4 weeks ahead")
	}
	if (req.Weeks == 0) == (req.Date == "") {
		return booking.Booking{}, invalid("Choose either a number of weeks or a date")
	}
	orig, ok := c.resolve(id)
	if !ok {
		return booking.Booking{}, notFound()
	}
	payload, err := repeatPayload(orig, req)
	if err != nil {
		return booking.Booking{}, err
	}
	out, err := c.api.CreateBooking(ctx, payload)
	if err != nil {
		c.warn("repeat", id, err)
		return booking.Booking{}, fail("Failed to create repeat booking", err)
	}
	c.reconcile(ctx)
	c.closeIfShowing(id)
	return out, nil
}

func repeatPayload(orig booking.Booking, req RepeatRequest) (backend.BookingPayload, error) {
	var (
		target booking.Day
		notes  string
	)
	if req.Weeks > 0 {
		if orig.Date.IsZero() {
			return backend.BookingPayload{}, invalid("Original appointment has no date")
		}
		target = orig.Date.AddDays(7 * req.Weeks)
		notes = fmt.Sprintf("Repeat booking - %d week(s) after original", req.Weeks)
	} else {
		d, err := booking.ParseDay(req.Date)
		if err != nil {
			return backend.BookingPayload{}, invalid("Invalid date: " + req.Date)
		}
		target = d
		notes = "Repeat booking"
	}
	if orig.Time == "" || orig.ServiceID() == "" {
		return backend.BookingPayload{}, invalid("Please fill in date, time, and service")
	}
	cust := orig.Customer()
	return backend.BookingPayload{
		CustomerName:  cust.Name,
		CustomerEmail: cust.Email,
		CustomerPhone: cust.Phone,
		ServiceID:     orig.ServiceID(),
		EmployeeID:    orig.EmployeeID(),
		Date:          target.String(),
		Time:          orig.Time,
		Notes:         notes,
		Location:      orig.Location,
		Source:        SourceManual,
	}, nil
}

// Charge charges the stored card. It requires explicit confirmation and is
// only offered for unpaid bookings with a completed card setup.
func (c *Controller) Charge(ctx context.Context, id string, confirmed bool) (backend.ChargeResult, error) {
	b, ok := c.resolve(id)
	if !ok {
		return backend.ChargeResult{}, notFound()
	}
	if !b.CanCharge() {
		return backend.ChargeResult{}, &ActionError{Alert: "Charging is not available for this appointment", Err: ErrUnavailable}
	}
	if !confirmed {
		return backend.ChargeResult{}, invalid("Charge must be confirmed")
	}
	res, err := c.api.ChargePayment(ctx, id)
	if err != nil {
		c.warn("charge", id, err)
		return backend.ChargeResult{}, verbatim(err, "Failed to charge payment")
	}
	if !res.Success {
		c.warn("charge", id, ErrDeclined)
		return res, &ActionError{Alert: "Payment charge failed: " + res.Message, Err: ErrDeclined}
	}
	c.reconcile(ctx)
	c.closeIfShowing(id)
	return res, nil
}

// NewAppointment is the walk-in form. Every field except notes is required.
type NewAppointment struct {
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	CustomerPhone string `json:"customerPhone" validate:"required"`
	Date          string `json:"date" validate:"required"`
	Time          string `json:"time" validate:"required"`
	EmployeeID    string `json:"barber" validate:"required"`
	ServiceID     string `json:"service" validate:"required"`
	Notes         string `json:"notes"`
}

func (c *Controller) CreateAppointment(ctx context.Context, form NewAppointment) (booking.Booking, error) {
	if err := c.validate.Struct(form); err != nil {
		return booking.Booking{}, formError(err)
	}
	if err := c.checkSlot(form.Date, form.Time); err != nil {
		return booking.Booking{}, err
	}
	out, err := c.api.CreateGuestBooking(ctx, backend.GuestBookingPayload{
		Customer: booking.Contact{
			Name:  form.CustomerName,
			Email: form.CustomerEmail,
			Phone: form.CustomerPhone,
		},
		Date:       form.Date,
		Time:       form.Time,
		EmployeeID: form.EmployeeID,
		Services:   []backend.ServiceLine{{ServiceID: form.ServiceID}},
		Notes:      form.Notes,
		Source:     SourceWalkIn,
	})
	if err != nil {
		c.warn("create", "", err)
		return booking.Booking{}, fail("Failed to create appointment", err)
	}
	c.reconcile(ctx)
	c.mu.Lock()
	if c.sess.pane.State == StateCreateAppointment {
		c.sess.reset()
	}
	c.mu.Unlock()
	return out, nil
}

// ShowCustomer loads the customer behind a booking: by account id for
// registered customers, by email for guests.
func (c *Controller) ShowCustomer(ctx context.Context, id string) (booking.CustomerDetail, error) {
	b, ok := c.resolve(id)
	if !ok {
		return booking.CustomerDetail{}, notFound()
	}
	var (
		detail booking.CustomerDetail
		err    error
	)
	switch {
	case !b.IsGuest():
		detail, err = c.api.GetCustomerByID(ctx, b.User.ID)
	case b.Guest != nil && b.Guest.Email != "":
		detail, err = c.api.GetCustomerByEmail(ctx, b.Guest.Email)
	default:
		return booking.CustomerDetail{}, invalid("Customer email not found")
	}
	if err != nil {
		c.warn("customer", id, err)
		return booking.CustomerDetail{}, fail("Failed to load customer details", err)
	}
	c.mu.Lock()
	if c.sess.pane.BookingID == id && c.sess.can(StateCustomerInfo) {
		c.sess.Go(StateCustomerInfo)
		c.sess.pane.Customer = &detail
		c.sess.pane.CustomerID = detail.Customer.ID
	}
	c.mu.Unlock()
	return detail, nil
}

func (c *Controller) Customer(ctx context.Context, customerID string) (booking.CustomerDetail, error) {
	detail, err := c.api.GetCustomerByID(ctx, customerID)
	if err != nil {
		return booking.CustomerDetail{}, fail("Failed to load customer details", err)
	}
	return detail, nil
}

func (c *Controller) CustomerByEmail(ctx context.Context, email string) (booking.CustomerDetail, error) {
	if strings.TrimSpace(email) == "" {
		return booking.CustomerDetail{}, invalid("Customer email not found")
	}
	detail, err := c.api.GetCustomerByEmail(ctx, email)
	if err != nil {
		return booking.CustomerDetail{}, fail("Failed to load customer details", err)
	}
	return detail, nil
}

// EditCustomer saves the profile and reloads it. An open edit modal for the
// same customer returns to the customer view.
func (c *Controller) EditCustomer(ctx context.Context, customerID string, u backend.CustomerUpdate) (booking.CustomerDetail, error) {
	if customerID == "" {
		return booking.CustomerDetail{}, invalid("Customer ID not found")
	}
	if err := c.validate.Struct(u); err != nil {
		return booking.CustomerDetail{}, formError(err)
	}
	if err := c.api.UpdateCustomer(ctx, customerID, u); err != nil {
		c.logger.Warn().Err(err).Str("customer_id", customerID).Msg("customer update failed")
		return booking.CustomerDetail{}, fail("Failed to update customer", err)
	}
	detail, err := c.api.GetCustomerByID(ctx, customerID)
	if err != nil {
		return booking.CustomerDetail{}, fail("Failed to load customer details", err)
	}
	c.mu.Lock()
	if c.sess.pane.CustomerID == customerID {
		c.sess.pane.Customer = &detail
		if c.sess.pane.State == StateEditCustomer {
			c.sess.Back()
		}
	}
	c.mu.Unlock()
	return detail, nil
}
