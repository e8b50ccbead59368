package app

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"calendar-console/internal/backend"
	"calendar-console/internal/booking"
	"calendar-console/internal/console"
	"calendar-console/internal/feed"
	"calendar-console/internal/grid"
	"calendar-console/internal/store"
	"calendar-console/internal/syncer"
)

// fail answers err with the status matching its kind.
func (a *App) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var be *backend.Error
	switch {
	case errors.Is(err, console.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, console.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, console.ErrUnavailable):
		status = http.StatusConflict
	case errors.Is(err, console.ErrDeclined):
		status = http.StatusPaymentRequired
	case errors.Is(err, backend.ErrNoToken):
		status = http.StatusUnauthorized
	case errors.As(err, &be):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// GET /api/calendar?date=YYYY-MM-DD&location=
// A pending notification intent wins over the date parameter and is consumed.
func (a *App) CalendarHandler(c *gin.Context) {
	if raw := c.Query("date"); raw != "" {
		d, err := booking.ParseDay(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		a.Console.PickDate(d)
	}
	a.Console.ApplyIntent()

	roster, err := a.employees(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}

	day := a.Console.SelectedDate()
	view := CalendarView{Date: day, Employees: employeeViews(roster)}
	a.Calendar.Read(func(v syncer.View) {
		if loc, ok := c.GetQuery("location"); ok {
			v.Store.SetFilter(loc)
		}
		layout := grid.Build(grid.Input{
			Day:       day,
			Employees: roster,
			Bookings:  v.Store.Filtered(),
			NowHour:   a.now().Hour(),
		})
		view.Location = v.Store.Filter()
		view.Locations = orEmpty(v.Locations)
		view.Rows = layout.Rows()
		view.CurrentHour = layout.NowHour
		view.Bookings = orEmpty(v.Store.ForDate(day))
		view.Unassigned = orEmpty(layout.Unassigned)
		view.Unplaced = orEmpty(layout.Unplaced)
		view.Hidden = orEmpty(layout.Hidden)
		view.Synced = v.Primed
	})
	view.Pane = a.Console.Pane()
	if h, ok := a.Console.TakeScroll(); ok {
		view.ScrollToHour = &h
	}
	c.JSON(http.StatusOK, view)
}

// GET /api/calendar/month?date=
func (a *App) MonthHandler(c *gin.Context) {
	day := a.Console.SelectedDate()
	if raw := c.Query("date"); raw != "" {
		d, err := booking.ParseDay(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		day = d
	}
	view := MonthView{Year: day.Year, Month: int(day.Month)}
	a.Calendar.Read(func(v syncer.View) {
		view.Counts = v.Store.CountByDay(day.Year, int(day.Month))
	})
	c.JSON(http.StatusOK, view)
}

// POST /api/calendar/:nav where nav is previous, next or today.
func (a *App) NavigateHandler(c *gin.Context) {
	var d booking.Day
	switch c.Param("nav") {
	case "previous":
		d = a.Console.PreviousDay()
	case "next":
		d = a.Console.NextDay()
	case "today":
		d = a.Console.Today()
	default:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown navigation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": d})
}

func (a *App) LocationsHandler(c *gin.Context) {
	var locs []booking.Location
	var current string
	a.Calendar.Read(func(v syncer.View) {
		locs = orEmpty(v.Locations)
		current = v.Store.Filter()
	})
	c.JSON(http.StatusOK, gin.H{"locations": locs, "selected": current, "all": store.AllLocations})
}

func (a *App) EmployeesHandler(c *gin.Context) {
	roster, err := a.employees(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, employeeViews(roster))
}

func (a *App) ServicesHandler(c *gin.Context) {
	list, err := a.Catalog.ListServices(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(list))
}

// GET /api/notifications
func (a *App) FeedHandler(c *gin.Context) {
	now := a.now()
	var views []feed.View
	a.Calendar.Read(func(v syncer.View) {
		for _, e := range v.Feed.Entries() {
			views = append(views, e.View(now))
		}
	})
	c.JSON(http.StatusOK, gin.H{"notifications": orEmpty(views)})
}

// GET /api/notifications/bell
func (a *App) BellHandler(c *gin.Context) {
	var bell feed.Bell
	a.Bell.Read(func(v syncer.View) {
		bell = feed.Derive(v.Store.All(), a.now())
	})
	c.JSON(http.StatusOK, bell)
}

type openNotificationRequest struct {
	BookingID string `json:"bookingId"`
	EntryID   string `json:"entryId"`
}

// POST /api/notifications/open
// Leaves a read-once intent for the calendar and answers where to navigate.
func (a *App) OpenNotificationHandler(c *gin.Context) {
	var req openNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var (
		b     booking.Booking
		found bool
	)
	a.Calendar.Read(func(v syncer.View) {
		if req.EntryID != "" {
			if e, ok := v.Feed.Find(req.EntryID); ok {
				b, found = e.Booking, true
				return
			}
		}
		if req.BookingID != "" {
			b, found = v.Store.Find(req.BookingID)
		}
	})
	if !found && req.BookingID != "" {
		a.Bell.Read(func(v syncer.View) {
			b, found = v.Store.Find(req.BookingID)
		})
	}
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		return
	}

	a.Console.Intents.Put(console.Intent{SelectedBooking: b, ScrollToBooking: true})
	c.JSON(http.StatusOK, gin.H{"redirect": "/admin/calendar", "bookingId": b.ID})
}

type paneRequest struct {
	BookingID string `json:"bookingId"`
	Date      string `json:"date"`
	Hour      *int   `json:"hour"`
}

// POST /api/pane/:state
// Moves the detail pane. "close" and "back" leave the current state.
func (a *App) PaneHandler(c *gin.Context) {
	var req paneRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	switch raw := c.Param("state"); raw {
	case "close", string(console.StateClosed):
		c.JSON(http.StatusOK, a.Console.Close())
		return
	case "back":
		c.JSON(http.StatusOK, a.Console.Back())
		return
	}

	state, ok := console.ParseState(c.Param("state"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown pane state"})
		return
	}
	switch state {
	case console.StateDetail:
		pane, err := a.Console.OpenDetail(req.BookingID)
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, pane)
	case console.StateCreateAppointment:
		var day booking.Day
		if req.Date != "" {
			d, err := booking.ParseDay(req.Date)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			day = d
		}
		c.JSON(http.StatusOK, a.Console.StartCreate(day, req.Hour))
	case console.StateCustomerInfo:
		id := req.BookingID
		if id == "" {
			id = a.Console.Pane().BookingID
		}
		if _, err := a.Console.ShowCustomer(c.Request.Context(), id); err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, a.Console.Pane())
	default:
		pane, err := a.Console.Enter(state)
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, pane)
	}
}

// POST /api/bookings/:id/open
func (a *App) OpenBookingHandler(c *gin.Context) {
	pane, err := a.Console.OpenDetail(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pane)
}

// PUT /api/bookings/:id
func (a *App) EditBookingHandler(c *gin.Context) {
	var patch backend.BookingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := a.Console.EditAppointment(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Appointment updated successfully!", "booking": b})
}

// PATCH /api/bookings/:id
func (a *App) SetStatusHandler(c *gin.Context) {
	var req struct {
		Status booking.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := a.Console.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b, "pane": a.Console.Pane()})
}

// POST /api/bookings/:id/comments
func (a *App) AddCommentHandler(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := a.Console.AddComment(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking": b, "pane": a.Console.Pane()})
}

// POST /api/bookings/:id/repeat
func (a *App) RepeatHandler(c *gin.Context) {
	var req console.RepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := a.Console.Repeat(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Repeat booking created for " + b.Date.String(), "booking": b})
}

// POST /api/bookings/:id/charge
func (a *App) ChargeHandler(c *gin.Context) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := a.Console.Charge(c.Request.Context(), c.Param("id"), req.Confirm)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Payment charged successfully! Amount: €" + strconv.FormatFloat(res.Amount, 'f', -1, 64),
		"result":  res,
	})
}

// GET /api/bookings/:id/customer
func (a *App) BookingCustomerHandler(c *gin.Context) {
	detail, err := a.Console.ShowCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// POST /api/appointments
func (a *App) CreateAppointmentHandler(c *gin.Context) {
	var form console.NewAppointment
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := a.Console.CreateAppointment(c.Request.Context(), form)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Appointment created successfully!", "booking": b})
}

// GET /api/customers/:id
func (a *App) CustomerHandler(c *gin.Context) {
	detail, err := a.Console.Customer(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GET /api/customers/by-email/:email
func (a *App) CustomerByEmailHandler(c *gin.Context) {
	detail, err := a.Console.CustomerByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// PUT /api/customers/:id
func (a *App) EditCustomerHandler(c *gin.Context) {
	var upd backend.CustomerUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err.Error())
		return
	}
	detail, err := a.Console.EditCustomer(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Customer updated successfully!", "customer": detail})
}
