package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"calendar-console/internal/backend"
	"calendar-console/internal/booking"
	"calendar-console/internal/console"
	"calendar-console/internal/feed"
	"calendar-console/internal/gcal"
	"calendar-console/internal/kv"
	"calendar-console/internal/store"
	"calendar-console/internal/syncer"
)

const testSecret = "test-secret"

type snapshot struct{ bookings []booking.Booking }

func (s *snapshot) ListBookingsWithGuests(context.Context) ([]booking.Booking, error) {
	return s.bookings, nil
}

type fakeAPI struct {
	updErr error
}

func (f *fakeAPI) UpdateBooking(_ context.Context, id string, p backend.BookingPatch) (booking.Booking, error) {
	if f.updErr != nil {
		return booking.Booking{}, f.updErr
	}
	return booking.Booking{ID: id}, nil
}
func (f *fakeAPI) UpdateStatus(_ context.Context, id string, s booking.Status) (booking.Booking, error) {
	return booking.Booking{ID: id, Status: s}, nil
}
func (f *fakeAPI) AddComment(_ context.Context, id, text string) (booking.Booking, error) {
	return booking.Booking{ID: id, Comments: []booking.Comment{{Text: text}}}, nil
}
func (f *fakeAPI) ChargePayment(context.Context, string) (backend.ChargeResult, error) {
	return backend.ChargeResult{Success: true, Amount: 25}, nil
}
func (f *fakeAPI) CreateBooking(context.Context, backend.BookingPayload) (booking.Booking, error) {
	return booking.Booking{ID: "repeat"}, nil
}
func (f *fakeAPI) CreateGuestBooking(context.Context, backend.GuestBookingPayload) (booking.Booking, error) {
	return booking.Booking{ID: "walkin"}, nil
}
func (f *fakeAPI) GetCustomerByID(context.Context, string) (booking.CustomerDetail, error) {
	return booking.CustomerDetail{}, nil
}
func (f *fakeAPI) GetCustomerByEmail(context.Context, string) (booking.CustomerDetail, error) {
	return booking.CustomerDetail{}, nil
}
func (f *fakeAPI) UpdateCustomer(context.Context, string, backend.CustomerUpdate) error { return nil }
func (f *fakeAPI) ListEmployees(context.Context) ([]booking.Employee, error) {
	return []booking.Employee{{ID: "E", Name: "eddie"}, {ID: "F", Name: "Fay"}}, nil
}
func (f *fakeAPI) ListServices(context.Context) ([]booking.Service, error) {
	return []booking.Service{{ID: "S", Name: "Haircut", Duration: 30}}, nil
}

type fixture struct {
	router *gin.Engine
	api    *fakeAPI
	snap   *snapshot
	app    *App
}

func newFixture(t *testing.T, bookings ...booking.Booking) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := func() time.Time { return time.Date(2024, 5, 1, 10, 15, 0, 0, time.Local) }
	snap := &snapshot{bookings: bookings}
	api := &fakeAPI{}
	logger := zerolog.Nop()

	calStore := store.New()
	cal := syncer.New(snap, calStore, logger, syncer.Config{Feed: feed.New(feed.DefaultCapacity), Now: now})
	bell := syncer.New(snap, store.New(), logger, syncer.Config{Interval: syncer.BellInterval, Now: now})
	ctx := context.Background()
	if err := cal.Refresh(ctx); err != nil {
		t.Fatalf("prime calendar: %v", err)
	}
	if err := bell.Refresh(ctx); err != nil {
		t.Fatalf("prime bell: %v", err)
	}

	kvs := kv.NewMemory()
	a := &App{
		Calendar: cal,
		Bell:     bell,
		Console:  console.New(api, calStore, cal, logger, console.Config{Now: now}),
		Catalog:  api,
		KV:       kvs,
		Google:   gcal.New(gcal.Config{}, kvs),
		Logger:   logger,
		Now:      now,
	}
	router := gin.New()
	a.Routes(router, AuthConfig{
		JWTSecret:    testSecret,
		StaticTokens: []string{"static-token"},
		Roles:        []string{"owner", "admin", "receptionist"},
	})
	return &fixture{router: router, api: api, snap: snap, app: a}
}

func signed(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"sub":  "staff-1",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, "Bearer static-token", method, path, body)
}

func (f *fixture) doAs(t *testing.T, auth, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		rdr = bytes.NewReader(buf)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func mustDay(t *testing.T, s string) booking.Day {
	t.Helper()
	d, err := booking.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return d
}

func sample(t *testing.T) []booking.Booking {
	day := mustDay(t, "2024-05-01")
	return []booking.Booking{
		{
			ID: "a", Date: day, Time: "10:30", DurationMinutes: 90,
			Employee: &booking.EmployeeRef{ID: "E", Name: "eddie"},
			Guest:    &booking.Contact{Name: "Gus", Email: "gus@example.com"},
			Status:   booking.StatusConfirmed,
			Location: &booking.Location{ID: "l1", Name: "Main"},
		},
		{
			ID: "b", Date: mustDay(t, "2024-05-08"), Time: "3:00 PM",
			Employee: &booking.EmployeeRef{ID: "F"},
			User:     &booking.UserRef{ID: "u1", Name: "Ann"},
			Service:  &booking.ServiceRef{ID: "S", Name: "Haircut"},
			Status:   booking.StatusPending,
			Location: &booking.Location{ID: "l2", Name: "Annex"},
		},
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t)
	if w := f.doAs(t, "", http.MethodGet, "/api/locations", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := f.doAs(t, "Bearer nope", http.MethodGet, "/api/locations", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", w.Code)
	}
	if w := f.doAs(t, "Bearer "+signed(t, "customer"), http.MethodGet, "/api/locations", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}
	if w := f.doAs(t, "Bearer "+signed(t, "receptionist"), http.MethodGet, "/api/locations", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for receptionist, got %d", w.Code)
	}
	if w := f.doAs(t, "", http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", w.Code)
	}
}

func TestCalendarView_PlacesGrid(t *testing.T) {
	f := newFixture(t, sample(t)...)
	w := f.do(t, http.MethodGet, "/api/calendar?date=2024-05-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("calendar: %d %s", w.Code, w.Body.String())
	}
	var view struct {
		Date        string `json:"date"`
		CurrentHour int    `json:"currentHour"`
		Employees   []EmployeeView
		Rows        []struct {
			Hour    int  `json:"hour"`
			Current bool `json:"current"`
			Cells   []struct {
				Kind      string `json:"kind"`
				SpanCells int    `json:"spanCells"`
			} `json:"cells"`
		} `json:"rows"`
		Bookings  []booking.Booking  `json:"bookings"`
		Locations []booking.Location `json:"locations"`
		Synced    bool               `json:"synced"`
	}
	decode(t, w, &view)
	if view.Date != "2024-05-01" || !view.Synced || view.CurrentHour != 10 {
		t.Fatalf("unexpected header %+v", view)
	}
	if len(view.Rows) != 24 || len(view.Employees) != 2 || view.Employees[0].Initial != "E" {
		t.Fatalf("unexpected grid shape: %d rows, employees %+v", len(view.Rows), view.Employees)
	}
	if c := view.Rows[10].Cells[0]; c.Kind != "start" || c.SpanCells != 2 {
		t.Fatalf("hour 10: %+v", c)
	}
	if view.Rows[11].Cells[0].Kind != "covered" || view.Rows[12].Cells[0].Kind != "empty" {
		t.Fatalf("hours 11/12: %+v %+v", view.Rows[11].Cells[0], view.Rows[12].Cells[0])
	}
	if !view.Rows[10].Current || view.Rows[9].Current {
		t.Fatalf("current hour not flagged")
	}
	if len(view.Bookings) != 1 || len(view.Locations) != 2 || view.Locations[0].ID != "l1" {
		t.Fatalf("unexpected lists %+v %+v", view.Bookings, view.Locations)
	}

	w = f.do(t, http.MethodGet, "/api/calendar?date=2024-05-01&location=l2", nil)
	decode(t, w, &view)
	if len(view.Bookings) != 0 {
		t.Fatalf("location filter not applied: %+v", view.Bookings)
	}
}

func TestNotificationIntent_ConsumedOnce(t *testing.T) {
	f := newFixture(t, sample(t)...)

	w := f.do(t, http.MethodPost, "/api/notifications/open", gin.H{"bookingId": "b"})
	if w.Code != http.StatusOK {
		t.Fatalf("open notification: %d %s", w.Code, w.Body.String())
	}

	type calendarView struct {
		Date         string       `json:"date"`
		Pane         console.Pane `json:"pane"`
		ScrollToHour *int         `json:"scrollToHour"`
	}
	var view calendarView
	decode(t, f.do(t, http.MethodGet, "/api/calendar", nil), &view)
	if view.Date != "2024-05-08" {
		t.Fatalf("expected selected date of booking, got %s", view.Date)
	}
	if view.Pane.State != console.StateDetail || view.Pane.BookingID != "b" {
		t.Fatalf("unexpected pane %+v", view.Pane)
	}
	if view.ScrollToHour == nil || *view.ScrollToHour != 15 {
		t.Fatalf("expected scroll to hour 15, got %v", view.ScrollToHour)
	}

	if w := f.do(t, http.MethodPost, "/api/pane/close", nil); w.Code != http.StatusOK {
		t.Fatalf("close pane: %d", w.Code)
	}
	view = calendarView{}
	decode(t, f.do(t, http.MethodGet, "/api/calendar", nil), &view)
	if view.Pane.State != console.StateClosed || view.ScrollToHour != nil {
		t.Fatalf("intent replayed: %+v", view)
	}
}

func TestFeedAndBell(t *testing.T) {
	bs := sample(t)
	for i := range bs {
		bs[i].CreatedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
		bs[i].UpdatedAt = bs[i].CreatedAt
	}
	f := newFixture(t, bs[0])

	f.snap.bookings = bs
	if err := f.app.Calendar.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := f.app.Bell.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh bell: %v", err)
	}

	var fd struct {
		Notifications []feed.View `json:"notifications"`
	}
	decode(t, f.do(t, http.MethodGet, "/api/notifications", nil), &fd)
	if len(fd.Notifications) != 1 || fd.Notifications[0].BookingID != "b" || fd.Notifications[0].Title != "New Appointment!" {
		t.Fatalf("unexpected feed %+v", fd.Notifications)
	}

	var bell feed.Bell
	decode(t, f.do(t, http.MethodGet, "/api/notifications/bell", nil), &bell)
	if len(bell.Items) != 2 || bell.Unread != 2 {
		t.Fatalf("unexpected bell %+v", bell)
	}
}

func TestMutationErrors(t *testing.T) {
	f := newFixture(t, sample(t)...)

	if w := f.do(t, http.MethodPost, "/api/bookings/a/charge", gin.H{"confirm": true}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for charge without card, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/bookings/a/comments", gin.H{"text": ""}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty comment, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/bookings/zzz/repeat", gin.H{"weeks": 1}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown booking, got %d", w.Code)
	}

	f.api.updErr = &backend.Error{Status: http.StatusConflict, Message: "slot already booked"}
	w := f.do(t, http.MethodPut, "/api/bookings/a", gin.H{"date": "2024-05-01", "time": "11:00", "barber": "E", "service": "S"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	if body.Error != "Failed to update appointment: slot already booked" {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestPaneTransitions(t *testing.T) {
	f := newFixture(t, sample(t)...)
	var pane console.Pane

	decode(t, f.do(t, http.MethodPost, "/api/bookings/a/open", nil), &pane)
	if pane.State != console.StateDetail {
		t.Fatalf("expected detail, got %s", pane.State)
	}
	decode(t, f.do(t, http.MethodPost, "/api/pane/addComment", nil), &pane)
	if pane.State != console.StateAddComment {
		t.Fatalf("expected addComment, got %s", pane.State)
	}
	if w := f.do(t, http.MethodPost, "/api/pane/repeat", nil); w.Code != http.StatusConflict {
		t.Fatalf("second modal must be refused, got %d", w.Code)
	}

	var resp struct {
		Pane console.Pane `json:"pane"`
	}
	decode(t, f.do(t, http.MethodPost, "/api/bookings/a/comments", gin.H{"text": "hi"}), &resp)
	if resp.Pane.State != console.StateDetail || resp.Pane.Booking == nil || len(resp.Pane.Booking.Comments) != 1 {
		t.Fatalf("unexpected pane after comment %+v", resp.Pane)
	}

	decode(t, f.do(t, http.MethodPost, "/api/pane/createAppointment", gin.H{"date": "2024-05-02", "hour": 9}), &pane)
	if pane.State != console.StateCreateAppointment || pane.Day.String() != "2024-05-02" || pane.Hour == nil || *pane.Hour != 9 {
		t.Fatalf("unexpected create pane %+v", pane)
	}
	if w := f.do(t, http.MethodPost, "/api/pane/bogus", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown state, got %d", w.Code)
	}
}

func TestSession(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPut, "/api/session", gin.H{"token": "t", "user": gin.H{"_id": "c1", "role": "customer"}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("customer session must be refused, got %d", w.Code)
	}
	f.snap.bookings = sample(t)
	w = f.do(t, http.MethodPut, "/api/session", gin.H{"token": "staff", "user": gin.H{"_id": "s1", "role": "owner"}})
	if w.Code != http.StatusOK {
		t.Fatalf("store session: %d %s", w.Code, w.Body.String())
	}
	var bell feed.Bell
	decode(t, f.do(t, http.MethodGet, "/api/notifications/bell", nil), &bell)
	if len(bell.Items) != 2 {
		t.Fatalf("login must refresh the bell, got %d items", len(bell.Items))
	}
	f.app.Calendar.Read(func(v syncer.View) {
		if len(v.Store.All()) != 2 {
			t.Fatalf("login must refresh the calendar, got %d bookings", len(v.Store.All()))
		}
	})
	if tok, _ := f.app.KV.Get(context.Background(), kv.KeyToken); tok != "staff" {
		t.Fatalf("token not stored, got %q", tok)
	}
	if w := f.do(t, http.MethodDelete, "/api/session", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete session: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/session", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected no session, got %d", w.Code)
	}
}

func TestGoogleExport_NotConfigured(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodPost, "/api/calendar/google/export?employee=E", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
