package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calendar-console/internal/booking"
	"calendar-console/internal/kv"
)

var base32hex = regexp.MustCompile(`^[a-v0-9]{5,1000}[a-v0-9]{0,24}$`)

func testDay(t *testing.T) booking.Day {
	t.Helper()
	d, err := booking.ParseDay("2024-05-01")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return d
}

func TestEventID_StableAndValid(t *testing.T) {
	a := EventID("665f1c")
	if a != EventID("665f1c") || a == EventID("665f1d") {
		t.Fatalf("event id must be stable per booking")
	}
	if !base32hex.MatchString(a) {
		t.Fatalf("event id %q is not base32hex", a)
	}
}

func TestToEvent(t *testing.T) {
	b := &booking.Booking{
		ID:       "a",
		Date:     testDay(t),
		Time:     "10:30 PM",
		Service:  &booking.ServiceRef{Name: "Shave"},
		Guest:    &booking.Contact{Name: "Gus", Phone: "555"},
		Status:   booking.StatusCancelled,
		Notes:    "first visit",
		Location: &booking.Location{ID: "l1", Name: "Main", Address: "1 High St"},
	}
	ev, ok := ToEvent(b, time.UTC)
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.Start.DateTime != "2024-05-01T22:30:00Z" || ev.End.DateTime != "2024-05-01T23:15:00Z" {
		t.Fatalf("unexpected times %s %s", ev.Start.DateTime, ev.End.DateTime)
	}
	if ev.Summary != "Gus - Shave" || ev.Status != "cancelled" || ev.Location != "Main 1 High St" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !strings.Contains(ev.Description, "Status: Cancelled") || !strings.Contains(ev.Description, "first visit") {
		t.Fatalf("unexpected description %q", ev.Description)
	}

	b.Time = "noon"
	if _, ok := ToEvent(b, time.UTC); ok {
		t.Fatalf("invalid time must not map")
	}
}

func TestExport_InsertsThenUpdatesOnConflict(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer g-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var ev calendar.Event
		_ = json.Unmarshal(body, &ev)
		if r.Method == http.MethodPost && ev.Id == EventID("dup") {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"error":{"code":409,"message":"The requested identifier already exists."}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := kv.NewMemory()
	ctx := context.Background()
	_ = store.Set(ctx, KeyToken, `{"access_token":"g-access","token_type":"Bearer"}`)

	e := New(Config{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}, store)
	e.loc = time.UTC
	e.newService = func(ctx context.Context, client *http.Client) (*calendar.Service, error) {
		return calendar.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(srv.URL+"/"))
	}

	day := testDay(t)
	emp := &booking.EmployeeRef{ID: "E"}
	bookings := []booking.Booking{
		{ID: "new", Date: day, Time: "09:00", Employee: emp},
		{ID: "dup", Date: day, Time: "10:00", Employee: emp},
		{ID: "bad", Date: day, Time: "??", Employee: emp},
		{ID: "other", Date: day, Time: "11:00", Employee: &booking.EmployeeRef{ID: "F"}},
		{ID: "tomorrow", Date: day.AddDays(1), Time: "11:00", Employee: emp},
	}
	res, err := e.Export(ctx, "", day, "E", bookings)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v (requests %v)", res, paths)
	}
	want := "PUT /calendars/primary/events/" + EventID("dup")
	if len(paths) != 3 || paths[2] != want {
		t.Fatalf("unexpected requests %v", paths)
	}
}

func TestExport_StoresRefreshedToken(t *testing.T) {
	var refreshes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			refreshes++
			_ = r.ParseForm()
			if r.Form.Get("refresh_token") != "r1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"g-fresh","token_type":"Bearer","expires_in":3600,"refresh_token":"r2"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer g-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := kv.NewMemory()
	ctx := context.Background()
	_ = store.Set(ctx, KeyToken, `{"access_token":"g-old","token_type":"Bearer","refresh_token":"r1","expiry":"2020-01-01T00:00:00Z"}`)

	e := New(Config{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}, store)
	e.oauth.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	e.loc = time.UTC
	e.newService = func(ctx context.Context, client *http.Client) (*calendar.Service, error) {
		return calendar.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(srv.URL+"/"))
	}

	day := testDay(t)
	bookings := []booking.Booking{{ID: "a", Date: day, Time: "09:00", Employee: &booking.EmployeeRef{ID: "E"}}}
	for i := 0; i < 2; i++ {
		res, err := e.Export(ctx, "", day, "E", bookings)
		if err != nil || res.Created != 1 {
			t.Fatalf("export %d: %+v %v", i, res, err)
		}
	}
	if refreshes != 1 {
		t.Fatalf("expected one token refresh across exports, got %d", refreshes)
	}

	raw, err := store.Get(ctx, KeyToken)
	if err != nil {
		t.Fatalf("read token: %v", err)
	}
	var saved oauth2.Token
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if saved.AccessToken != "g-fresh" || saved.RefreshToken != "r2" || !saved.Valid() {
		t.Fatalf("refreshed token not stored: %+v", saved)
	}
}

func TestExport_RequiresConfigAndToken(t *testing.T) {
	ctx := context.Background()
	if _, err := New(Config{}, kv.NewMemory()).Export(ctx, "", booking.Day{}, "E", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	e := New(Config{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}, kv.NewMemory())
	if _, err := e.Export(ctx, "", booking.Day{}, "E", nil); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}

func TestAuthURL_StateCheckedOnCallback(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	e := New(Config{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}, store)
	url, state, err := e.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if !strings.Contains(url, "state="+state) || !strings.Contains(url, "access_type=offline") {
		t.Fatalf("unexpected url %s", url)
	}
	if err := e.Complete(ctx, "code", "forged"); !errors.Is(err, ErrState) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
}
