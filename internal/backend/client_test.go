package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"calendar-console/internal/booking"
	"calendar-console/internal/kv"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded, kv.Store) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.EscapedPath(), auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		calls = append(calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	store := kv.NewMemory()
	_ = store.Set(context.Background(), kv.KeyToken, "staff-token")
	return New(Config{BaseURL: srv.URL + "/api/"}, StoredToken{KV: store}), &calls, store
}

func TestListBookingsWithGuests_SendsBearerToken(t *testing.T) {
	c, calls, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"_id":"a","date":"2024-05-01","time":"10:00","status":"pending","customerInfo":{"name":"G"}}]`)
	})
	got, err := c.ListBookingsWithGuests(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" || !got[0].IsGuest() {
		t.Fatalf("unexpected bookings %+v", got)
	}
	call := (*calls)[0]
	if call.path != "/api/admin/bookings/all-with-guests" || call.auth != "Bearer staff-token" {
		t.Fatalf("unexpected request %+v", call)
	}
}

func TestNon2xx_ReturnsBackendError(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bookings/x":
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"message":"slot already booked"}`)
		case "/api/bookings/y":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid barber"}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})
	ctx := context.Background()

	_, err := c.UpdateBooking(ctx, "x", BookingPatch{Date: "2024-05-01"})
	var be *Error
	if !errors.As(err, &be) || be.Status != http.StatusConflict || be.Message != "slot already booked" {
		t.Fatalf("unexpected error %v", err)
	}
	_, err = c.UpdateBooking(ctx, "y", BookingPatch{})
	if !errors.As(err, &be) || be.Message != "invalid barber" {
		t.Fatalf("unexpected error %v", err)
	}
	_, err = c.ListServices(ctx)
	if !errors.As(err, &be) || be.Status != http.StatusBadGateway || be.Message != "Bad Gateway" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestMissingToken_FailsBeforeSending(t *testing.T) {
	c, calls, store := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	_ = store.Delete(context.Background(), kv.KeyToken)
	if _, err := c.ListEmployees(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("request must not reach the server without a token")
	}
}

func TestMutations_WireShapes(t *testing.T) {
	c, calls, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/admin/bookings/a/charge-payment" {
			_, _ = io.WriteString(w, `{"success":true,"amount":25}`)
			return
		}
		_, _ = io.WriteString(w, `{"_id":"a","comments":[{"text":"hi","createdBy":"desk"}]}`)
	})
	ctx := context.Background()

	b, err := c.AddComment(ctx, "a", "hi")
	if err != nil || len(b.Comments) != 1 || b.Comments[0].Author != "desk" {
		t.Fatalf("add comment: %+v %v", b, err)
	}
	if _, err := c.UpdateStatus(ctx, "a", booking.StatusConfirmed); err != nil {
		t.Fatalf("update status: %v", err)
	}
	res, err := c.ChargePayment(ctx, "a")
	if err != nil || !res.Success || res.Amount != 25 {
		t.Fatalf("charge: %+v %v", res, err)
	}
	_, err = c.CreateGuestBooking(ctx, GuestBookingPayload{
		Customer:   booking.Contact{Name: "G", Email: "g@example.com", Phone: "1"},
		Date:       "2024-05-01",
		Time:       "10:00",
		EmployeeID: "E",
		Services:   []ServiceLine{{ServiceID: "S"}},
		Source:     "Walk-in",
	})
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	if err := c.UpdateCustomer(ctx, "c 1", CustomerUpdate{Name: "N"}); err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if _, err := c.GetCustomerByEmail(ctx, "a+b@example.com"); err != nil {
		t.Fatalf("customer by email: %v", err)
	}

	want := []struct{ method, path string }{
		{http.MethodPost, "/api/bookings/a/comments"},
		{http.MethodPatch, "/api/bookings/a"},
		{http.MethodPost, "/api/admin/bookings/a/charge-payment"},
		{http.MethodPost, "/api/guest-bookings"},
		{http.MethodPut, "/api/customers/c%201"},
		{http.MethodGet, "/api/customers/by-email/a+b@example.com"},
	}
	for i, w := range want {
		if (*calls)[i].method != w.method || (*calls)[i].path != w.path {
			t.Fatalf("call %d: expected %s %s, got %s %s", i, w.method, w.path, (*calls)[i].method, (*calls)[i].path)
		}
	}
	if (*calls)[0].body["text"] != "hi" || (*calls)[1].body["status"] != "confirmed" {
		t.Fatalf("unexpected bodies %+v %+v", (*calls)[0].body, (*calls)[1].body)
	}
	guest := (*calls)[3].body
	if guest["source"] != "Walk-in" || guest["barber"] != "E" {
		t.Fatalf("unexpected guest body %+v", guest)
	}
	if info, _ := guest["customerInfo"].(map[string]any); info["email"] != "g@example.com" {
		t.Fatalf("unexpected customerInfo %+v", guest["customerInfo"])
	}
}
