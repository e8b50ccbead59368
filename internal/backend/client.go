package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"calendar-console/internal/booking"
	"calendar-console/internal/kv"
)

const DefaultBaseURL = "http://localhost:5000/api"

var ErrNoToken = errors.New("no staff token stored")

type Config struct {
	BaseURL string
	// Timeout of zero keeps the transport default.
	Timeout time.Duration
	// Transport is the innermost round tripper; defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client is the typed surface of the booking API used by the console.
type Client struct {
	baseURL string
	http    *http.Client
}

// StoredToken reads the bearer token from key-value storage on every request
// so a fresh login is picked up without restarting.
type StoredToken struct {
	KV kv.Store
}

func (s StoredToken) Token() (*oauth2.Token, error) {
	v, err := s.KV.Get(context.Background(), kv.KeyToken)
	if errors.Is(err, kv.ErrNotFound) || (err == nil && v == "") {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return &oauth2.Token{AccessToken: v, TokenType: "Bearer"}, nil
}

func New(cfg Config, tokens oauth2.TokenSource) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: tokens,
				Base:   otelhttp.NewTransport(base),
			},
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ListBookingsWithGuests returns registered and guest bookings in one list.
func (c *Client) ListBookingsWithGuests(ctx context.Context) ([]booking.Booking, error) {
	var out []booking.Booking
	if err := c.do(ctx, http.MethodGet, "/admin/bookings/all-with-guests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BookingPatch is the editable part of an appointment.
type BookingPatch struct {
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time" validate:"required"`
	EmployeeID string `json:"barber" validate:"required"`
	ServiceID  string `json:"service" validate:"required"`
	Notes      string `json:"notes"`
}

func (c *Client) UpdateBooking(ctx context.Context, id string, patch BookingPatch) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, http.MethodPut, "/bookings/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status booking.Status) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, http.MethodPatch, "/bookings/"+url.PathEscape(id), map[string]booking.Status{"status": status}, &out)
	return out, err
}

func (c *Client) AddComment(ctx context.Context, id, text string) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, http.MethodPost, "/bookings/"+url.PathEscape(id)+"/comments", map[string]string{"text": text}, &out)
	return out, err
}

type ChargeResult struct {
	Success bool    `json:"success"`
	Amount  float64 `json:"amount"`
	Message string  `json:"message,omitempty"`
}

func (c *Client) ChargePayment(ctx context.Context, id string) (ChargeResult, error) {
	var out ChargeResult
	err := c.do(ctx, http.MethodPost, "/admin/bookings/"+url.PathEscape(id)+"/charge-payment", struct{}{}, &out)
	return out, err
}

// BookingPayload creates a booking for a known customer, as used by repeats.
type BookingPayload struct {
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail"`
	CustomerPhone string            `json:"customerPhone"`
	ServiceID     string            `json:"service"`
	EmployeeID    string            `json:"barber"`
	Date          string            `json:"date"`
	Time          string            `json:"time"`
	Notes         string            `json:"notes,omitempty"`
	Location      *booking.Location `json:"location,omitempty"`
	Source        string            `json:"source"`
}

func (c *Client) CreateBooking(ctx context.Context, p BookingPayload) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, http.MethodPost, "/bookings", p, &out)
	return out, err
}

type ServiceLine struct {
	ServiceID string `json:"serviceId"`
}

// GuestBookingPayload creates a walk-in booking with inline contact details.
type GuestBookingPayload struct {
	Customer   booking.Contact `json:"customerInfo"`
	Date       string          `json:"date"`
	Time       string          `json:"time"`
	EmployeeID string          `json:"barber"`
	Services   []ServiceLine   `json:"services"`
	Notes      string          `json:"notes,omitempty"`
	Source     string          `json:"source"`
}

func (c *Client) CreateGuestBooking(ctx context.Context, p GuestBookingPayload) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, http.MethodPost, "/guest-bookings", p, &out)
	return out, err
}

func (c *Client) ListEmployees(ctx context.Context) ([]booking.Employee, error) {
	var out []booking.Employee
	if err := c.do(ctx, http.MethodGet, "/barbers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListServices(ctx context.Context) ([]booking.Service, error) {
	var out []booking.Service
	if err := c.do(ctx, http.MethodGet, "/services", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCustomerByID(ctx context.Context, id string) (booking.CustomerDetail, error) {
	var out booking.CustomerDetail
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) GetCustomerByEmail(ctx context.Context, email string) (booking.CustomerDetail, error) {
	var out booking.CustomerDetail
	err := c.do(ctx, http.MethodGet, "/customers/by-email/"+url.PathEscape(email), nil, &out)
	return out, err
}

// CustomerUpdate is the editable customer profile.
type CustomerUpdate struct {
	Name               string `json:"name" validate:"required"`
	Phone              string `json:"phone"`
	Email              string `json:"email" validate:"omitempty,email"`
	MarketingConsent   bool   `json:"marketingConsent"`
	PrepaymentRequired bool   `json:"prepaymentRequired"`
	Gender             string `json:"gender,omitempty"`
	BirthMonth         string `json:"birthMonth,omitempty"`
	BirthDay           string `json:"birthDay,omitempty"`
	BirthYear          string `json:"birthYear,omitempty"`
	Note               string `json:"note,omitempty"`
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, u CustomerUpdate) error {
	return c.do(ctx, http.MethodPut, "/customers/"+url.PathEscape(id), u, nil)
}
