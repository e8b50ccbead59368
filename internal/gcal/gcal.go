// Package gcal mirrors an employee's day of appointments into a Google
// calendar. Event ids are derived from booking ids so exporting the same day
// twice updates instead of duplicating.
package gcal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calendar-console/internal/booking"
	"calendar-console/internal/kv"
)

const (
	KeyToken = "google_token"
	KeyState = "google_oauth_state"
)

var (
	ErrNotConfigured = errors.New("google calendar not configured")
	ErrNotAuthorized = errors.New("google calendar not authorized")
	ErrState         = errors.New("oauth state mismatch")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Exporter owns the OAuth flow and the calendar writes. A nil oauth config
// means the integration is off.
type Exporter struct {
	oauth *oauth2.Config
	kv    kv.Store
	loc   *time.Location
	// newService is swapped in tests.
	newService func(ctx context.Context, client *http.Client) (*calendar.Service, error)
}

func New(cfg Config, store kv.Store) *Exporter {
	e := &Exporter{
		kv:  store,
		loc: time.Local,
		newService: func(ctx context.Context, client *http.Client) (*calendar.Service, error) {
			return calendar.NewService(ctx, option.WithHTTPClient(client))
		},
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RedirectURL != "" {
		e.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}
	}
	return e
}

func (e *Exporter) Configured() bool { return e.oauth != nil }

// AuthURL starts the consent flow and remembers the state for the callback.
func (e *Exporter) AuthURL(ctx context.Context) (url, state string, err error) {
	if e.oauth == nil {
		return "", "", ErrNotConfigured
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	state = hex.EncodeToString(buf)
	if err := e.kv.Set(ctx, KeyState, state); err != nil {
		return "", "", fmt.Errorf("store oauth state: %w", err)
	}
	return e.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

// Complete exchanges the callback code and stores the token.
func (e *Exporter) Complete(ctx context.Context, code, state string) error {
	if e.oauth == nil {
		return ErrNotConfigured
	}
	want, err := e.kv.Get(ctx, KeyState)
	if err != nil || want == "" || want != state {
		return ErrState
	}
	_ = e.kv.Delete(ctx, KeyState)

	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return e.kv.Set(ctx, KeyToken, string(raw))
}

func (e *Exporter) token(ctx context.Context) (*oauth2.Token, error) {
	raw, err := e.kv.Get(ctx, KeyToken)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode google token: %w", err)
	}
	return &tok, nil
}

// savingSource writes a refreshed token back to the store so the next export
// starts from it and a rotated refresh token survives.
type savingSource struct {
	ctx  context.Context
	base oauth2.TokenSource
	kv   kv.Store

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(s.ctx, KeyToken, string(raw)); err != nil {
		return nil, fmt.Errorf("store refreshed google token: %w", err)
	}
	s.last = tok.AccessToken
	return tok, nil
}

type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Export writes the employee's bookings for day into calendarID. Bookings
// with an unparseable time are skipped.
func (e *Exporter) Export(ctx context.Context, calendarID string, day booking.Day, employeeID string, bookings []booking.Booking) (Result, error) {
	if e.oauth == nil {
		return Result{}, ErrNotConfigured
	}
	tok, err := e.token(ctx)
	if err != nil {
		return Result{}, err
	}
	src := oauth2.ReuseTokenSource(tok, &savingSource{
		ctx:  ctx,
		base: e.oauth.TokenSource(ctx, tok),
		kv:   e.kv,
		last: tok.AccessToken,
	})
	srv, err := e.newService(ctx, oauth2.NewClient(ctx, src))
	if err != nil {
		return Result{}, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	var res Result
	for i := range bookings {
		b := &bookings[i]
		if b.Date != day || b.EmployeeID() != employeeID {
			continue
		}
		ev, ok := ToEvent(b, e.loc)
		if !ok {
			res.Skipped++
			continue
		}
		_, err := srv.Events.Insert(calendarID, ev).Context(ctx).Do()
		if err == nil {
			res.Created++
			continue
		}
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != http.StatusConflict {
			return res, fmt.Errorf("insert event for booking %s: %w", b.ID, err)
		}
		if _, err := srv.Events.Update(calendarID, ev.Id, ev).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("update event for booking %s: %w", b.ID, err)
		}
		res.Updated++
	}
	return res, nil
}

// EventID is a valid Google event id (base32hex alphabet) stable per booking.
func EventID(bookingID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("calendar-console/booking/"+bookingID))
	return strings.ReplaceAll(id.String(), "-", "")
}

// ToEvent maps a booking onto a calendar event in loc.
func ToEvent(b *booking.Booking, loc *time.Location) (*calendar.Event, bool) {
	start, err := b.Start()
	if err != nil || b.Date.IsZero() {
		return nil, false
	}
	from := time.Date(b.Date.Year, b.Date.Month, b.Date.Dom, start.Hour, start.Minute, 0, 0, loc)
	to := from.Add(time.Duration(booking.InferDuration(b)) * time.Minute)

	customer := b.Customer().Name
	if customer == "" {
		customer = "Customer"
	}
	summary := customer
	if svc := b.DisplayService(); svc != "" {
		summary += " - " + svc
	}
	desc := []string{"Status: " + b.Status.Label()}
	if c := b.Customer(); c.Phone != "" {
		desc = append(desc, "Phone: "+c.Phone)
	}
	if b.Notes != "" {
		desc = append(desc, b.Notes)
	}

	ev := &calendar.Event{
		Id:          EventID(b.ID),
		Summary:     summary,
		Description: strings.Join(desc, "\n"),
		Start:       &calendar.EventDateTime{DateTime: from.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: to.Format(time.RFC3339)},
	}
	if b.Location != nil {
		ev.Location = strings.TrimSpace(b.Location.Name + " " + b.Location.Address)
	}
	if b.Status == booking.StatusCancelled {
		ev.Status = "cancelled"
	}
	return ev, true
}
