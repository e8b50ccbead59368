package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"calendar-console/internal/booking"
	"calendar-console/internal/event"
	"calendar-console/internal/feed"
	"calendar-console/internal/store"
)

const (
	CalendarInterval = 30 * time.Second
	BellInterval     = 10 * time.Second
)

type Fetcher interface {
	ListBookingsWithGuests(ctx context.Context) ([]booking.Booking, error)
}

// Publisher receives every derived event, deletions included.
type Publisher interface {
	Publish(ctx context.Context, events []event.Event) error
}

type Config struct {
	Interval time.Duration
	// Feed receives visible events; nil for views that only need the store.
	Feed *feed.Feed
	Sink Publisher
	// Chime is invoked once per tick that produced new bookings. Errors are ignored.
	Chime func() error
	Now   func() time.Time
}

// Synchronizer polls the booking list, diffs it against the previous
// snapshot and publishes the result to the store and the feed.
type Synchronizer struct {
	fetcher  Fetcher
	store    *store.Store
	feed     *feed.Feed
	sink     Publisher
	chime    func() error
	now      func() time.Time
	interval time.Duration
	logger   zerolog.Logger

	// fetching admits one fetch at a time.
	fetching *semaphore.Weighted

	mu        sync.RWMutex
	prev      []booking.Booking
	primed    bool
	locations []booking.Location
}

func New(fetcher Fetcher, st *store.Store, logger zerolog.Logger, cfg Config) *Synchronizer {
	if cfg.Interval <= 0 {
		cfg.Interval = CalendarInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Synchronizer{
		fetcher:  fetcher,
		store:    st,
		feed:     cfg.Feed,
		sink:     cfg.Sink,
		chime:    cfg.Chime,
		now:      cfg.Now,
		interval: cfg.Interval,
		logger:   logger,
		fetching: semaphore.NewWeighted(1),
	}
}

// Run ticks immediately and then every interval until ctx is done. A tick is
// skipped while the previous fetch is pending. A fetch still running at
// teardown finishes, but its result is dropped.
func (s *Synchronizer) Run(ctx context.Context) {
	s.startTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.startTick(ctx)
		}
	}
}

func (s *Synchronizer) startTick(ctx context.Context) {
	if !s.fetching.TryAcquire(1) {
		s.logger.Debug().Msg("previous booking fetch still pending, tick skipped")
		return
	}
	go func() {
		defer s.fetching.Release(1)
		if err := s.fetchAndCommit(ctx, context.WithoutCancel(ctx)); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("booking sync failed")
		}
	}()
}

// Refresh runs one tick synchronously, e.g. after a staff mutation. A fetch
// already in flight may predate the mutation, so Refresh waits for it to
// commit and then fetches again.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if err := s.fetching.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.fetching.Release(1)
	return s.fetchAndCommit(ctx, ctx)
}

func (s *Synchronizer) fetchAndCommit(ctx, fetchCtx context.Context) error {
	next, err := s.fetcher.ListBookingsWithGuests(fetchCtx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	s.commit(ctx, next)
	return nil
}

func (s *Synchronizer) commit(ctx context.Context, next []booking.Booking) {
	s.mu.Lock()
	var events []event.Event
	if s.primed {
		events = event.Diff(s.prev, next, s.now())
	}
	s.prev = next
	s.primed = true
	s.store.Replace(next)
	if s.feed != nil {
		s.feed.Append(events...)
	}
	s.locations = Locations(next)
	s.mu.Unlock()

	if len(events) == 0 {
		return
	}
	s.logger.Info().Int("events", len(events)).Msg("booking changes detected")

	if s.sink != nil {
		if err := s.sink.Publish(ctx, events); err != nil {
			s.logger.Warn().Err(err).Msg("publish booking events")
		}
	}
	if s.chime != nil && hasNew(events) {
		_ = s.chime()
	}
}

// View is a consistent read of one completed tick.
type View struct {
	Store     *store.Store
	Feed      *feed.Feed
	Locations []booking.Location
	Primed    bool
}

// Read calls fn while no tick can commit.
func (s *Synchronizer) Read(fn func(v View)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(View{Store: s.store, Feed: s.feed, Locations: s.locations, Primed: s.primed})
}

func (s *Synchronizer) Primed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primed
}

// Locations lists distinct booking locations in first-seen order.
func Locations(bookings []booking.Booking) []booking.Location {
	seen := make(map[string]struct{})
	var out []booking.Location
	for _, b := range bookings {
		if b.Location == nil || b.Location.ID == "" {
			continue
		}
		if _, ok := seen[b.Location.ID]; ok {
			continue
		}
		seen[b.Location.ID] = struct{}{}
		out = append(out, *b.Location)
	}
	return out
}

func hasNew(events []event.Event) bool {
	for _, e := range events {
		if e.Kind == event.KindNew {
			return true
		}
	}
	return false
}
