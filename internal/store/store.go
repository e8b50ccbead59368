package store

import (
	"sort"
	"sync"

	"calendar-console/internal/booking"
)

// AllLocations is the filter value that disables location filtering.
const AllLocations = "all"

// Store holds the latest booking snapshot and the location-filtered view of
// it. Snapshots are swapped wholesale, never edited in place.
type Store struct {
	mu       sync.RWMutex
	all      []booking.Booking
	filter   string
	filtered []booking.Booking
}

func New() *Store {
	return &Store{filter: AllLocations}
}

// Replace swaps in a new snapshot and recomputes the filtered view.
func (s *Store) Replace(snapshot []booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = snapshot
	s.filtered = applyFilter(snapshot, s.filter)
}

func (s *Store) SetFilter(f string) {
	if f == "" {
		f = AllLocations
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	s.filtered = applyFilter(s.all, f)
}

func (s *Store) Filter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// All returns the current snapshot. Callers must treat it as read-only.
func (s *Store) All() []booking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.all
}

func (s *Store) Filtered() []booking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filtered
}

func (s *Store) Find(id string) (booking.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.all {
		if b.ID == id {
			return b, true
		}
	}
	return booking.Booking{}, false
}

// ForDate returns the filtered bookings on day ordered by normalised start
// time, ties broken by id. Unparseable times sort last.
func (s *Store) ForDate(day booking.Day) []booking.Booking {
	s.mu.RLock()
	var out []booking.Booking
	for _, b := range s.filtered {
		if b.Date == day {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	SortByStart(out)
	return out
}

// CountByDay counts filtered bookings per day of the given month.
func (s *Store) CountByDay(year int, month int) map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int]int)
	for _, b := range s.filtered {
		if b.Date.Year == year && int(b.Date.Month) == month {
			counts[b.Date.Dom]++
		}
	}
	return counts
}

// SortByStart orders bookings by normalised start clock then id.
func SortByStart(bs []booking.Booking) {
	key := func(b *booking.Booking) int {
		c, err := b.Start()
		if err != nil {
			return booking.HoursPerDay * 60
		}
		return c.Hour*60 + c.Minute
	}
	sort.SliceStable(bs, func(i, j int) bool {
		ki, kj := key(&bs[i]), key(&bs[j])
		if ki != kj {
			return ki < kj
		}
		return bs[i].ID < bs[j].ID
	})
}

func applyFilter(all []booking.Booking, f string) []booking.Booking {
	if f == AllLocations {
		return all
	}
	var out []booking.Booking
	for _, b := range all {
		if b.LocationID() == f {
			out = append(out, b)
		}
	}
	return out
}
