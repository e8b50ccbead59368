package booking

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidTime = errors.New("invalid time")

// DefaultDurationMinutes applies when neither the booking nor its service
// carries a duration.
const DefaultDurationMinutes = 30

const HoursPerDay = 24

var (
	clock24 = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clock12 = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)$`)
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// ParseClock normalises "HH:MM" and "h:mm AM|PM" into a 24-hour clock.
func ParseClock(raw string) (Clock, error) {
	s := strings.TrimSpace(raw)
	if m := clock24.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h > 23 || mm > 59 {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		return Clock{Hour: h, Minute: mm}, nil
	}
	if m := clock12.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h < 1 || h > 12 || mm > 59 {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		pm := strings.EqualFold(m[3], "PM")
		switch {
		case h == 12 && !pm:
			h = 0
		case h != 12 && pm:
			h += 12
		}
		return Clock{Hour: h, Minute: mm}, nil
	}
	return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
}

// FormatClock12 renders an hour in 1..12 as "h:mm AM|PM".
func FormatClock12(hour12, minute int, pm bool) string {
	period := "AM"
	if pm {
		period = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour12, minute, period)
}

// EndTime adds minutes to start, wrapping past midnight.
func EndTime(start Clock, minutes int) string {
	total := (start.minutes() + minutes) % (HoursPerDay * 60)
	if total < 0 {
		total += HoursPerDay * 60
	}
	return Clock{Hour: total / 60, Minute: total % 60}.String()
}

var durationKeywords = []struct {
	words   []string
	minutes int
}{
	{[]string{"haircut", "fade"}, 30},
	{[]string{"beard"}, 20},
	{[]string{"shave"}, 45},
	{[]string{"color"}, 90},
}

// InferDuration returns the booking length in minutes: explicit duration,
// then the service duration, then a guess from the service name.
func InferDuration(b *Booking) int {
	if b.DurationMinutes > 0 {
		return b.DurationMinutes
	}
	if b.Service != nil && b.Service.Duration > 0 {
		return b.Service.Duration
	}
	name := strings.ToLower(b.DisplayService())
	for _, k := range durationKeywords {
		for _, w := range k.words {
			if strings.Contains(name, w) {
				return k.minutes
			}
		}
	}
	return DefaultDurationMinutes
}

// Start is the normalised start clock of the booking.
func (b *Booking) Start() (Clock, error) {
	return ParseClock(b.Time)
}

// End is the wrapped "HH:MM" end label, empty when the start is unparseable.
func (b *Booking) End() string {
	start, err := b.Start()
	if err != nil {
		return ""
	}
	return EndTime(start, InferDuration(b))
}

// SpanCells is the number of hour cells the booking block occupies.
func SpanCells(b *Booking) int {
	n := int(math.Ceil(float64(InferDuration(b)) / 60))
	if n < 1 {
		return 1
	}
	return n
}

type SlotRelation int

const (
	Unrelated SlotRelation = iota
	StartsHere
	Spans
)

func (r SlotRelation) String() string {
	switch r {
	case StartsHere:
		return "startsHere"
	case Spans:
		return "spans"
	}
	return "unrelated"
}

// RelationAt classifies hour against the booking. Unparseable start times
// are unrelated to every hour.
func RelationAt(b *Booking, hour int) SlotRelation {
	start, err := b.Start()
	if err != nil {
		return Unrelated
	}
	if hour == start.Hour {
		return StartsHere
	}
	end := float64(start.minutes()+InferDuration(b)) / 60
	if hour > start.Hour && float64(hour) < math.Ceil(end) {
		return Spans
	}
	return Unrelated
}
