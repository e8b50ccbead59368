package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Label is the capitalised form shown to staff.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusConfirmed:
		return "Confirmed"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (c *Contact) empty() bool {
	return c == nil || (c.Name == "" && c.Email == "" && c.Phone == "")
}

type UserRef struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// EmployeeRef is the barber reference on a booking. The server sends either
// a populated object or a bare id string.
type EmployeeRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

func (r *EmployeeRef) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &r.ID)
	}
	type plain EmployeeRef
	return json.Unmarshal(data, (*plain)(r))
}

// ServiceRef is the service reference on a booking. Older bookings carry the
// service name as a bare string.
type ServiceRef struct {
	ID       string  `json:"_id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Duration int     `json:"duration,omitempty"`
	Price    float64 `json:"price,omitempty"`
}

func (r *ServiceRef) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &r.Name)
	}
	type plain ServiceRef
	return json.Unmarshal(data, (*plain)(r))
}

type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Comment struct {
	Author    string    `json:"createdBy,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type Booking struct {
	ID                string       `json:"_id"`
	Date              Day          `json:"date"`
	Time              string       `json:"time"`
	DurationMinutes   int          `json:"totalDuration,omitempty"`
	Employee          *EmployeeRef `json:"barber,omitempty"`
	Service           *ServiceRef  `json:"service,omitempty"`
	ServiceName       string       `json:"serviceName,omitempty"`
	User              *UserRef     `json:"user,omitempty"`
	Guest             *Contact     `json:"customerInfo,omitempty"`
	Location          *Location    `json:"location,omitempty"`
	Status            Status       `json:"status"`
	Price             float64      `json:"price,omitempty"`
	IsPaid            bool         `json:"isPaid"`
	CardSetupComplete bool         `json:"cardSetupComplete"`
	Notes             string       `json:"notes,omitempty"`
	Source            string       `json:"source,omitempty"`
	Comments          []Comment    `json:"comments,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// UnmarshalJSON decodes the server shape and enforces that exactly one of the
// registered-user reference and the inline guest record is kept.
func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	var w struct {
		plain
		TotalPrice float64 `json:"totalPrice"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = Booking(w.plain)
	if b.Price == 0 {
		b.Price = w.TotalPrice
	}
	if b.User != nil && b.User.ID != "" {
		b.Guest = nil
	} else {
		b.User = nil
		if b.Guest.empty() {
			b.Guest = nil
		}
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	return nil
}

func (b *Booking) IsGuest() bool { return b.User == nil }

// Customer returns the contact record regardless of booking kind.
func (b *Booking) Customer() Contact {
	if b.User != nil {
		return Contact{Name: b.User.Name, Email: b.User.Email, Phone: b.User.Phone}
	}
	if b.Guest != nil {
		return *b.Guest
	}
	return Contact{}
}

func (b *Booking) EmployeeID() string {
	if b.Employee == nil {
		return ""
	}
	return b.Employee.ID
}

func (b *Booking) EmployeeName() string {
	if b.Employee == nil {
		return ""
	}
	return b.Employee.Name
}

func (b *Booking) ServiceID() string {
	if b.Service == nil {
		return ""
	}
	return b.Service.ID
}

// DisplayService prefers the denormalised snapshot name.
func (b *Booking) DisplayService() string {
	if b.ServiceName != "" {
		return b.ServiceName
	}
	if b.Service != nil {
		return b.Service.Name
	}
	return ""
}

func (b *Booking) LocationID() string {
	if b.Location == nil {
		return ""
	}
	return b.Location.ID
}

// CanCharge reports whether the charge-now action may be offered.
func (b *Booking) CanCharge() bool {
	return !b.IsPaid && b.CardSetupComplete
}

type Employee struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	ProfileImage string   `json:"profileImage,omitempty"`
	Specialties  []string `json:"specialties,omitempty"`
}

// Initial is used for the avatar placeholder when there is no profile image.
func (e Employee) Initial() string {
	if e.Name == "" {
		return ""
	}
	return strings.ToUpper(string([]rune(e.Name)[:1]))
}

type Service struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Duration int     `json:"duration"`
	Price    float64 `json:"price"`
}

type CustomerRecord struct {
	ID                 string `json:"_id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	MarketingConsent   bool   `json:"marketingConsent"`
	PrepaymentRequired bool   `json:"prepaymentRequired"`
	Gender             string `json:"gender,omitempty"`
	BirthMonth         string `json:"birthMonth,omitempty"`
	BirthDay           string `json:"birthDay,omitempty"`
	BirthYear          string `json:"birthYear,omitempty"`
	Note               string `json:"note,omitempty"`
}

type CustomerDetail struct {
	Customer      CustomerRecord `json:"customer"`
	Bookings      []Booking      `json:"bookings"`
	TotalBookings int            `json:"totalBookings"`
}

// Day is a local calendar day without a zone.
type Day struct {
	Year  int
	Month time.Month
	Dom   int
}

const dayLayout = "2006-01-02"

func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Dom: d}
}

// ParseDay accepts "2006-01-02" or a timestamp whose date part is taken
// verbatim.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(dayLayout) {
		return Day{}, fmt.Errorf("invalid date %q", s)
	}
	t, err := time.Parse(dayLayout, s[:len(dayLayout)])
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Dom, 0, 0, 0, 0, time.Local)
}

func (d Day) AddDays(n int) Day {
	return DayOf(time.Date(d.Year, d.Month, d.Dom+n, 0, 0, 0, 0, time.UTC))
}

func (d Day) IsZero() bool { return d == Day{} }

func (d Day) Before(o Day) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Dom < o.Dom
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Dom)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
