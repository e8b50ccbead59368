package grid

import (
	"fmt"

	"calendar-console/internal/booking"
	"calendar-console/internal/store"
)

type CellKind string

const (
	Empty   CellKind = "empty"
	Start   CellKind = "start"
	Covered CellKind = "covered"
)

// Cell is the placement of one (employee, hour) slot.
type Cell struct {
	Kind      CellKind         `json:"kind"`
	Booking   *booking.Booking `json:"booking,omitempty"`
	SpanCells int              `json:"spanCells,omitempty"`
	End       string           `json:"end,omitempty"`
	Color     string           `json:"color,omitempty"`
}

type Input struct {
	Day       booking.Day
	Employees []booking.Employee
	Bookings  []booking.Booking
	NowHour   int
}

type column [booking.HoursPerDay]Cell

// Layout is the placement of one day's bookings into employee columns.
type Layout struct {
	Day       booking.Day
	Employees []booking.Employee
	NowHour   int

	columns map[string]*column
	// Unassigned bookings have no employee and are listed, not placed.
	Unassigned []booking.Booking
	// Unplaced bookings have a start time that does not parse.
	Unplaced []booking.Booking
	// Hidden bookings lost their start cell to an earlier booking in the same hour.
	Hidden []booking.Booking
}

// Build places bookings on the hourly grid. A start cell always wins over a
// covered cell; when two bookings start in the same hour the earlier minute
// (then lower id) keeps it, and when spans overlap the earlier starter owns
// the cell.
func Build(in Input) *Layout {
	l := &Layout{
		Day:       in.Day,
		Employees: in.Employees,
		NowHour:   in.NowHour,
		columns:   make(map[string]*column, len(in.Employees)),
	}
	for _, e := range in.Employees {
		l.columns[e.ID] = emptyColumn()
	}

	byEmployee := make(map[string][]booking.Booking)
	for _, b := range in.Bookings {
		if b.Date != in.Day {
			continue
		}
		if _, err := b.Start(); err != nil {
			l.Unplaced = append(l.Unplaced, b)
			continue
		}
		id := b.EmployeeID()
		if id == "" {
			l.Unassigned = append(l.Unassigned, b)
			continue
		}
		byEmployee[id] = append(byEmployee[id], b)
	}

	for id, bs := range byEmployee {
		col, ok := l.columns[id]
		if !ok {
			// employee not on the roster; nothing to render into
			continue
		}
		store.SortByStart(bs)
		l.Hidden = append(l.Hidden, place(col, bs)...)
	}
	return l
}

func place(col *column, bs []booking.Booking) (hidden []booking.Booking) {
	var placed []*booking.Booking
	for i := range bs {
		b := &bs[i]
		start, _ := b.Start()
		if col[start.Hour].Kind != Empty {
			hidden = append(hidden, *b)
			continue
		}
		col[start.Hour] = Cell{
			Kind:      Start,
			Booking:   b,
			SpanCells: booking.SpanCells(b),
			End:       b.End(),
			Color:     StatusColor(b.Status),
		}
		placed = append(placed, b)
	}
	// Covered cells follow the booking's end hour, not SpanCells: an hour-long
	// booking at 10:30 spans one cell but still covers 11:00.
	for _, b := range placed {
		start, _ := b.Start()
		for h := start.Hour + 1; h < booking.HoursPerDay; h++ {
			if booking.RelationAt(b, h) != booking.Spans {
				break
			}
			if col[h].Kind == Empty {
				col[h] = Cell{Kind: Covered, Booking: b, Color: StatusColor(b.Status)}
			}
		}
	}
	return hidden
}

func emptyColumn() *column {
	var c column
	for i := range c {
		c[i] = Cell{Kind: Empty}
	}
	return &c
}

// CellAt returns the placement for an employee and hour. Unknown employees
// and out-of-range hours are empty.
func (l *Layout) CellAt(employeeID string, hour int) Cell {
	col, ok := l.columns[employeeID]
	if !ok || hour < 0 || hour >= booking.HoursPerDay {
		return Cell{Kind: Empty}
	}
	return col[hour]
}

func (l *Layout) IsCurrent(hour int) bool {
	return hour == l.NowHour
}

// HourOf is the start row of a placed booking.
func (l *Layout) HourOf(bookingID string) (int, bool) {
	for _, col := range l.columns {
		for h, c := range col {
			if c.Kind == Start && c.Booking.ID == bookingID {
				return h, true
			}
		}
	}
	return 0, false
}

// Row is one hour of the grid across all employee columns.
type Row struct {
	Hour    int    `json:"hour"`
	Label   string `json:"label"`
	Current bool   `json:"current"`
	Cells   []Cell `json:"cells"`
}

func (l *Layout) Rows() []Row {
	rows := make([]Row, booking.HoursPerDay)
	for h := range rows {
		cells := make([]Cell, len(l.Employees))
		for i, e := range l.Employees {
			cells[i] = l.CellAt(e.ID, h)
		}
		rows[h] = Row{Hour: h, Label: SlotLabel(h), Current: l.IsCurrent(h), Cells: cells}
	}
	return rows
}

func SlotLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// StatusColor is the grid card colour for a status.
func StatusColor(s booking.Status) string {
	switch s {
	case booking.StatusConfirmed:
		return "green"
	case booking.StatusPending:
		return "cyan"
	case booking.StatusCompleted:
		return "blue"
	case booking.StatusCancelled:
		return "red"
	}
	return "gray"
}
