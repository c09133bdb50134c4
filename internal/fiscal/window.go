package fiscal

import (
	"fmt"
	"time"
)

// Bound names the side of a financial year a date violated.
type Bound string

const (
	BoundStart  Bound = "start"
	BoundEnd    Bound = "end"
	BoundNone   Bound = "none"
	BoundClosed Bound = "closed"
)

// DateViolation describes an out-of-range date. It is a value, not a failure
// of the check itself.
type DateViolation struct {
	Date  time.Time `json:"date"`
	Bound Bound     `json:"bound"`
	Limit time.Time `json:"limit,omitempty"`
	Year  int       `json:"year,omitempty"`
}

func (v *DateViolation) Error() string {
	switch v.Bound {
	case BoundStart:
		return fmt.Sprintf("date %s is before the financial year start %s", v.Date.Format(time.DateOnly), v.Limit.Format(time.DateOnly))
	case BoundEnd:
		return fmt.Sprintf("date %s is after the financial year end %s", v.Date.Format(time.DateOnly), v.Limit.Format(time.DateOnly))
	case BoundClosed:
		return fmt.Sprintf("financial year %d is closed", v.Year)
	default:
		return "no active financial year is selected"
	}
}

func (v *DateViolation) Unwrap() error {
	switch v.Bound {
	case BoundNone:
		return ErrNoActiveYear
	case BoundClosed:
		return ErrYearClosed
	}
	return ErrDateOutOfRange
}

// Window is an immutable snapshot of the financial year used to validate
// dates. The zero Window has no active year.
type Window struct {
	Year FinancialYear `json:"year"`
	Set  bool          `json:"set"`
}

// NewWindow wraps fy.
func NewWindow(fy FinancialYear) Window {
	return Window{Year: fy, Set: true}
}

// Active reports whether documents may be dated inside the window.
func (w Window) Active() bool {
	return w.Set && w.Year.IsOpen()
}

// Contains reports whether date lies inside the window. Without an active year
// nothing is inside.
func (w Window) Contains(date time.Time) bool {
	return w.Set && w.Year.Contains(date)
}

// Clamp moves date onto the nearest bound when it falls outside. Without an
// active year date is returned unchanged.
func (w Window) Clamp(date time.Time) time.Time {
	if !w.Set {
		return date
	}
	d := DateOf(date)
	if d.Before(w.Year.StartDate) {
		return w.Year.StartDate
	}
	if d.After(w.Year.EndDate) {
		return w.Year.EndDate
	}
	return d
}

// Validate returns nil when date is inside the window and the window's year
// is open.
func (w Window) Validate(date time.Time) *DateViolation {
	d := DateOf(date)
	if !w.Set {
		return &DateViolation{Date: d, Bound: BoundNone}
	}
	if !w.Year.IsOpen() {
		return &DateViolation{Date: d, Bound: BoundClosed, Year: w.Year.Year}
	}
	if d.Before(w.Year.StartDate) {
		return &DateViolation{Date: d, Bound: BoundStart, Limit: w.Year.StartDate}
	}
	if d.After(w.Year.EndDate) {
		return &DateViolation{Date: d, Bound: BoundEnd, Limit: w.Year.EndDate}
	}
	return nil
}

// DueDate is date plus offsetDays, capped at the end of the window.
func (w Window) DueDate(date time.Time, offsetDays int) time.Time {
	due := DateOf(date).AddDate(0, 0, offsetDays)
	if w.Set && due.After(w.Year.EndDate) {
		return w.Year.EndDate
	}
	return due
}
