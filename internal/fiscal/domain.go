// Package fiscal manages financial years and constrains document dates to the
// selected year.
package fiscal

import (
	"errors"
	"fmt"
	"time"
)

// Status enumerates financial year lifecycle stages.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var (
	// ErrYearNotFound is returned when no financial year matches the lookup.
	ErrYearNotFound = errors.New("fiscal: financial year not found")
	// ErrDuplicateYear is returned when a calendar year is registered twice.
	ErrDuplicateYear = errors.New("fiscal: financial year already exists")
	// ErrInvalidTransition indicates a status change that is not allowed.
	ErrInvalidTransition = errors.New("fiscal: status transition not allowed")
	// ErrInvalidInput wraps input validation failures.
	ErrInvalidInput = errors.New("fiscal: invalid input")
	// ErrDateOutOfRange is the sentinel behind every DateViolation with a bound.
	ErrDateOutOfRange = errors.New("fiscal: date outside the financial year")
	// ErrNoActiveYear is reported when no financial year is selected.
	ErrNoActiveYear = errors.New("fiscal: no active financial year")
	// ErrYearClosed is returned when a closed year is used for new documents.
	ErrYearClosed = errors.New("fiscal: financial year is closed")
)

// FinancialYear is an administrator-defined date range that bounds document dates.
type FinancialYear struct {
	ID        string    `json:"id"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Contains reports whether date falls within the inclusive bounds.
func (fy FinancialYear) Contains(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(fy.StartDate) && !d.After(fy.EndDate)
}

// IsOpen reports whether documents may still be dated in this year.
func (fy FinancialYear) IsOpen() bool {
	return fy.Status == StatusOpen
}

// CreateInput captures a new financial year.
type CreateInput struct {
	Year      int       `json:"year" validate:"required,gte=1900,lte=9999"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
}

// Validate ensures the create input is coherent.
func (in CreateInput) Validate() error {
	if in.Year < 1900 || in.Year > 9999 {
		return fmt.Errorf("%w: year must be a four digit calendar year", ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end date required", ErrInvalidInput)
	}
	if DateOf(in.StartDate).After(DateOf(in.EndDate)) {
		return fmt.Errorf("%w: start date cannot be after end date", ErrInvalidInput)
	}
	return nil
}

// ValidateTransition checks status changes. Closed years stay closed.
func ValidateTransition(current, target Status) error {
	if current == StatusOpen && target == StatusClosed {
		return nil
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, target)
}

// NextYearInput derives the financial year following fy with bounds shifted by one year.
func NextYearInput(fy FinancialYear) CreateInput {
	return CreateInput{
		Year:      fy.Year + 1,
		StartDate: fy.StartDate.AddDate(1, 0, 0),
		EndDate:   fy.EndDate.AddDate(1, 0, 0),
	}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
