package fiscal

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the known financial years and the current selection. It is
// shared by every consumer that validates dates: one writer selects the year,
// many readers take Window snapshots.
type Registry struct {
	mu       sync.RWMutex
	years    []FinancialYear
	selected int
	now      func() time.Time
}

// NewRegistry constructs a registry seeded with years.
func NewRegistry(years []FinancialYear) *Registry {
	r := &Registry{now: time.Now}
	r.Load(years)
	return r
}

// WithNow overrides the clock for deterministic tests.
func (r *Registry) WithNow(now func() time.Time) {
	if now != nil {
		r.mu.Lock()
		r.now = now
		r.mu.Unlock()
	}
}

// Load replaces the known years. An explicit selection survives when its year
// is still present and open.
func (r *Registry) Load(years []FinancialYear) {
	normalized := make([]FinancialYear, 0, len(years))
	for _, fy := range years {
		fy.StartDate = DateOf(fy.StartDate)
		fy.EndDate = DateOf(fy.EndDate)
		normalized = append(normalized, fy)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Year < normalized[j].Year })

	r.mu.Lock()
	defer r.mu.Unlock()
	r.years = normalized
	if r.selected != 0 {
		if fy, ok := r.find(r.selected); !ok || !fy.IsOpen() {
			r.selected = 0
		}
	}
}

// Years returns every known year in ascending order.
func (r *Registry) Years() []FinancialYear {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]FinancialYear(nil), r.years...)
}

// ListActiveYears returns the open years in ascending order.
func (r *Registry) ListActiveYears() []FinancialYear {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []FinancialYear
	for _, fy := range r.years {
		if fy.IsOpen() {
			out = append(out, fy)
		}
	}
	return out
}

// Current returns the selected year, or the best match for today: the open
// year containing today, else the latest open year.
func (r *Registry) Current() (FinancialYear, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected != 0 {
		if fy, ok := r.find(r.selected); ok && fy.IsOpen() {
			return fy, true
		}
	}
	today := r.now()
	var latest *FinancialYear
	for i := range r.years {
		fy := r.years[i]
		if !fy.IsOpen() {
			continue
		}
		if fy.Contains(today) {
			return fy, true
		}
		latest = &r.years[i]
	}
	if latest != nil {
		return *latest, true
	}
	return FinancialYear{}, false
}

// SetCurrent selects the year used for validation. Only open years can be
// selected.
func (r *Registry) SetCurrent(year int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fy, ok := r.find(year)
	if !ok {
		return fmt.Errorf("%w: %d", ErrYearNotFound, year)
	}
	if !fy.IsOpen() {
		return fmt.Errorf("%w: %d", ErrYearClosed, year)
	}
	r.selected = year
	return nil
}

// ClearCurrent drops the explicit selection so Current falls back to today.
func (r *Registry) ClearCurrent() {
	r.mu.Lock()
	r.selected = 0
	r.mu.Unlock()
}

// Window snapshots the current year.
func (r *Registry) Window() Window {
	fy, ok := r.Current()
	if !ok {
		return Window{}
	}
	return NewWindow(fy)
}

// WindowFor snapshots a specific year regardless of the current selection.
// A closed year yields a window whose Validate always reports BoundClosed.
func (r *Registry) WindowFor(year int) (Window, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fy, ok := r.find(year)
	if !ok {
		return Window{}, fmt.Errorf("%w: %d", ErrYearNotFound, year)
	}
	return NewWindow(fy), nil
}

// IsWithinCurrent reports whether date lies in the current year.
func (r *Registry) IsWithinCurrent(date time.Time) bool {
	return r.Window().Contains(date)
}

// ClampToCurrent moves date into the current year.
func (r *Registry) ClampToCurrent(date time.Time) time.Time {
	return r.Window().Clamp(date)
}

// ValidateDate describes the violated bound, or returns nil.
func (r *Registry) ValidateDate(date time.Time) *DateViolation {
	return r.Window().Validate(date)
}

func (r *Registry) find(year int) (FinancialYear, bool) {
	for _, fy := range r.years {
		if fy.Year == year {
			return fy, true
		}
	}
	return FinancialYear{}, false
}
