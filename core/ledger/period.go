package ledger

import (
	"fmt"
	"time"
)

// Period is a calendar month used as an accounting key.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod validates and returns a Period.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	return p, p.Validate()
}

// PeriodOf returns the period containing t (UTC).
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Validate checks the month is 1-12 and the year is plausible.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("invalid month %d", p.Month)
	}
	if p.Year < 2000 || p.Year > 9999 {
		return fmt.Errorf("invalid year %d", p.Year)
	}
	return nil
}

// Bounds returns [start, end) of the period in UTC.
func (p Period) Bounds() (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	start, end := p.Bounds()
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
