package pricing

import (
	"fmt"
	"time"
)

// IntervalUnit is the calendar unit of a billing interval.
type IntervalUnit string

const (
	IntervalDay   IntervalUnit = "day"
	IntervalWeek  IntervalUnit = "week"
	IntervalMonth IntervalUnit = "month"
	IntervalYear  IntervalUnit = "year"
)

// Valid reports whether the unit is one of the known calendar units.
func (u IntervalUnit) Valid() bool {
	switch u {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

// Interval is a billing period expressed as a count of calendar units,
// e.g. {month, 3} for quarterly billing.
type Interval struct {
	Unit  IntervalUnit
	Count int
}

// Validate checks the interval for use in cycle arithmetic.
func (i Interval) Validate() error {
	if !i.Unit.Valid() {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidInterval, i.Unit)
	}
	if i.Count < 1 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidInterval, i.Count)
	}
	return nil
}

// AddTo advances t by one full interval using literal calendar lengths.
// A one-month interval starting Jan 31 ends on the last day of February,
// following time.AddDate normalization.
func (i Interval) AddTo(t time.Time) (time.Time, error) {
	if err := i.Validate(); err != nil {
		return time.Time{}, err
	}
	switch i.Unit {
	case IntervalDay:
		return t.AddDate(0, 0, i.Count), nil
	case IntervalWeek:
		return t.AddDate(0, 0, 7*i.Count), nil
	case IntervalMonth:
		return t.AddDate(0, i.Count, 0), nil
	case IntervalYear:
		return t.AddDate(i.Count, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidInterval, i.Unit)
	}
}

// ApproxWeeks returns the rough number of weeks the interval spans.
// Used only for cross-interval savings display (e.g. "save 20% on annual"),
// never for proration billing, which works from real cycle boundaries.
func (i Interval) ApproxWeeks() float64 {
	weeks := map[IntervalUnit]float64{
		IntervalDay:   1.0 / 7.0,
		IntervalWeek:  1,
		IntervalMonth: 52.0 / 12.0,
		IntervalYear:  52,
	}
	return weeks[i.Unit] * float64(i.Count)
}

// WeeklyRate converts a price over an interval to an approximate per-week
// amount for plan comparison display.
func WeeklyRate(price Money, interval Interval) (Money, error) {
	if err := interval.Validate(); err != nil {
		return Money{}, err
	}
	weeks := interval.ApproxWeeks()
	if weeks <= 0 {
		return Money{}, fmt.Errorf("%w: interval spans zero weeks", ErrInvalidInterval)
	}
	return Money{Amount: int64(float64(price.Amount) / weeks), Currency: price.Currency}, nil
}
