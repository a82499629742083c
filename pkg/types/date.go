package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time component, normalized to UTC midnight.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected %s", value, DateLayout)
	}
	return NewDate(parsed), nil
}

// MustDate parses value and panics on error; intended for fixtures.
func MustDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// After and Before compare calendar dates.
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }

const secondsPerDay = 24 * 60 * 60

// DaysUntil returns the whole number of calendar days from d to other. It counts on
// unix seconds rather than time.Duration, which saturates past roughly 292 years.
func (d Date) DaysUntil(other Date) int64 {
	from, to := NewDate(d.Time), NewDate(other.Time)
	return (to.Unix() - from.Unix()) / secondsPerDay
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD and RFC3339 timestamps, keeping only the date part.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		*d = NewDate(ts)
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
