package core

import (
	"errors"
	"fmt"
	"time"
)

// Period identifies one calendar month as a "YYYY-MM" string. Periods order
// lexicographically in calendar order.
type Period string

var ErrInvalidPeriod = errors.New("invalid period")

// ParsePeriod validates a "YYYY-MM" string.
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period(s), nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format("2006-01"))
}

func (p Period) String() string { return string(p) }

func (p Period) Validate() error {
	_, err := ParsePeriod(string(p))
	return err
}

// Next returns the following month, rolling December into January of the
// next year.
func (p Period) Next() Period {
	t, err := time.Parse("2006-01", string(p))
	if err != nil {
		return p
	}
	return PeriodOf(t.AddDate(0, 1, 0))
}

// Before reports whether p is an earlier month than other.
func (p Period) Before(other Period) bool {
	return string(p) < string(other)
}
