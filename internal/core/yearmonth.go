package core

import (
	"fmt"
	"time"
)

// YearMonth identifies a calendar month, the period budgets and monthly
// statistics are scoped to.
type YearMonth struct {
	Year  int
	Month time.Month
}

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

// YearMonthOf returns the month t falls in, in t's own location.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, ValidationError("parse year month", "invalid month %q, expected YYYY-MM", s)
	}
	return YearMonthOf(t), nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) Validate() error {
	if ym.Year < 1900 || ym.Year > 9999 {
		return ValidationError("validate year month", "year %d out of range", ym.Year)
	}
	if ym.Month < time.January || ym.Month > time.December {
		return ValidationError("validate year month", "month %d out of range", int(ym.Month))
	}
	return nil
}

// Start is the first instant of the month in loc.
func (ym YearMonth) Start(loc *time.Location) time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, loc)
}

// End is the first instant of the following month; ranges are [Start, End).
func (ym YearMonth) End(loc *time.Location) time.Time {
	return ym.Next().Start(loc)
}

// LastDay is midnight of the month's last day.
func (ym YearMonth) LastDay(loc *time.Location) time.Time {
	return ym.End(loc).AddDate(0, 0, -1)
}

// Days is the number of days in the month.
func (ym YearMonth) Days() int {
	return ym.LastDay(time.UTC).Day()
}

func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

func (ym YearMonth) Prev() YearMonth {
	if ym.Month == time.January {
		return YearMonth{Year: ym.Year - 1, Month: time.December}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month - 1}
}

// Contains reports whether t falls within the month in loc.
func (ym YearMonth) Contains(t time.Time, loc *time.Location) bool {
	return !t.Before(ym.Start(loc)) && t.Before(ym.End(loc))
}

func (ym YearMonth) Before(o YearMonth) bool {
	if ym.Year != o.Year {
		return ym.Year < o.Year
	}
	return ym.Month < o.Month
}

// MarshalText encodes as "YYYY-MM", also used for JSON.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
