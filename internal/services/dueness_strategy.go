package services

// Each repetition type has its own dueness strategy deciding whether a
// recurring template must be materialized now.

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// DuenessChecker decides whether a recurring template is due.
type DuenessChecker interface {
	// IsDue reports whether a template last executed at lastExecution (zero
	// when never) must run at now.
	IsDue(lastExecution, now, startDate time.Time) bool
}

type DailyChecker struct{}

// IsDue returns true if last execution was before today.
func (DailyChecker) IsDue(lastExecution, now, _ time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	return lastExecution.Format(time.DateOnly) != now.Format(time.DateOnly)
}

type WeeklyChecker struct{}

// IsDue returns true once seven days have passed since last execution.
func (WeeklyChecker) IsDue(lastExecution, now, _ time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	return now.Sub(lastExecution) >= 7*24*time.Hour
}

type MonthlyChecker struct{}

// IsDue returns true in a new month once the start date's day is reached,
// clamped to the month's last day.
func (MonthlyChecker) IsDue(lastExecution, now, startDate time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	if core.YearMonthOf(lastExecution) == core.YearMonthOf(now) {
		return false
	}
	return now.Day() >= targetDay(core.YearMonthOf(now), startDate.Day())
}

type YearlyChecker struct{}

// IsDue returns true in a new year once the start date's month and day are
// reached.
func (YearlyChecker) IsDue(lastExecution, now, startDate time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() {
		return false
	}
	switch {
	case now.Month() < startDate.Month():
		return false
	case now.Month() == startDate.Month():
		return now.Day() >= targetDay(core.YearMonthOf(now), startDate.Day())
	}
	return true
}

// targetDay clamps day to the length of ym (the 31st runs on Feb 28/29).
func targetDay(ym core.YearMonth, day int) int {
	if days := ym.Days(); day > days {
		return days
	}
	return day
}

var duenessStrategies = map[core.RepetitionType]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a repetition type.
func GetDuenessChecker(every core.RepetitionType) (DuenessChecker, error) {
	checker, ok := duenessStrategies[every]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", every)
	}
	return checker, nil
}

// RegisterDuenessChecker adds or replaces the checker for a repetition type.
func RegisterDuenessChecker(every core.RepetitionType, checker DuenessChecker) {
	duenessStrategies[every] = checker
}
