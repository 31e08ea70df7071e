package shared

import (
	"errors"
	"fmt"
	"time"
)

// Fiscal periods are calendar months: a transaction dated D belongs to
// fiscal year D.Year and fiscal period D.Month.
const (
	MinFiscalYear = 2000
	MaxFiscalYear = 2100
)

// ErrInvalidFiscalYear indicates a year outside the supported window.
var ErrInvalidFiscalYear = errors.New("fiscal year out of range")

// ErrInvalidFiscalPeriod indicates a period outside 1..12.
var ErrInvalidFiscalPeriod = errors.New("fiscal period out of range")

// ValidateFiscalPeriod checks year and period bounds.
func ValidateFiscalPeriod(year, period int) error {
	if year < MinFiscalYear || year > MaxFiscalYear {
		return ErrInvalidFiscalYear
	}
	if period < 1 || period > 12 {
		return ErrInvalidFiscalPeriod
	}
	return nil
}

// PeriodRange returns the half-open UTC date range [start, end) covering the
// fiscal period. Callers filter transactions with date >= start AND date < end.
func PeriodRange(year, period int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(period), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// PeriodLabel renders the canonical YYYY-PP form used in run names and lock keys.
func PeriodLabel(year, period int) string {
	return fmt.Sprintf("%d-%02d", year, period)
}
