package shared

import (
	"errors"
	"testing"
	"time"
)

func TestValidateFiscalPeriod(t *testing.T) {
	if err := ValidateFiscalPeriod(2024, 6); err != nil {
		t.Fatalf("valid period rejected: %v", err)
	}
	if err := ValidateFiscalPeriod(2024, 0); !errors.Is(err, ErrInvalidFiscalPeriod) {
		t.Fatalf("expected ErrInvalidFiscalPeriod, got %v", err)
	}
	if err := ValidateFiscalPeriod(2024, 13); !errors.Is(err, ErrInvalidFiscalPeriod) {
		t.Fatalf("expected ErrInvalidFiscalPeriod, got %v", err)
	}
	if err := ValidateFiscalPeriod(1999, 1); !errors.Is(err, ErrInvalidFiscalYear) {
		t.Fatalf("expected ErrInvalidFiscalYear, got %v", err)
	}
}

func TestPeriodRangeCoversMonth(t *testing.T) {
	start, end := PeriodRange(2024, 2)
	if !start.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("leap february must end on march 1, got %v", end)
	}

	start, end = PeriodRange(2023, 12)
	if !end.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("december must roll into next year, got %v", end)
	}
	if end.Sub(start) != 31*24*time.Hour {
		t.Fatalf("unexpected december length %v", end.Sub(start))
	}
}

func TestPeriodLabel(t *testing.T) {
	if got := PeriodLabel(2024, 3); got != "2024-03" {
		t.Fatalf("expected 2024-03, got %s", got)
	}
	if got := PeriodLabel(2024, 11); got != "2024-11" {
		t.Fatalf("expected 2024-11, got %s", got)
	}
}
