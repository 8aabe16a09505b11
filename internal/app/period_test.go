package app

import (
	"testing"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
)

func eod(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

func TestComputePeriod_MonthlyCreatedAfterFifthRollsDueDate(t *testing.T) {
	ref := time.Date(2024, time.March, 10, 14, 30, 0, 0, time.UTC)

	period := ComputePeriod(domain.CycleMonthly, ref)

	if !period.Start.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", period.Start)
	}
	if !period.End.Equal(eod(2024, time.March, 31)) {
		t.Fatalf("unexpected end: %s", period.End)
	}
	if !period.DueDate.Equal(eod(2024, time.April, 5)) {
		t.Fatalf("expected due date 2024-04-05, got %s", period.DueDate)
	}
}

func TestComputePeriod_MonthlyCreatedBeforeFifthKeepsCurrentMonth(t *testing.T) {
	ref := time.Date(2024, time.March, 3, 8, 0, 0, 0, time.UTC)

	period := ComputePeriod(domain.CycleMonthly, ref)

	if !period.DueDate.Equal(eod(2024, time.March, 5)) {
		t.Fatalf("expected due date 2024-03-05, got %s", period.DueDate)
	}
}

func TestComputePeriod_MonthlyBoundaryDayFiveVersusSix(t *testing.T) {
	dayFive := ComputePeriod(domain.CycleMonthly, time.Date(2024, time.June, 5, 23, 0, 0, 0, time.UTC))
	if !dayFive.DueDate.Equal(eod(2024, time.June, 5)) {
		t.Fatalf("day 5 should stay in the current month, got %s", dayFive.DueDate)
	}

	daySix := ComputePeriod(domain.CycleMonthly, time.Date(2024, time.June, 6, 0, 0, 0, 0, time.UTC))
	if !daySix.DueDate.Equal(eod(2024, time.July, 5)) {
		t.Fatalf("day 6 should roll to next month, got %s", daySix.DueDate)
	}
}

func TestComputePeriod_MonthlyDecemberRollsIntoNextYear(t *testing.T) {
	period := ComputePeriod(domain.CycleMonthly, time.Date(2024, time.December, 20, 0, 0, 0, 0, time.UTC))

	if !period.End.Equal(eod(2024, time.December, 31)) {
		t.Fatalf("unexpected end: %s", period.End)
	}
	if !period.DueDate.Equal(eod(2025, time.January, 5)) {
		t.Fatalf("unexpected due date: %s", period.DueDate)
	}
}

func TestComputePeriod_MonthlyLeapFebruary(t *testing.T) {
	period := ComputePeriod(domain.CycleMonthly, time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC))

	if !period.End.Equal(eod(2024, time.February, 29)) {
		t.Fatalf("expected leap-day end, got %s", period.End)
	}
}

func TestComputePeriod_AnnualJanuaryVersusFebruary(t *testing.T) {
	january := ComputePeriod(domain.CycleAnnually, time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC))
	if !january.Start.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", january.Start)
	}
	if !january.End.Equal(eod(2024, time.December, 31)) {
		t.Fatalf("unexpected end: %s", january.End)
	}
	if !january.DueDate.Equal(eod(2024, time.January, 31)) {
		t.Fatalf("january reference should be due this year, got %s", january.DueDate)
	}

	february := ComputePeriod(domain.CycleAnnually, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	if !february.DueDate.Equal(eod(2025, time.January, 31)) {
		t.Fatalf("february reference should be due next year, got %s", february.DueDate)
	}
}

func TestComputePeriod_QuarterlyAndSemiAnnual(t *testing.T) {
	quarter := ComputePeriod(domain.CycleQuarterly, time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC))
	if !quarter.Start.Equal(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected quarter start: %s", quarter.Start)
	}
	if !quarter.End.Equal(eod(2024, time.June, 30)) {
		t.Fatalf("unexpected quarter end: %s", quarter.End)
	}
	if !quarter.DueDate.Equal(eod(2024, time.July, 5)) {
		t.Fatalf("unexpected quarter due date: %s", quarter.DueDate)
	}

	half := ComputePeriod(domain.CycleSemiAnnually, time.Date(2024, time.July, 2, 0, 0, 0, 0, time.UTC))
	if !half.Start.Equal(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected half start: %s", half.Start)
	}
	if !half.End.Equal(eod(2024, time.December, 31)) {
		t.Fatalf("unexpected half end: %s", half.End)
	}
	if !half.DueDate.Equal(eod(2024, time.July, 5)) {
		t.Fatalf("unexpected half due date: %s", half.DueDate)
	}
}

func TestComputePeriod_OneTimeAndUnknownCollapseToReference(t *testing.T) {
	ref := time.Date(2024, time.August, 17, 9, 45, 0, 0, time.UTC)

	for _, cycle := range []domain.BillingCycle{domain.CycleOneTime, domain.BillingCycle("FORTNIGHTLY")} {
		period := ComputePeriod(cycle, ref)
		if !period.Start.Equal(ref) || !period.End.Equal(ref) || !period.DueDate.Equal(ref) {
			t.Fatalf("cycle %s: expected every field to equal the reference, got %+v", cycle, period)
		}
	}
}

func TestComputePeriod_OrderingHoldsAcrossYear(t *testing.T) {
	cycles := []domain.BillingCycle{domain.CycleMonthly, domain.CycleQuarterly, domain.CycleSemiAnnually, domain.CycleAnnually}
	ref := time.Date(2023, time.January, 1, 6, 0, 0, 0, time.UTC)

	for day := 0; day < 366; day++ {
		current := ref.AddDate(0, 0, day)
		for _, cycle := range cycles {
			period := ComputePeriod(cycle, current)
			if period.Start.After(period.DueDate) {
				t.Fatalf("%s at %s: start after due date", cycle, current)
			}
			if !period.Contains(current) {
				t.Fatalf("%s at %s: period does not contain reference", cycle, current)
			}
			rolled := period.DueDate.After(period.End)
			if rolled && !current.After(period.Start.AddDate(0, 0, 4)) && cycle != domain.CycleAnnually {
				t.Fatalf("%s at %s: due date rolled before the anchor day", cycle, current)
			}
			if again := ComputePeriod(cycle, current); again != period {
				t.Fatalf("%s at %s: result is not deterministic", cycle, current)
			}
		}
	}
}

func TestPeriodForService_OneTimeUsesCreationInstant(t *testing.T) {
	created := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	service := domain.Service{BillingCycle: domain.CycleOneTime, CreatedAt: created}

	period := PeriodForService(service, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))

	if !period.Start.Equal(created) || !period.DueDate.Equal(created) {
		t.Fatalf("expected creation instant, got %+v", period)
	}
}
