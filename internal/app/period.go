/**
 * @description
 * Billing period calculation. Every obligation's period and due date comes
 * from ComputePeriod so the rollover rules live in one place.
 */
package app

import (
	"time"

	"github.com/estatehub/billing-service/internal/domain"
)

const endOfDayNanos = int(999 * time.Millisecond)

// ComputePeriod returns the billing period containing reference for the given cycle.
// All values are expressed in reference's location.
//
// The due date is the cycle's anchor day inside the period. When reference already
// lies past that anchor, the due date rolls to the anchor of the following period,
// giving services created late in a period a grace window.
func ComputePeriod(cycle domain.BillingCycle, reference time.Time) domain.Period {
	loc := reference.Location()
	year, month, _ := reference.Date()

	switch cycle {
	case domain.CycleMonthly:
		return anchoredPeriod(reference, year, month, 1, 5)
	case domain.CycleQuarterly:
		first := time.Month((int(month)-1)/3*3 + 1)
		return anchoredPeriod(reference, year, first, 3, 5)
	case domain.CycleSemiAnnually:
		first := time.January
		if month > time.June {
			first = time.July
		}
		return anchoredPeriod(reference, year, first, 6, 5)
	case domain.CycleAnnually:
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc).Add(-time.Millisecond)
		due := time.Date(year, time.January, 31, 23, 59, 59, endOfDayNanos, loc)
		if month > time.January {
			due = due.AddDate(1, 0, 0)
		}
		return domain.Period{Start: start, End: end, DueDate: due}
	default:
		// ONE_TIME and unknown cycles collapse to the reference instant.
		return domain.Period{Start: reference, End: reference, DueDate: reference}
	}
}

// anchoredPeriod builds a period of `months` calendar months starting at firstMonth,
// due on dueDay of the first month (or of the next period's first month).
func anchoredPeriod(reference time.Time, year int, firstMonth time.Month, months int, dueDay int) domain.Period {
	loc := reference.Location()
	start := time.Date(year, firstMonth, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, months, 0).Add(-time.Millisecond)

	due := time.Date(year, firstMonth, dueDay, 23, 59, 59, endOfDayNanos, loc)
	if reference.After(due) {
		due = time.Date(year, firstMonth+time.Month(months), dueDay, 23, 59, 59, endOfDayNanos, loc)
	}

	return domain.Period{Start: start, End: end, DueDate: due}
}

// PeriodForService returns the period a service bills for at asOf.
// One-time services are pinned to their creation instant.
func PeriodForService(service domain.Service, asOf time.Time) domain.Period {
	if service.BillingCycle == domain.CycleOneTime {
		return ComputePeriod(service.BillingCycle, service.CreatedAt.In(asOf.Location()))
	}
	return ComputePeriod(service.BillingCycle, asOf)
}
