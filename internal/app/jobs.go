/**
 * @description
 * Scheduled job implementations for recurring obligation generation.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/estatehub/billing-service/internal/domain"
)

// ObligationGenerator is the slice of the billing service the jobs drive.
type ObligationGenerator interface {
	GenerateForCycles(ctx context.Context, cycles ...domain.BillingCycle) (*GenerationResult, error)
}

// MonthlyJobCycles are generated on the first day of each month. Quarterly and
// semi-annual services produce nothing in months that already hold a period.
var MonthlyJobCycles = []domain.BillingCycle{domain.CycleMonthly, domain.CycleQuarterly, domain.CycleSemiAnnually}

// AnnualJobCycles are generated by the daily tick.
var AnnualJobCycles = []domain.BillingCycle{domain.CycleAnnually}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	generator ObligationGenerator
	logger    *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(generator ObligationGenerator, logger *slog.Logger) *Jobs {
	return &Jobs{generator: generator, logger: logger}
}

// GenerateMonthlyObligations bills monthly, quarterly and semi-annual services.
func (j *Jobs) GenerateMonthlyObligations() {
	j.run("monthly", MonthlyJobCycles)
}

// GenerateAnnualObligations bills annual services.
func (j *Jobs) GenerateAnnualObligations() {
	j.run("annual", AnnualJobCycles)
}

func (j *Jobs) run(name string, cycles []domain.BillingCycle) {
	j.logger.Info("starting obligation generation job", "job", name)
	ctx := context.Background()

	result, err := j.generator.GenerateForCycles(ctx, cycles...)
	if err != nil {
		j.logger.Error("obligation generation job failed", "job", name, "error", err)
		return
	}

	j.logger.Info("obligation generation job finished",
		"job", name,
		"services", result.ServicesEvaluated,
		"failed_services", result.ServicesFailed,
		"created", result.ObligationsCreated,
	)
}
