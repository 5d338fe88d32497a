package steps

import (
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// QuotaChecker rejects reports once the owner's monthly allowance is used up.
type QuotaChecker struct{}

// NewQuotaChecker creates a new quota checker step.
func NewQuotaChecker(deps *pipeline.Dependencies) *QuotaChecker {
	return &QuotaChecker{}
}

// Name returns the step name.
func (s *QuotaChecker) Name() string {
	return "quota_checker"
}

// Run compares the owner's usage with the tier limit before any model call.
func (s *QuotaChecker) Run(ctx *pipeline.Context) error {
	owner := ctx.Tenant.Owner
	limit := ctx.Config.TierLimit(owner.SubscriptionTier)
	if owner.ReportAmount >= limit {
		log.Printf("[quota_checker] User %d at %d/%d reports", owner.ID, owner.ReportAmount, limit)
		return apperror.New(apperror.KindQuotaExceeded, "Monthly report limit reached. Please upgrade your plan.")
	}
	return nil
}
