package steps

import (
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// SubmissionLimit caps accepted submissions per reporter IP over a rolling window.
type SubmissionLimit struct {
	deps *pipeline.Dependencies
}

// NewSubmissionLimit creates a new submission limit step.
func NewSubmissionLimit(deps *pipeline.Dependencies) *SubmissionLimit {
	return &SubmissionLimit{deps: deps}
}

// Name returns the step name.
func (s *SubmissionLimit) Name() string {
	return "submission_limit"
}

// Run counts ledger entries from the reporter's IP.
func (s *SubmissionLimit) Run(ctx *pipeline.Context) error {
	if ctx.Report == nil || ctx.Report.ClientIP == "" {
		return nil
	}

	limits := ctx.Config.Limits
	since := s.deps.Clock().Add(-limits.IPWindow)
	count, err := s.deps.Store.CountSubmissionsFromIP(ctx.Ctx, ctx.Report.ClientIP, since)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "", err)
	}

	if count >= limits.IPSubmissions {
		log.Printf("[submission_limit] %s reached %d submissions in %s", ctx.Report.ClientIP, count, limits.IPWindow)
		return apperror.New(apperror.KindRateLimited, "Too many submissions. Please try again later.")
	}
	return nil
}
