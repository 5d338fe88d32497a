package steps

import (
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// RegisterAll registers all built-in steps with the registry.
func RegisterAll(r *pipeline.Registry) {
	r.Register("captcha", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewCaptchaGate(deps), nil
	})

	r.Register("submission_limit", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewSubmissionLimit(deps), nil
	})

	r.Register("validator", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewValidator(deps), nil
	})

	r.Register("tenant_loader", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewTenantLoader(deps), nil
	})

	r.Register("quota_checker", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewQuotaChecker(deps), nil
	})

	r.Register("classifier", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewClassifier(deps), nil
	})

	r.Register("question_responder", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewQuestionResponder(deps), nil
	})

	r.Register("report_closer", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewReportCloser(deps), nil
	})

	r.Register("duplicate_detector", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewDuplicateDetector(deps), nil
	})

	r.Register("duplicate_skipper", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewDuplicateSkipper(deps), nil
	})

	r.Register("pending_action_scheduler", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewPendingActionScheduler(deps), nil
	})

	r.Register("issue_creator", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewIssueCreator(deps), nil
	})

	r.Register("pending_resolver", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewPendingResolver(deps), nil
	})

	r.Register("duplicate_merger", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewDuplicateMerger(deps), nil
	})
}
