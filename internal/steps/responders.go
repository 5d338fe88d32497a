package steps

import (
	"log"

	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/storage"
)

// QuestionResponder returns the model's follow-up question to the reporter.
// Nothing is charged or persisted; the client resubmits with the answer.
type QuestionResponder struct{}

// NewQuestionResponder creates a new question responder step.
func NewQuestionResponder(deps *pipeline.Dependencies) *QuestionResponder {
	return &QuestionResponder{}
}

// Name returns the step name.
func (s *QuestionResponder) Name() string {
	return "question_responder"
}

// Run answers with the question and stops the pipeline.
func (s *QuestionResponder) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.ClassifiedQuestion {
		return nil
	}
	ctx.Result.Action = pipeline.OutcomeQuestion
	ctx.Result.Message = ctx.Draft.Message
	if err := ctx.Advance(pipeline.EventFinalize); err != nil {
		return err
	}
	return pipeline.ErrSkipPipeline
}

// ReportCloser finalizes reports the model rejected.
type ReportCloser struct {
	deps *pipeline.Dependencies
}

// NewReportCloser creates a new report closer step.
func NewReportCloser(deps *pipeline.Dependencies) *ReportCloser {
	return &ReportCloser{deps: deps}
}

// Name returns the step name.
func (s *ReportCloser) Name() string {
	return "report_closer"
}

// Run charges quota, records the closed report, then deletes its media.
// The ledger entry is written before deletion so a failed cleanup stays traceable.
func (s *ReportCloser) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.ClassifiedClose {
		return nil
	}

	if err := consumeQuota(ctx, s.deps.Store); err != nil {
		return err
	}
	if err := recordSubmission(ctx, s.deps, storage.ClosedIssueNumber); err != nil {
		return err
	}

	if ctx.Planned(pipeline.EffectDeleteMedia) && s.deps.Media != nil {
		for _, url := range []string{ctx.Draft.ScreenshotURL, ctx.Draft.VideoURL} {
			if url != "" {
				s.deps.Media.DeleteURL(ctx.Ctx, url)
			}
		}
	}

	log.Printf("[report_closer] Closed report for form %s", ctx.Tenant.Form.ID)
	ctx.Result.Action = pipeline.OutcomeClosed
	ctx.Result.Message = ctx.Draft.Message
	if err := ctx.Advance(pipeline.EventFinalize); err != nil {
		return err
	}
	return pipeline.ErrSkipPipeline
}
