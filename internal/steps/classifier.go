package steps

import (
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/integrations/llm"
)

// Classifier asks the model whether to question, close or submit the report.
type Classifier struct {
	llm llm.Client
}

// NewClassifier creates a new classifier step.
func NewClassifier(deps *pipeline.Dependencies) *Classifier {
	return &Classifier{llm: deps.LLM}
}

// Name returns the step name.
func (s *Classifier) Name() string {
	return "classifier"
}

// Run classifies a validated report.
func (s *Classifier) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.Validated {
		return nil
	}

	r := ctx.Report
	in := llm.ReportInput{
		Title:                 r.Title,
		Description:           r.Description,
		ExpectedResult:        r.ExpectedResult,
		ObservedResult:        r.ObservedResult,
		Steps:                 r.Steps,
		Email:                 r.Email,
		UserAgent:             r.UserAgent,
		CustomData:            r.CustomData,
		ScreenshotURL:         r.ScreenshotURL,
		VideoURL:              r.VideoURL,
		QuestionAnswerHistory: r.QuestionAnswerHistory,
	}
	if ctx.Tenant != nil {
		in.Guidelines = ctx.Tenant.Form.CustomPrompt
	}

	userContent := llm.BuildClassificationUserContent(in)
	if n := utf8.RuneCountInString(userContent); n > ctx.Config.Limits.MaxInputChars {
		log.Printf("[classifier] Rejecting %d chars of input (limit %d)", n, ctx.Config.Limits.MaxInputChars)
		return apperror.New(apperror.KindInputTooLarge, "Input too large!")
	}

	if s.llm == nil {
		return apperror.New(apperror.KindConfiguration, "")
	}

	raw, err := s.llm.Complete(ctx.Ctx, llm.BuildClassificationMessages(in, userContent))
	if err != nil {
		return apperror.Wrap(apperror.KindUpstream, "", fmt.Errorf("classification request failed: %w", err))
	}

	decision, err := llm.ParseDecision(raw)
	if err != nil {
		return apperror.Wrap(apperror.KindMalformedDecision, "", err)
	}
	ctx.Decision = decision
	ctx.Draft = &pipeline.Draft{
		FormID:        r.FormID,
		Email:         r.Email,
		ScreenshotURL: r.ScreenshotURL,
		VideoURL:      r.VideoURL,
		ReporterIP:    r.ClientIP,
	}

	log.Printf("[classifier] Form %s: %s", r.FormID, decision.Action())

	switch d := decision.(type) {
	case llm.AskQuestion:
		ctx.Draft.Message = d.Message
		return ctx.Advance(pipeline.EventAskQuestion)
	case llm.CloseReport:
		ctx.Draft.Message = d.Message
		return ctx.Advance(pipeline.EventCloseReport)
	case llm.SubmitReport:
		ctx.Draft.Title = d.Title
		ctx.Draft.Content = d.Content
		ctx.Draft.Priority = d.Priority
		ctx.Draft.Message = d.Message
		return ctx.Advance(pipeline.EventSubmitReport)
	default:
		return apperror.New(apperror.KindMalformedDecision, "")
	}
}
