package steps

import (
	"fmt"
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// IssueCreator files the draft as a new issue.
type IssueCreator struct {
	deps *pipeline.Dependencies
}

// NewIssueCreator creates a new issue creator step.
func NewIssueCreator(deps *pipeline.Dependencies) *IssueCreator {
	return &IssueCreator{deps: deps}
}

// Name returns the step name.
func (s *IssueCreator) Name() string {
	return "issue_creator"
}

// Run charges quota, creates the issue, records it and notifies Discord.
func (s *IssueCreator) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.NoDuplicates {
		return nil
	}

	tracker, err := resolveTracker(ctx, s.deps.Trackers)
	if err != nil {
		return err
	}
	if err := consumeQuota(ctx, s.deps.Store); err != nil {
		return err
	}

	d := ctx.Draft
	labels := []string{"bug", string(d.Priority)}
	issue, err := tracker.CreateIssue(ctx.Ctx, d.Title, d.Content, labels)
	if err != nil {
		return apperror.Wrap(apperror.KindUpstream, "", fmt.Errorf("failed to create issue: %w", err))
	}
	ctx.Committed = true
	log.Printf("[issue_creator] Created %s#%d", tracker.FullName(), issue.Number)

	if err := recordSubmission(ctx, s.deps, issue.Number); err != nil {
		return err
	}

	if ctx.Planned(pipeline.EffectNotify) && s.deps.Notifier != nil && ctx.Tenant.Form.DiscordWebhook != "" {
		s.deps.Notifier.Notify(ctx.Ctx, ctx.Tenant.Form.DiscordWebhook, d.Title, issue.URL, tracker.FullName())
	}

	ctx.Result.Action = pipeline.OutcomeSubmitted
	ctx.Result.Message = d.Message
	ctx.Result.IssueURL = issue.URL
	ctx.Result.IssueNumber = issue.Number
	return ctx.Advance(pipeline.EventFinalize)
}
