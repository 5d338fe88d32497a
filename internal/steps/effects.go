// Package steps contains the triage pipeline steps.
// Each step implements the pipeline.Step interface and acts only in the
// states it owns, so presets can be reordered without surprises.
package steps

import (
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/storage"
)

// resolveTracker returns the form's repository, resolving it once per request.
func resolveTracker(ctx *pipeline.Context, trackers pipeline.TrackerResolver) (github.Tracker, error) {
	if ctx.Tracker != nil {
		return ctx.Tracker, nil
	}
	if trackers == nil {
		return nil, apperror.New(apperror.KindConfiguration, "")
	}
	if ctx.Tenant == nil {
		return nil, apperror.New(apperror.KindInternal, "")
	}

	tracker, err := trackers.Resolve(ctx.Ctx, github.Target{
		Repo:           ctx.Tenant.Form.GitHubRepo,
		InstallationID: ctx.Tenant.Owner.InstallationID,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindConfiguration, "", err)
	}
	ctx.Tracker = tracker
	return tracker, nil
}

// consumeQuota charges the form owner one report when the current path
// planned it. Demo requests are never charged.
func consumeQuota(ctx *pipeline.Context, store pipeline.TenantStore) error {
	if !ctx.Planned(pipeline.EffectConsumeQuota) || ctx.Result.QuotaConsumed {
		return nil
	}
	if ctx.Demo() {
		log.Printf("[quota] Demo request for form %s, quota untouched", ctx.Tenant.Form.ID)
		return nil
	}
	if err := store.IncrementReportAmount(ctx.Ctx, ctx.Tenant.Owner.ID); err != nil {
		return apperror.Wrap(apperror.KindInternal, "", err)
	}
	ctx.Committed = true
	ctx.Result.QuotaConsumed = true
	return nil
}

// recordSubmission writes the request's single ledger entry.
func recordSubmission(ctx *pipeline.Context, deps *pipeline.Dependencies, issueNumber int) error {
	if !ctx.Planned(pipeline.EffectRecordSubmission) {
		return nil
	}

	draft := ctx.Draft
	sub := storage.Submission{
		FormID:      ctx.Tenant.Form.ID,
		IssueNumber: issueNumber,
		IsClosed:    issueNumber == storage.ClosedIssueNumber,
		Email:       draft.Email,
		ReporterIP:  draft.ReporterIP,
		CreatedAt:   deps.Clock(),
	}
	if deps.Media != nil {
		if key, ok := deps.Media.KeyFromURL(draft.ScreenshotURL); ok {
			sub.ScreenshotKey = key
		}
		if key, ok := deps.Media.KeyFromURL(draft.VideoURL); ok {
			sub.VideoKey = key
		}
	}

	saved, err := deps.Store.RecordSubmission(ctx.Ctx, sub)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "", err)
	}
	ctx.Result.SubmissionID = saved.ID
	return nil
}
