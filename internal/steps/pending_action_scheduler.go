package steps

import (
	"errors"
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/core/state"
)

// PendingActionScheduler parks a report with duplicate candidates until the
// reporter confirms or rejects them.
type PendingActionScheduler struct {
	pending state.Store
}

// NewPendingActionScheduler creates a new PendingActionScheduler step.
func NewPendingActionScheduler(deps *pipeline.Dependencies) *PendingActionScheduler {
	return &PendingActionScheduler{pending: deps.Pending}
}

// Name returns the step name.
func (s *PendingActionScheduler) Name() string {
	return "pending_action_scheduler"
}

// Run stores the draft under a fresh token. Nothing is charged or created yet.
func (s *PendingActionScheduler) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.HasDuplicates {
		return nil
	}
	if s.pending == nil {
		return apperror.New(apperror.KindConfiguration, "")
	}

	d := ctx.Draft
	offered := make([]int, 0, len(ctx.Duplicates))
	for _, c := range ctx.Duplicates {
		offered = append(offered, c.ID)
	}
	token, err := s.pending.Put(ctx.Ctx, state.PendingDecision{
		FormID:        d.FormID,
		Title:         d.Title,
		Content:       d.Content,
		Priority:      d.Priority,
		Message:       d.Message,
		Email:         d.Email,
		ScreenshotURL: d.ScreenshotURL,
		VideoURL:      d.VideoURL,
		ReporterIP:    d.ReporterIP,
		CandidateIDs:  offered,
	})
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "", err)
	}

	log.Printf("[pending_action_scheduler] Report for form %s awaiting duplicate confirmation", d.FormID)
	ctx.Result.Action = pipeline.OutcomeDuplicates
	ctx.Result.ReportID = token
	ctx.Result.Duplicates = ctx.Duplicates
	if err := ctx.Advance(pipeline.EventPendingStored); err != nil {
		return err
	}
	return pipeline.ErrSkipPipeline
}

// PendingResolver redeems a confirmation token for the parked report.
type PendingResolver struct {
	pending state.Store
}

// NewPendingResolver creates a new pending resolver step.
func NewPendingResolver(deps *pipeline.Dependencies) *PendingResolver {
	return &PendingResolver{pending: deps.Pending}
}

// Name returns the step name.
func (s *PendingResolver) Name() string {
	return "pending_resolver"
}

// Run takes the pending decision. A token redeems at most once; if the
// confirmation fails before anything is committed, Triage puts it back.
func (s *PendingResolver) Run(ctx *pipeline.Context) error {
	c := ctx.Confirmation
	if c == nil {
		return nil
	}
	if c.ReportID == "" {
		return apperror.New(apperror.KindValidation, "Missing report ID.")
	}
	if c.DuplicateIssueID != nil && *c.DuplicateIssueID <= 0 {
		return apperror.New(apperror.KindValidation, "Invalid duplicate issue ID.")
	}
	if s.pending == nil {
		return apperror.New(apperror.KindConfiguration, "")
	}

	d, err := s.pending.Take(ctx.Ctx, c.ReportID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return apperror.Wrap(apperror.KindInvalidToken, "Invalid or expired report ID.", err)
		}
		return apperror.Wrap(apperror.KindInternal, "", err)
	}
	ctx.PendingToken = c.ReportID
	ctx.Pending = &d

	if c.DuplicateIssueID != nil && !d.Offers(*c.DuplicateIssueID) {
		return apperror.New(apperror.KindValidation, "Invalid duplicate issue ID.")
	}

	ctx.Draft = &pipeline.Draft{
		FormID:        d.FormID,
		Title:         d.Title,
		Content:       d.Content,
		Priority:      d.Priority,
		Message:       d.Message,
		Email:         d.Email,
		ScreenshotURL: d.ScreenshotURL,
		VideoURL:      d.VideoURL,
		ReporterIP:    d.ReporterIP,
	}

	if c.DuplicateIssueID != nil {
		log.Printf("[pending_resolver] Report for form %s confirmed as duplicate of #%d", d.FormID, *c.DuplicateIssueID)
		return ctx.Advance(pipeline.EventDuplicateChosen)
	}
	log.Printf("[pending_resolver] Report for form %s is not a duplicate", d.FormID)
	return ctx.Advance(pipeline.EventNoneChosen)
}
