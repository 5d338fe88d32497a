package steps

import (
	"fmt"
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// DuplicateMerger folds a confirmed duplicate into the existing issue.
type DuplicateMerger struct {
	deps *pipeline.Dependencies
}

// NewDuplicateMerger creates a new duplicate merger step.
func NewDuplicateMerger(deps *pipeline.Dependencies) *DuplicateMerger {
	return &DuplicateMerger{deps: deps}
}

// Name returns the step name.
func (s *DuplicateMerger) Name() string {
	return "duplicate_merger"
}

// Run reacts to the original issue and comments when the report adds
// something new. Reaction and comment failures are logged only.
func (s *DuplicateMerger) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.DuplicateChosen {
		return nil
	}

	tracker, err := resolveTracker(ctx, s.deps.Trackers)
	if err != nil {
		return err
	}

	number := *ctx.Confirmation.DuplicateIssueID
	original, err := tracker.GetIssue(ctx.Ctx, number)
	if err != nil {
		return apperror.Wrap(apperror.KindUpstream, "", fmt.Errorf("failed to fetch issue #%d: %w", number, err))
	}

	var hasNewInfo bool
	var comment string
	if s.deps.Duplicates != nil {
		hasNewInfo, comment = s.deps.Duplicates.HasNewInformation(ctx.Ctx, original, ctx.Draft.Title, ctx.Draft.Content)
	}

	if err := consumeQuota(ctx, s.deps.Store); err != nil {
		return err
	}

	if ctx.Planned(pipeline.EffectReactAndComment) {
		ctx.Committed = true
		if err := tracker.AddReaction(ctx.Ctx, number); err != nil {
			log.Printf("[duplicate_merger] Warning: failed to react to #%d: %v (non-blocking)", number, err)
		}
		if hasNewInfo {
			if err := tracker.AddComment(ctx.Ctx, number, comment); err != nil {
				log.Printf("[duplicate_merger] Warning: failed to comment on #%d: %v (non-blocking)", number, err)
			} else {
				ctx.Result.Commented = true
			}
		}
	}

	if err := recordSubmission(ctx, s.deps, number); err != nil {
		return err
	}

	issueURL := original.URL
	if issueURL == "" {
		issueURL = fmt.Sprintf("https://github.com/%s/issues/%d", tracker.FullName(), number)
	}

	log.Printf("[duplicate_merger] Merged report into %s#%d (new info: %v)", tracker.FullName(), number, hasNewInfo)
	ctx.Result.Action = pipeline.OutcomeDuplicateHandled
	ctx.Result.Message = ctx.Draft.Message
	ctx.Result.IssueURL = issueURL
	ctx.Result.IssueNumber = number
	if err := ctx.Advance(pipeline.EventFinalize); err != nil {
		return err
	}
	return pipeline.ErrSkipPipeline
}
