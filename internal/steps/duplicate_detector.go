package steps

import (
	"log"

	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// DuplicateDetector checks accepted reports against the repository's open issues.
type DuplicateDetector struct {
	deps *pipeline.Dependencies
}

// NewDuplicateDetector creates a new duplicate detector step.
func NewDuplicateDetector(deps *pipeline.Dependencies) *DuplicateDetector {
	return &DuplicateDetector{deps: deps}
}

// Name returns the step name.
func (s *DuplicateDetector) Name() string {
	return "duplicate_detector"
}

// Run shortlists duplicates for the cleaned title. Detection failures
// degrade to "no duplicates" inside the detector.
func (s *DuplicateDetector) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.ClassifiedSubmit {
		return nil
	}

	tracker, err := resolveTracker(ctx, s.deps.Trackers)
	if err != nil {
		return err
	}

	if s.deps.Duplicates == nil {
		log.Printf("[duplicate_detector] No detector configured, skipping duplicate detection")
		return ctx.Advance(pipeline.EventNoDuplicates)
	}

	candidates := s.deps.Duplicates.FindDuplicates(ctx.Ctx, tracker, ctx.Draft.Title)
	if len(candidates) == 0 {
		log.Printf("[duplicate_detector] No duplicates for %q in %s", ctx.Draft.Title, tracker.FullName())
		return ctx.Advance(pipeline.EventNoDuplicates)
	}

	log.Printf("[duplicate_detector] %d possible duplicates for %q", len(candidates), ctx.Draft.Title)
	ctx.Duplicates = candidates
	return ctx.Advance(pipeline.EventDuplicatesFound)
}

// DuplicateSkipper sends every accepted report straight to issue creation.
type DuplicateSkipper struct{}

// NewDuplicateSkipper creates a new duplicate skipper step.
func NewDuplicateSkipper(deps *pipeline.Dependencies) *DuplicateSkipper {
	return &DuplicateSkipper{}
}

// Name returns the step name.
func (s *DuplicateSkipper) Name() string {
	return "duplicate_skipper"
}

// Run marks the report as having no duplicates.
func (s *DuplicateSkipper) Run(ctx *pipeline.Context) error {
	if ctx.State != pipeline.ClassifiedSubmit {
		return nil
	}
	return ctx.Advance(pipeline.EventNoDuplicates)
}
