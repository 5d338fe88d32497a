package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bugspot/bugspot/internal/core/state"
	"github.com/bugspot/bugspot/internal/duplicates"
	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/integrations/llm"
	"github.com/bugspot/bugspot/internal/storage"
)

// Registry holds registered step factories.
// Step factories create Step instances, allowing for dependency injection.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StepFactory
}

// StepFactory is a function that creates a Step.
// It receives dependencies (like clients, config) as parameters.
type StepFactory func(deps *Dependencies) (Step, error)

// TenantStore is the slice of persistence the triage steps need.
type TenantStore interface {
	GetFormWithOwner(ctx context.Context, formID string) (storage.FormWithOwner, error)
	IncrementReportAmount(ctx context.Context, userID int64) error
	RecordSubmission(ctx context.Context, sub storage.Submission) (storage.Submission, error)
	CountSubmissionsFromIP(ctx context.Context, ip string, since time.Time) (int, error)
}

// TrackerResolver returns the issue tracker for a form's repository.
type TrackerResolver interface {
	Resolve(ctx context.Context, target github.Target) (github.Tracker, error)
}

// DuplicateFinder shortlists and compares duplicate issues.
type DuplicateFinder interface {
	FindDuplicates(ctx context.Context, source duplicates.IssueSource, title string) []duplicates.Candidate
	HasNewInformation(ctx context.Context, original *github.IssueContent, title, content string) (bool, string)
}

// MediaStore maps public media URLs to bucket keys.
type MediaStore interface {
	BaseURL() string
	KeyFromURL(url string) (string, bool)
	DeleteURL(ctx context.Context, url string)
}

// CaptchaVerifier checks a human-verification token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Notifier announces newly filed issues.
type Notifier interface {
	Notify(ctx context.Context, webhookURL, title, issueURL, repo string)
}

// Dependencies holds the dependencies that can be injected into steps.
type Dependencies struct {
	Store      TenantStore
	Trackers   TrackerResolver
	LLM        llm.Client
	Duplicates DuplicateFinder
	Pending    state.Store
	Media      MediaStore
	Captcha    CaptchaVerifier
	Notifier   Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

// Clock returns deps.Now or time.Now.
func (d *Dependencies) Clock() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewRegistry creates a new step registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StepFactory),
	}
}

// Register adds a step factory to the registry.
func (r *Registry) Register(name string, factory StepFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get retrieves a step factory by name.
func (r *Registry) Get(name string) (StepFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	return factory, ok
}

// BuildFromNames creates a pipeline from a list of step names.
func (r *Registry) BuildFromNames(names []string, deps *Dependencies) (*Pipeline, error) {
	var steps []Step
	for _, name := range names {
		factory, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown step: %s", name)
		}
		step, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create step '%s': %w", name, err)
		}
		steps = append(steps, step)
	}
	return New(steps...), nil
}

const (
	// PresetReportTriage classifies a new report and files, closes or parks it.
	PresetReportTriage = "report-triage"
	// PresetDuplicateConfirmation resolves a parked report.
	PresetDuplicateConfirmation = "duplicate-confirmation"
	// PresetNoDuplicates files every accepted report without a duplicate check.
	PresetNoDuplicates = "no-duplicates"
)

// Presets defines the built-in workflow presets.
var Presets = map[string][]string{
	PresetReportTriage: {
		"captcha",
		"submission_limit",
		"validator",
		"tenant_loader",
		"quota_checker",
		"classifier",
		"question_responder",
		"report_closer",
		"duplicate_detector",
		"pending_action_scheduler",
		"issue_creator",
	},

	PresetNoDuplicates: {
		"captcha",
		"submission_limit",
		"validator",
		"tenant_loader",
		"quota_checker",
		"classifier",
		"question_responder",
		"report_closer",
		"duplicate_skipper",
		"issue_creator",
	},

	PresetDuplicateConfirmation: {
		"pending_resolver",
		"tenant_loader",
		"duplicate_merger",
		"issue_creator",
	},
}

// GetPreset returns the step names for a preset workflow.
func GetPreset(name string) ([]string, bool) {
	steps, ok := Presets[name]
	return steps, ok
}

// ResolveSteps determines the steps to use based on config.
// Priority: explicit steps > workflow preset > default
func ResolveSteps(explicitSteps []string, workflow string) []string {
	if len(explicitSteps) > 0 {
		return explicitSteps
	}
	if workflow != "" {
		if preset, ok := GetPreset(workflow); ok {
			return preset
		}
	}
	return Presets[PresetReportTriage]
}
