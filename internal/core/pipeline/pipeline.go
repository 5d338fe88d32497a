// Package pipeline provides the core pipeline engine for Bugspot triage.
// It defines the Step interface and Context structure used by all pipeline steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/bugspot/bugspot/internal/core/config"
	"github.com/bugspot/bugspot/internal/core/state"
	"github.com/bugspot/bugspot/internal/duplicates"
	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/integrations/llm"
	"github.com/bugspot/bugspot/internal/storage"
)

// ErrSkipPipeline indicates that the pipeline should stop gracefully.
// Steps return it once a terminal response has been decided.
var ErrSkipPipeline = errors.New("skip remaining pipeline steps")

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Name returns the unique identifier for this step.
	Name() string

	// Run executes the step's logic.
	// It should return ErrSkipPipeline to stop the pipeline gracefully,
	// or any other error to indicate failure.
	Run(ctx *Context) error
}

// Report is a bug report submitted through a form.
type Report struct {
	FormID                string
	Title                 string
	Description           string
	ExpectedResult        string
	ObservedResult        string
	Steps                 []string
	Email                 string
	UserAgent             string
	CustomData            string
	ScreenshotURL         string
	VideoURL              string
	QuestionAnswerHistory string
	// Demo reports never consume quota.
	Demo bool

	CaptchaToken string
	ClientIP     string
}

// Confirmation resolves a pending duplicate decision.
type Confirmation struct {
	ReportID string
	// DuplicateIssueID is the chosen duplicate, or nil for "none of these".
	DuplicateIssueID *int
	Demo             bool
	ClientIP         string
}

// Draft is a report accepted for the tracker but not yet filed.
type Draft struct {
	FormID        string
	Title         string
	Content       string
	Priority      llm.Priority
	Message       string
	Email         string
	ScreenshotURL string
	VideoURL      string
	ReporterIP    string
}

// Outcome is the action reported back to the client.
type Outcome string

const (
	OutcomeQuestion         Outcome = "question"
	OutcomeClosed           Outcome = "closed"
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeDuplicates       Outcome = "duplicates"
	OutcomeDuplicateHandled Outcome = "duplicate_handled"
)

// Result holds the accumulated results from pipeline execution.
type Result struct {
	Action      Outcome
	Message     string
	IssueURL    string
	IssueNumber int
	ReportID    string
	Duplicates  []duplicates.Candidate

	QuotaConsumed bool
	SubmissionID  string
	Commented     bool
}

// Context carries data through the pipeline steps.
type Context struct {
	// Ctx is the Go context for cancellation and timeouts.
	Ctx context.Context

	// Config is the loaded configuration.
	Config *config.Config

	// State is the current triage state; see Next.
	State State

	// Report is set on the triage path, Confirmation on the confirmation path.
	Report       *Report
	Confirmation *Confirmation

	// Tenant is the form and its owner, loaded by tenant_loader.
	Tenant *storage.FormWithOwner

	// Tracker is the form's repository, resolved on first use.
	Tracker github.Tracker

	// Decision is the classifier output.
	Decision llm.Decision

	// Draft is the report to file or merge.
	Draft *Draft

	// Duplicates are the candidates found for Draft.
	Duplicates []duplicates.Candidate

	// Result accumulates the processing results.
	Result *Result

	// PendingToken and Pending are the parked report a confirmation redeemed.
	PendingToken string
	Pending      *state.PendingDecision

	// Committed is set once the request has charged quota or changed the
	// tracker. Until then a failed confirmation can be put back.
	Committed bool

	// Metadata allows steps to pass arbitrary data to subsequent steps.
	Metadata map[string]interface{}

	planned map[Effect]bool
}

// NewContext creates a pipeline context for a submitted report.
func NewContext(ctx context.Context, report *Report, cfg *config.Config) *Context {
	return newContext(ctx, cfg, Received, report, nil)
}

// NewConfirmationContext creates a pipeline context for a duplicate confirmation.
func NewConfirmationContext(ctx context.Context, confirmation *Confirmation, cfg *config.Config) *Context {
	return newContext(ctx, cfg, AwaitingConfirmation, nil, confirmation)
}

func newContext(ctx context.Context, cfg *config.Config, initial State, report *Report, confirmation *Confirmation) *Context {
	return &Context{
		Ctx:          ctx,
		Config:       cfg,
		State:        initial,
		Report:       report,
		Confirmation: confirmation,
		Result:       &Result{},
		Metadata:     make(map[string]interface{}),
		planned:      make(map[Effect]bool),
	}
}

// Advance applies event to the current state and records the effects the
// transition plans.
func (c *Context) Advance(event Event) error {
	next, effects, err := Next(c.State, event)
	if err != nil {
		return err
	}
	c.State = next
	for _, e := range effects {
		c.planned[e] = true
	}
	return nil
}

// Planned reports whether a transition so far has planned effect e.
func (c *Context) Planned(e Effect) bool {
	return c.planned[e]
}

// Demo reports whether quota consumption is suppressed for this request.
func (c *Context) Demo() bool {
	if c.Report != nil {
		return c.Report.Demo
	}
	return c.Confirmation != nil && c.Confirmation.Demo
}

// FormID returns the form the request targets.
func (c *Context) FormID() string {
	if c.Report != nil {
		return c.Report.FormID
	}
	if c.Draft != nil {
		return c.Draft.FormID
	}
	return ""
}

// Pipeline executes a sequence of steps.
type Pipeline struct {
	steps []Step
}

// New creates a new pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Run executes all steps in order.
// Stops on the first error (unless it's ErrSkipPipeline, which is graceful).
func (p *Pipeline) Run(ctx *Context) error {
	for _, step := range p.steps {
		if err := step.Run(ctx); err != nil {
			if errors.Is(err, ErrSkipPipeline) {
				return nil
			}
			return fmt.Errorf("step '%s' failed: %w", step.Name(), err)
		}
	}
	return nil
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// Steps returns the list of steps (for introspection).
func (p *Pipeline) Steps() []Step {
	return p.steps
}
