package steps

import (
	"context"
	"fmt"
	"log"

	"github.com/bugspot/bugspot/internal/core/config"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/core/state"
)

// Triage runs the report and confirmation pipelines.
type Triage struct {
	cfg     *config.Config
	report  *pipeline.Pipeline
	confirm *pipeline.Pipeline
	pending state.Store
}

// NewTriage builds both pipelines. The report pipeline honors the configured
// workflow or step list; confirmation always uses its preset.
func NewTriage(cfg *config.Config, deps *pipeline.Dependencies) (*Triage, error) {
	registry := pipeline.NewRegistry()
	RegisterAll(registry)

	report, err := registry.BuildFromNames(pipeline.ResolveSteps(cfg.Steps, cfg.Workflow), deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build report pipeline: %w", err)
	}
	confirm, err := registry.BuildFromNames(pipeline.Presets[pipeline.PresetDuplicateConfirmation], deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build confirmation pipeline: %w", err)
	}

	return &Triage{cfg: cfg, report: report, confirm: confirm, pending: deps.Pending}, nil
}

// Submit triages a new report.
func (t *Triage) Submit(ctx context.Context, report *pipeline.Report) (*pipeline.Result, error) {
	return t.run(t.report, pipeline.NewContext(ctx, report, t.cfg))
}

// Confirm resolves a report parked with duplicate candidates. A confirmation
// that fails before charging quota or touching the tracker leaves the report
// parked under the same ID.
func (t *Triage) Confirm(ctx context.Context, confirmation *pipeline.Confirmation) (*pipeline.Result, error) {
	pctx := pipeline.NewConfirmationContext(ctx, confirmation, t.cfg)
	res, err := t.run(t.confirm, pctx)
	if err != nil {
		t.restore(pctx)
	}
	return res, err
}

func (t *Triage) restore(pctx *pipeline.Context) {
	if pctx.Pending == nil || pctx.Committed || t.pending == nil {
		return
	}
	ctx := context.WithoutCancel(pctx.Ctx)
	if err := t.pending.Restore(ctx, pctx.PendingToken, *pctx.Pending); err != nil {
		log.Printf("[triage] Warning: failed to restore pending report for form %s: %v", pctx.Pending.FormID, err)
		return
	}
	log.Printf("[triage] Pending report for form %s kept after failed confirmation", pctx.Pending.FormID)
}

func (t *Triage) run(p *pipeline.Pipeline, pctx *pipeline.Context) (*pipeline.Result, error) {
	if err := p.Run(pctx); err != nil {
		return nil, err
	}
	if !pipeline.Terminal(pctx.State) {
		return nil, fmt.Errorf("triage stopped in state %s", pctx.State)
	}
	return pctx.Result, nil
}
