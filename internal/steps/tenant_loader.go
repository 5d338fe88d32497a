package steps

import (
	"errors"
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/storage"
)

// TenantLoader loads the form and its owner.
type TenantLoader struct {
	store pipeline.TenantStore
}

// NewTenantLoader creates a new tenant loader step.
func NewTenantLoader(deps *pipeline.Dependencies) *TenantLoader {
	return &TenantLoader{store: deps.Store}
}

// Name returns the step name.
func (s *TenantLoader) Name() string {
	return "tenant_loader"
}

// Run looks up the form the request targets.
func (s *TenantLoader) Run(ctx *pipeline.Context) error {
	formID := ctx.FormID()
	tenant, err := s.store.GetFormWithOwner(ctx.Ctx, formID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperror.Wrap(apperror.KindNotFound, "Form not found", err)
	}
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "", err)
	}

	log.Printf("[tenant_loader] Form %s -> %s (tier %d, %d reports used)",
		formID, tenant.Form.GitHubRepo, tenant.Owner.SubscriptionTier, tenant.Owner.ReportAmount)
	ctx.Tenant = &tenant
	return nil
}
