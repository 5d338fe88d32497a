package steps

import (
	"errors"
	"log"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/integrations/captcha"
)

// CaptchaGate rejects reports that fail human verification.
type CaptchaGate struct {
	verifier pipeline.CaptchaVerifier
}

// NewCaptchaGate creates a new captcha step.
func NewCaptchaGate(deps *pipeline.Dependencies) *CaptchaGate {
	return &CaptchaGate{verifier: deps.Captcha}
}

// Name returns the step name.
func (s *CaptchaGate) Name() string {
	return "captcha"
}

// Run verifies the Turnstile token sent with the report.
func (s *CaptchaGate) Run(ctx *pipeline.Context) error {
	if ctx.Report == nil {
		return nil
	}
	if s.verifier == nil {
		log.Printf("[captcha] No verifier configured, skipping verification")
		return nil
	}

	err := s.verifier.Verify(ctx.Ctx, ctx.Report.CaptchaToken, ctx.Report.ClientIP)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, captcha.ErrMissingToken):
		return apperror.Wrap(apperror.KindCaptchaMissing, "Captcha token missing.", err)
	case errors.Is(err, captcha.ErrRejected):
		return apperror.Wrap(apperror.KindCaptchaRejected, "Captcha validation failed.", err)
	default:
		return apperror.Wrap(apperror.KindUpstream, "Captcha validation failed.", err)
	}
}
