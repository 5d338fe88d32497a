package steps

import (
	"strings"
	"unicode/utf8"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

// Validator checks the required report fields and media URLs.
type Validator struct {
	media pipeline.MediaStore
}

// NewValidator creates a new validator step.
func NewValidator(deps *pipeline.Dependencies) *Validator {
	return &Validator{media: deps.Media}
}

// Name returns the step name.
func (s *Validator) Name() string {
	return "validator"
}

// Run validates the report and moves it to Validated.
func (s *Validator) Run(ctx *pipeline.Context) error {
	r := ctx.Report
	if r == nil {
		return nil
	}

	if strings.TrimSpace(r.FormID) == "" || strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Description) == "" {
		return apperror.New(apperror.KindValidation, "Missing required fields id, title and description.")
	}

	if limit := ctx.Config.Limits.MaxCustomDataChars; utf8.RuneCountInString(r.CustomData) > limit {
		return apperror.New(apperror.KindValidation, "Custom data too large.")
	}

	for _, url := range []string{r.ScreenshotURL, r.VideoURL} {
		if url == "" {
			continue
		}
		if s.media == nil {
			return apperror.New(apperror.KindValidation, "Media uploads are not enabled.")
		}
		if _, ok := s.media.KeyFromURL(url); !ok {
			return apperror.New(apperror.KindValidation, "Invalid media URL.")
		}
	}

	return ctx.Advance(pipeline.EventValidated)
}
