package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/duplicates"
	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/lifecycle"
)

// CaptchaHeader carries the Turnstile token.
const CaptchaHeader = "cf-turnstile-response"

type reportRequest struct {
	FormID                string          `json:"formId"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	ExpectedResult        string          `json:"expectedResult"`
	ObservedResult        string          `json:"observedResult"`
	Steps                 []string        `json:"steps"`
	Email                 string          `json:"email"`
	UserAgent             string          `json:"userAgent"`
	CustomData            json.RawMessage `json:"customData"`
	ScreenshotURL         string          `json:"screenshotUrl"`
	VideoURL              string          `json:"videoUrl"`
	QuestionAnswerHistory string          `json:"questionAnswerHistory"`
	Demo                  bool            `json:"demo"`
}

type confirmRequest struct {
	ReportID         string `json:"reportId"`
	DuplicateIssueID *int   `json:"duplicateIssueId"`
	Demo             bool   `json:"demo"`
}

type reportResponse struct {
	Action     string                 `json:"action"`
	Message    string                 `json:"message,omitempty"`
	IssueURL   string                 `json:"issueUrl,omitempty"`
	ReportID   string                 `json:"reportId,omitempty"`
	Duplicates []duplicates.Candidate `json:"duplicates,omitempty"`
}

var errBadBody = apperror.New(apperror.KindValidation, "Invalid request body.")

// customDataString keeps string blobs as-is and passes any other JSON through verbatim.
func customDataString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func toResponse(res *pipeline.Result) reportResponse {
	return reportResponse{
		Action:     string(res.Action),
		Message:    res.Message,
		IssueURL:   res.IssueURL,
		ReportID:   res.ReportID,
		Duplicates: res.Duplicates,
	}
}

func handleSubmit(triage Triage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errBadBody)
			return
		}

		res, err := triage.Submit(r.Context(), &pipeline.Report{
			FormID:                req.FormID,
			Title:                 req.Title,
			Description:           req.Description,
			ExpectedResult:        req.ExpectedResult,
			ObservedResult:        req.ObservedResult,
			Steps:                 req.Steps,
			Email:                 req.Email,
			UserAgent:             req.UserAgent,
			CustomData:            customDataString(req.CustomData),
			ScreenshotURL:         req.ScreenshotURL,
			VideoURL:              req.VideoURL,
			QuestionAnswerHistory: req.QuestionAnswerHistory,
			Demo:                  req.Demo,
			CaptchaToken:          r.Header.Get(CaptchaHeader),
			ClientIP:              clientIP(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(res))
	}
}

func handleConfirm(triage Triage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errBadBody)
			return
		}

		res, err := triage.Confirm(r.Context(), &pipeline.Confirmation{
			ReportID:         req.ReportID,
			DuplicateIssueID: req.DuplicateIssueID,
			Demo:             req.Demo,
			ClientIP:         clientIP(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(res))
	}
}

func handleUpload(uploads Uploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, lifecycle.MaxVideoSize+(1<<20))
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, apperror.New(apperror.KindValidation, "No file provided"))
			return
		}
		defer file.Close()

		url, err := uploads.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, file)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

func handleWebhook(events EventHandler, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventType, event, err := github.ParseWebhook(r, secret)
		if errors.Is(err, github.ErrInvalidSignature) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
			return
		}
		if err != nil {
			log.Printf("[server] Rejected %q webhook: %v", eventType, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
			return
		}

		if err := events.Handle(r.Context(), event); err != nil {
			log.Printf("[server] Webhook %q failed: %v", eventType, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook processing failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
