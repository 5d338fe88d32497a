// Package server exposes the Bugspot HTTP API.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
)

const maxJSONBodySize = 64 << 10

// Triage runs reports through the triage pipelines.
type Triage interface {
	Submit(ctx context.Context, report *pipeline.Report) (*pipeline.Result, error)
	Confirm(ctx context.Context, confirmation *pipeline.Confirmation) (*pipeline.Result, error)
}

// Uploader stores reporter media.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error)
}

// EventHandler consumes parsed GitHub webhook events.
type EventHandler interface {
	Handle(ctx context.Context, event interface{}) error
}

// Options configures the API handler.
type Options struct {
	Triage        Triage
	Uploads       Uploader
	Events        EventHandler
	WebhookSecret string

	AllowedOrigins []string

	// TrustedProxies are the peers allowed to name the client IP in a
	// forwarding header. See ParseTrustedProxies.
	TrustedProxies []netip.Prefix
	IPHeader       string

	AIRequests     int
	AIWindow       time.Duration
	UploadRequests int
	UploadWindow   time.Duration
}

// New builds the API router.
func New(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(RealIP(opts.TrustedProxies, opts.IPHeader))
	r.Use(middleware.Recoverer)
	r.Use(CORS(opts.AllowedOrigins))

	r.Get("/api/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(opts.AIRequests, opts.AIWindow))
		r.Post("/api/report/ai", handleSubmit(opts.Triage))
		r.Put("/api/report/ai", handleConfirm(opts.Triage))
	})

	if opts.Uploads != nil {
		r.With(RateLimit(opts.UploadRequests, opts.UploadWindow)).
			Post("/api/report/file-upload", handleUpload(opts.Uploads))
	}

	if opts.Events != nil {
		r.Post("/api/github/webhook", handleWebhook(opts.Events, opts.WebhookSecret))
	}

	return r
}

// clientIP returns the request's remote host after RealIP rewriting.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responds with {"error": msg}. Details of server-side failures
// are logged, never returned.
func writeError(w http.ResponseWriter, err error) {
	status := apperror.Status(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[server] Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": apperror.PublicMessage(err)})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"clientAddress": clientIP(r),
	})
}
