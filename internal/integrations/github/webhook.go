package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v60/github"
)

// Event aliases of the webhook payloads handled by the issue lifecycle listener.
type (
	IssuesEvent       = github.IssuesEvent
	RepositoryEvent   = github.RepositoryEvent
	InstallationEvent = github.InstallationEvent
)

// ErrInvalidSignature is returned when the X-Hub-Signature-256 header does not match.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ParseWebhook validates the request signature against secret and decodes the
// payload into one of the go-github event types. With an empty secret the
// signature is only checked when the header is present.
func ParseWebhook(r *http.Request, secret string) (string, interface{}, error) {
	payload, err := github.ValidatePayload(r, []byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := github.WebHookType(r)
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return eventType, nil, fmt.Errorf("failed to parse %q webhook: %w", eventType, err)
	}
	return eventType, event, nil
}
