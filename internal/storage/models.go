package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ClosedIssueNumber marks a submission that never reached the tracker.
const ClosedIssueNumber = -1

// User is a Bugspot account owning forms.
type User struct {
	ID               int64
	GitHubID         string
	Username         string
	Email            string
	SubscriptionTier int
	ReportAmount     int
	InstallationID   int64
	CreatedAt        time.Time
}

// Form is a report intake channel bound to one GitHub repository.
type Form struct {
	ID             string
	UserID         int64
	Name           string
	GitHubRepo     string
	DiscordWebhook string
	ShowIssueLink  bool
	CustomPrompt   string
	CreatedAt      time.Time
}

// FormWithOwner is a form joined with its owning user.
type FormWithOwner struct {
	Form  Form
	Owner User
}

// Submission is one ledger entry for a closed or submitted report.
type Submission struct {
	ID            string
	FormID        string
	IssueNumber   int
	Email         string
	ScreenshotKey string
	VideoKey      string
	ReporterIP    string
	IsClosed      bool
	CreatedAt     time.Time
}

// SubmissionWithForm is a ledger entry joined with the form settings needed for cleanup.
type SubmissionWithForm struct {
	Submission
	Repo          string
	ShowIssueLink bool
}
