// Package lifecycle reacts to GitHub issue, repository and installation
// events: it notifies reporters when their issue closes, purges their media
// and ledger entries, and keeps forms and owners in sync with GitHub.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/integrations/mail"
	"github.com/bugspot/bugspot/internal/storage"
)

// Ledger is the persistence the cleaner needs.
type Ledger interface {
	FindSubmissions(ctx context.Context, repo string, issueNumber *int) ([]storage.SubmissionWithForm, error)
	MarkSubmissionClosed(ctx context.Context, id string) error
	DeleteSubmission(ctx context.Context, id string) error
	RenameRepository(ctx context.Context, oldFullName, newFullName string) (int64, error)
	SetInstallation(ctx context.Context, githubID string, installationID int64) (bool, error)
	ClearInstallation(ctx context.Context, githubID string) (bool, error)
}

// ObjectDeleter removes uploaded media by key.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Mailer sends HTML mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Cleaner purges ledger entries once their issue is gone.
type Cleaner struct {
	ledger Ledger
	media  ObjectDeleter
	mailer Mailer
}

// NewCleaner creates a Cleaner. media and mailer may be nil.
func NewCleaner(ledger Ledger, media ObjectDeleter, mailer Mailer) *Cleaner {
	return &Cleaner{ledger: ledger, media: media, mailer: mailer}
}

// CleanupIssue finalizes every ledger entry for repo, or only those for
// issue when it is non-nil, and returns how many were removed.
func (c *Cleaner) CleanupIssue(ctx context.Context, repo string, issue *int) (int, error) {
	entries, err := c.ledger.FindSubmissions(ctx, repo, issue)
	if err != nil {
		return 0, fmt.Errorf("failed to find submissions for %s: %w", repo, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := c.cleanupEntry(ctx, entry); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		log.Printf("[lifecycle] Cleaned up %d reports for %s", removed, repo)
	}
	return removed, nil
}

// cleanupEntry marks the entry closed, mails the reporter, deletes media
// and finally drops the entry. Mail and media failures are logged only.
func (c *Cleaner) cleanupEntry(ctx context.Context, entry storage.SubmissionWithForm) error {
	if !entry.IsClosed {
		if err := c.ledger.MarkSubmissionClosed(ctx, entry.ID); err != nil {
			return fmt.Errorf("failed to mark submission %s closed: %w", entry.ID, err)
		}
	}

	if entry.Email != "" && c.mailer != nil && entry.IssueNumber != storage.ClosedIssueNumber {
		if err := c.notifyReporter(ctx, entry); err != nil {
			log.Printf("[lifecycle] Warning: failed to email reporter for %s#%d: %v (non-blocking)", entry.Repo, entry.IssueNumber, err)
		}
	}

	if c.media != nil {
		for _, key := range []string{entry.ScreenshotKey, entry.VideoKey} {
			if key == "" {
				continue
			}
			if err := c.media.Delete(ctx, key); err != nil {
				log.Printf("[lifecycle] Warning: failed to delete %s: %v (non-blocking)", key, err)
			}
		}
	}

	if err := c.ledger.DeleteSubmission(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to delete submission %s: %w", entry.ID, err)
	}
	return nil
}

func (c *Cleaner) notifyReporter(ctx context.Context, entry storage.SubmissionWithForm) error {
	subject, html, err := mail.ClosedReport(entry.Repo, entry.IssueNumber, entry.ShowIssueLink)
	if err != nil {
		return err
	}
	return c.mailer.Send(ctx, entry.Email, subject, html)
}

// Handle dispatches a parsed webhook event. Unhandled events are ignored.
func (c *Cleaner) Handle(ctx context.Context, event interface{}) error {
	switch e := event.(type) {
	case *github.IssuesEvent:
		return c.handleIssue(ctx, e)
	case *github.RepositoryEvent:
		return c.handleRepository(ctx, e)
	case *github.InstallationEvent:
		return c.handleInstallation(ctx, e)
	default:
		return nil
	}
}

func (c *Cleaner) handleIssue(ctx context.Context, e *github.IssuesEvent) error {
	switch e.GetAction() {
	case "closed", "deleted":
	default:
		return nil
	}
	number := e.GetIssue().GetNumber()
	_, err := c.CleanupIssue(ctx, e.GetRepo().GetFullName(), &number)
	return err
}

func (c *Cleaner) handleRepository(ctx context.Context, e *github.RepositoryEvent) error {
	repo := e.GetRepo()
	switch e.GetAction() {
	case "deleted":
		_, err := c.CleanupIssue(ctx, repo.GetFullName(), nil)
		return err

	case "renamed":
		if e.Changes == nil || e.Changes.Repo == nil || e.Changes.Repo.Name == nil || e.Changes.Repo.Name.From == nil {
			return nil
		}
		owner := repo.GetOwner().GetLogin()
		oldFullName := owner + "/" + *e.Changes.Repo.Name.From
		newFullName := owner + "/" + repo.GetName()

		n, err := c.ledger.RenameRepository(ctx, oldFullName, newFullName)
		if err != nil {
			return fmt.Errorf("failed to rename %s: %w", oldFullName, err)
		}
		log.Printf("[lifecycle] Repository renamed from %s to %s, updated %d forms", oldFullName, newFullName, n)
		return nil
	}
	return nil
}

func (c *Cleaner) handleInstallation(ctx context.Context, e *github.InstallationEvent) error {
	senderID := e.GetSender().GetID()
	if senderID == 0 {
		return nil
	}
	githubID := strconv.FormatInt(senderID, 10)

	switch e.GetAction() {
	case "created":
		installationID := e.GetInstallation().GetID()
		if installationID == 0 {
			return nil
		}
		ok, err := c.ledger.SetInstallation(ctx, githubID, installationID)
		if err != nil {
			return fmt.Errorf("failed to set installation for %s: %w", githubID, err)
		}
		if ok {
			log.Printf("[lifecycle] GitHub user %s installed the app (installation %d)", githubID, installationID)
		}
	case "deleted":
		ok, err := c.ledger.ClearInstallation(ctx, githubID)
		if err != nil {
			return fmt.Errorf("failed to clear installation for %s: %w", githubID, err)
		}
		if ok {
			log.Printf("[lifecycle] GitHub user %s uninstalled the app", githubID)
		}
	}
	return nil
}
