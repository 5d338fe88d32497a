// Package duplicates asks the LLM which open issues a new report duplicates
// and whether a confirmed duplicate adds anything to the original.
//
// Both operations fail open: errors are logged and reported as "no duplicates"
// or "no new information" so triage never blocks on them.
package duplicates

import (
	"context"
	"log"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/integrations/llm"
)

const (
	defaultMaxResults = 3
	defaultScanLimit  = 100
	fetchConcurrency  = 3

	commentPrefix = "An additional report"
	redacted      = "[email redacted]"
)

// Candidate is a likely duplicate offered to the reporter.
type Candidate struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// IssueSource is the part of the tracker the detector reads from.
type IssueSource interface {
	ListOpenIssueTitles(ctx context.Context, limit int) ([]github.IssueSummary, error)
	GetIssue(ctx context.Context, number int) (*github.IssueContent, error)
}

// Options configures a Detector.
type Options struct {
	MaxResults int
	ScanLimit  int
}

// Detector finds duplicate issues with an LLM shortlist.
type Detector struct {
	llm        llm.Client
	maxResults int
	scanLimit  int
}

// NewDetector creates a Detector.
func NewDetector(client llm.Client, opts Options) *Detector {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.ScanLimit <= 0 || opts.ScanLimit > defaultScanLimit {
		opts.ScanLimit = defaultScanLimit
	}
	return &Detector{llm: client, maxResults: opts.MaxResults, scanLimit: opts.ScanLimit}
}

// FindDuplicates returns up to MaxResults open issues the model judges very
// likely to be the same bug as title, with emails redacted from their bodies.
// It returns nil when there are none or anything fails.
func (d *Detector) FindDuplicates(ctx context.Context, source IssueSource, title string) []Candidate {
	open, err := source.ListOpenIssueTitles(ctx, d.scanLimit)
	if err != nil {
		log.Printf("[duplicates] Failed to list open issues: %v (non-blocking)", err)
		return nil
	}
	if len(open) == 0 {
		return nil
	}

	known := make(map[int]bool, len(open))
	titles := make([]llm.IssueTitle, 0, len(open))
	for _, issue := range open {
		known[issue.Number] = true
		titles = append(titles, llm.IssueTitle{Number: issue.Number, Title: issue.Title})
	}

	raw, err := d.llm.Complete(ctx, llm.BuildDuplicatePrompt(title, titles))
	if err != nil {
		log.Printf("[duplicates] Shortlist request failed: %v (non-blocking)", err)
		return nil
	}
	ids, err := llm.ParseDuplicateIDs(raw)
	if err != nil {
		log.Printf("[duplicates] Failed to parse shortlist: %v (non-blocking)", err)
		return nil
	}

	var shortlist []int
	for _, id := range ids {
		if !known[id] {
			log.Printf("[duplicates] Ignoring #%d: not an open issue", id)
			continue
		}
		shortlist = append(shortlist, id)
		if len(shortlist) == d.maxResults {
			break
		}
	}
	if len(shortlist) == 0 {
		return nil
	}

	candidates := make([]Candidate, len(shortlist))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range shortlist {
		g.Go(func() error {
			issue, err := source.GetIssue(gctx, id)
			if err != nil {
				return err
			}
			candidates[i] = Candidate{ID: issue.Number, Title: issue.Title, Body: RedactEmails(issue.Body)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[duplicates] Failed to fetch duplicate contents: %v (non-blocking)", err)
		return nil
	}

	log.Printf("[duplicates] Found %d likely duplicates for %q", len(candidates), title)
	return candidates
}

// HasNewInformation reports whether a report confirmed as a duplicate of
// original adds material information, and the comment to post if so.
func (d *Detector) HasNewInformation(ctx context.Context, original *github.IssueContent, title, content string) (bool, string) {
	if original == nil {
		return false, ""
	}

	raw, err := d.llm.Complete(ctx, llm.BuildNewInfoPrompt(original.Title, original.Body, title, content))
	if err != nil {
		log.Printf("[duplicates] New-information check failed: %v (non-blocking)", err)
		return false, ""
	}
	info, err := llm.ParseNewInformation(raw)
	if err != nil {
		log.Printf("[duplicates] Failed to parse new-information reply: %v (non-blocking)", err)
		return false, ""
	}
	if !info.HasNewInfo {
		return false, ""
	}

	comment := RedactEmails(info.Comment)
	if !strings.HasPrefix(comment, commentPrefix) {
		comment = commentPrefix + ": " + comment
	}
	return true, comment
}

var (
	mailtoLink = regexp.MustCompile(`\[[^\]]*\]\(\s*mailto:[^)]*\)`)
	mailtoBare = regexp.MustCompile(`(?i)mailto:\S*`)
	emailAddr  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// RedactEmails removes mailto links and email addresses from s.
func RedactEmails(s string) string {
	s = mailtoLink.ReplaceAllString(s, redacted)
	s = mailtoBare.ReplaceAllString(s, redacted)
	return emailAddr.ReplaceAllString(s, redacted)
}
