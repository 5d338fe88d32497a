package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const notProvided = "Not provided."

// ReportInput is the reporter-supplied data fed to the classifier.
type ReportInput struct {
	Title                 string
	Description           string
	ExpectedResult        string
	ObservedResult        string
	Steps                 []string
	Email                 string
	UserAgent             string
	CustomData            string
	ScreenshotURL         string
	VideoURL              string
	QuestionAnswerHistory string

	// Guidelines are the form owner's additional triage instructions.
	Guidelines string
}

// IssueTitle is one entry of the open-issue listing offered to the duplicate shortlist.
type IssueTitle struct {
	Number int
	Title  string
}

// BuildClassificationUserContent renders the report fields as the user turn.
// Callers enforce the input ceiling on its length before calling the model.
func BuildClassificationUserContent(in ReportInput) string {
	var steps []string
	for _, s := range in.Steps {
		if strings.TrimSpace(s) != "" {
			steps = append(steps, s)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", in.Title)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", in.Description)
	fmt.Fprintf(&b, "EXPECTED: %s\n", orNotProvided(in.ExpectedResult))
	fmt.Fprintf(&b, "OBSERVED: %s\n", orNotProvided(in.ObservedResult))
	fmt.Fprintf(&b, "STEPS: %s\n", orNotProvided(strings.Join(steps, ", ")))
	fmt.Fprintf(&b, "EMAIL: %s\n", orNotProvided(in.Email))
	fmt.Fprintf(&b, "USER_AGENT: %s\n", orNotProvided(in.UserAgent))
	fmt.Fprintf(&b, "CUSTOM_DATA: %s", orNotProvided(in.CustomData))

	if in.ScreenshotURL != "" {
		fmt.Fprintf(&b, "\nSCREENSHOT: User has provided a screenshot - you do not have the capability to view images. Include the URL in reports: %s", in.ScreenshotURL)
	}
	if in.VideoURL != "" {
		fmt.Fprintf(&b, "\nVIDEO: User has provided a video - you do not have the capability to watch videos. Include the URL in reports: %s", in.VideoURL)
	}
	if in.QuestionAnswerHistory != "" {
		fmt.Fprintf(&b, "\n\nQUESTION/ANSWER HISTORY:\n%s", in.QuestionAnswerHistory)
	}

	return b.String()
}

// BuildClassificationSystemPrompt renders the classifier instructions and the
// issue content template. Template sections collapse to "Not provided." for
// fields the reporter left empty so issue bodies stay uniform.
func BuildClassificationSystemPrompt(in ReportInput) string {
	var guidelines string
	if strings.TrimSpace(in.Guidelines) != "" {
		guidelines = "Additional guidelines: " + strings.TrimSpace(in.Guidelines)
	}

	var env []string
	if in.UserAgent != "" {
		env = append(env, "<details>\n<summary>User agent</summary>\n(User agent)\n</details>")
	}
	if in.CustomData != "" {
		env = append(env, "<details>\n<summary>Custom data</summary>\n(Custom data)\n</details>")
	}
	if len(env) == 0 {
		env = append(env, "No environment information.")
	}

	return fmt.Sprintf(`You are a bug report processor. Based on the information provided, choose ONE action:

1. ASK_QUESTION - If more information is needed
2. CLOSE_REPORT - If this is spam, user environment issue, not actually a bug or you were told to close this type of report in the guidelines
3. SUBMIT_REPORT - If this is a valid bug that should be submitted to GitHub

%s

---- CONTENT FORMAT (Markdown):
## Description
(Detailed & concise description here)

## Behavior
**Expected:** %s

**Observed:** %s

## Steps to reproduce
%s

## Media
**Screenshot**: %s
**Video**: %s

## Environment details
%s

### Contact
Email: %s
---- END OF CONTENT FORMAT

DO NOT alter, rephrase, or correct URLs, Custom data, User agent data and Emails.
DO NOT capitalize random words in the title of the report and follow the rules of English grammar.
DO NOT use markdown or any other special formatting when closing a report or simply asking a question.

ONLY respond with this JSON format:
{
  "action": "ASK_QUESTION|CLOSE_REPORT|SUBMIT_REPORT",
  "message": "Your response text",
  "title": "Clean title (for SUBMIT_REPORT only)",
  "content": "GitHub issue content in the content format (for SUBMIT_REPORT only)",
  "priority": "P1|P2|P3|P4 (for SUBMIT_REPORT only)"
}`,
		guidelines,
		placeholder(in.ExpectedResult, "(Expected result)"),
		placeholder(in.ObservedResult, "(Observed result)"),
		placeholder(strings.Join(in.Steps, ""), "1. (Step one - and so on)"),
		placeholder(in.ScreenshotURL, "(Screenshot URL)"),
		placeholder(in.VideoURL, "(Video URL)"),
		strings.Join(env, "\n"),
		placeholder(in.Email, "(Email here)"),
	)
}

// BuildClassificationMessages returns the full classifier conversation.
func BuildClassificationMessages(in ReportInput, userContent string) []Message {
	return []Message{
		{Role: RoleSystem, Content: BuildClassificationSystemPrompt(in)},
		{Role: RoleUser, Content: userContent},
	}
}

// BuildDuplicatePrompt asks for a conservative shortlist of open issues that
// describe the same bug as title.
func BuildDuplicatePrompt(title string, open []IssueTitle) []Message {
	var list strings.Builder
	for _, issue := range open {
		fmt.Fprintf(&list, "%d: %s\n", issue.Number, issue.Title)
	}

	system := `You detect duplicate bug reports. You are given the title of a new bug report and a list of open issues as "id: title".
Only return ids of issues that are VERY LIKELY the same bug. When in doubt, leave it out. Return at most 3 ids.

ONLY respond with this JSON format:
{
  "duplicates": [123, 456]
}
Return an empty list when there is no likely duplicate.`

	user := fmt.Sprintf("NEW REPORT TITLE: %s\n\nOPEN ISSUES:\n%s", title, list.String())

	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// BuildNewInfoPrompt asks whether a duplicate report adds information beyond
// the original issue, and if so for a short comment to post on it.
func BuildNewInfoPrompt(originalTitle, originalBody, newTitle, newContent string) []Message {
	system := `You compare a new bug report with an existing GitHub issue it duplicates.
Decide whether the new report adds material information that the existing issue does not contain (new reproduction steps, environments, error messages, media).
If it does, write a short comment for the existing issue summarizing only the new information. The comment MUST start with "An additional report".
Never include email addresses in the comment.

ONLY respond with this JSON format:
{
  "hasNewInfo": true,
  "comment": "An additional report ..."
}`

	user := fmt.Sprintf("EXISTING ISSUE TITLE: %s\nEXISTING ISSUE BODY:\n%s\n\nNEW REPORT TITLE: %s\nNEW REPORT CONTENT:\n%s",
		originalTitle, truncate(originalBody, 4000), newTitle, truncate(newContent, 4000))

	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}

func placeholder(value, hint string) string {
	if strings.TrimSpace(value) == "" {
		return notProvided
	}
	return hint
}

// truncate limits s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
