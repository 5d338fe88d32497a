package llm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildClassificationUserContentPlaceholders(t *testing.T) {
	got := BuildClassificationUserContent(ReportInput{
		Title:       "Button broken",
		Description: "Click does nothing",
		Steps:       []string{"open page", "  ", "click"},
	})

	for _, want := range []string{
		"TITLE: Button broken\n",
		"DESCRIPTION: Click does nothing\n",
		"EXPECTED: Not provided.\n",
		"STEPS: open page, click\n",
		"EMAIL: Not provided.\n",
		"CUSTOM_DATA: Not provided.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("user content missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "SCREENSHOT:") || strings.Contains(got, "QUESTION/ANSWER HISTORY") {
		t.Errorf("unexpected optional sections:\n%s", got)
	}
}

func TestBuildClassificationUserContentMediaAndHistory(t *testing.T) {
	got := BuildClassificationUserContent(ReportInput{
		Title:                 "t",
		Description:           "d",
		ScreenshotURL:         "https://b.fra1.digitaloceanspaces.com/bugspot/a.png",
		VideoURL:              "https://b.fra1.digitaloceanspaces.com/bugspot/a.mp4",
		QuestionAnswerHistory: "Q: Which browser?\nA: Firefox",
	})

	if !strings.Contains(got, "\nSCREENSHOT: ") || !strings.Contains(got, "bugspot/a.png") {
		t.Errorf("missing screenshot hint:\n%s", got)
	}
	if !strings.Contains(got, "\nVIDEO: ") {
		t.Errorf("missing video hint:\n%s", got)
	}
	if !strings.HasSuffix(got, "QUESTION/ANSWER HISTORY:\nQ: Which browser?\nA: Firefox") {
		t.Errorf("history must be appended last:\n%s", got)
	}
}

func TestBuildClassificationSystemPrompt(t *testing.T) {
	bare := BuildClassificationSystemPrompt(ReportInput{})
	if strings.Contains(bare, "Additional guidelines") {
		t.Error("guidelines section should be omitted when empty")
	}
	if !strings.Contains(bare, "No environment information.") {
		t.Error("expected empty environment placeholder")
	}
	if !strings.Contains(bare, "Email: Not provided.") {
		t.Error("expected contact placeholder")
	}

	full := BuildClassificationSystemPrompt(ReportInput{
		Guidelines:     "Close anything about billing.",
		ExpectedResult: "x",
		UserAgent:      "Mozilla/5.0",
		Email:          "a@b.c",
	})
	for _, want := range []string{
		"Additional guidelines: Close anything about billing.",
		"**Expected:** (Expected result)",
		"<summary>User agent</summary>",
		"Email: (Email here)",
		`"action": "ASK_QUESTION|CLOSE_REPORT|SUBMIT_REPORT"`,
	} {
		if !strings.Contains(full, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(full, "No environment information.") {
		t.Error("environment placeholder should be replaced when user agent is given")
	}
}

func TestBuildDuplicatePromptListsIssues(t *testing.T) {
	msgs := BuildDuplicatePrompt("Button broken", []IssueTitle{{Number: 4, Title: "Login fails"}, {Number: 9, Title: "Button does nothing"}})
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Role != RoleUser {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "4: Login fails\n9: Button does nothing\n") {
		t.Errorf("issue list not rendered:\n%s", msgs[1].Content)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate() = %q", got)
	}

	// "é" is two bytes; a cut at 2 lands inside it.
	got := truncate("aéb", 2)
	if got != "a..." {
		t.Errorf("truncate() = %q, want %q", got, "a...")
	}
	if !utf8.ValidString(truncate(strings.Repeat("日本", 50), 31)) {
		t.Error("truncate produced invalid UTF-8")
	}
}
