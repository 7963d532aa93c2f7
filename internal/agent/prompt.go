package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
)

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// buildPrompt renders the opening user message for an issue.
func buildPrompt(issue dispatch.Issue) string {
	number := "N/A"
	if issue.Number > 0 {
		number = fmt.Sprintf("%d", issue.Number)
	}
	description := issue.Description
	if strings.TrimSpace(description) == "" {
		description = "No description provided."
	}

	var b strings.Builder
	b.WriteString("Please analyze the following GitHub issue and propose a solution or next steps.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", orNA(issue.Title))
	fmt.Fprintf(&b, "Repository: %s\n", orNA(issue.Repository))
	fmt.Fprintf(&b, "Issue Number: %s\n", number)
	fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	fmt.Fprintf(&b, "Creator: %s\n", orNA(issue.CreatorName))
	fmt.Fprintf(&b, "Status: %s\n", orNA(issue.Status))
	fmt.Fprintf(&b, "URL: %s\n", orNA(issue.SourceURL))
	fmt.Fprintf(&b, "Description:\n%s", description)
	return b.String()
}

// preview returns at most n runes of s.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
