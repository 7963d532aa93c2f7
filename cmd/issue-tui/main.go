package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/tui/app"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL   string
		sessionID string
		style     string
		issue     dispatch.Issue
	)
	flagSet := pflag.NewFlagSet("issue-tui", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "url", "http://127.0.0.1:8000", "base URL of the issue resolver")
	flagSet.StringVar(&sessionID, "session", "", "attach to an existing session instead of submitting")
	flagSet.StringVar(&issue.Title, "title", "", "issue title")
	flagSet.StringVar(&issue.Description, "description", "", "issue description (markdown)")
	flagSet.StringVar(&issue.CreatorName, "creator", "", "issue author")
	flagSet.StringVar(&issue.SourceURL, "source-url", "", "link to the issue")
	flagSet.StringVar(&issue.Repository, "repo", "", "repository the issue belongs to")
	flagSet.StringSliceVar(&issue.Labels, "label", nil, "issue label (repeatable)")
	flagSet.StringVar(&style, "style", "dark", "glamour style for the description (dark, light, notty)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	opts := app.Options{BaseURL: baseURL, SessionID: sessionID, MarkdownStyle: style}
	switch {
	case sessionID != "" && issue.Title != "":
		return fmt.Errorf("--session and --title are mutually exclusive")
	case sessionID == "":
		if strings.TrimSpace(issue.Title) == "" {
			return fmt.Errorf("--title is required unless --session is given")
		}
		opts.Issue = &issue
	}

	m, err := app.New(opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}
