package dispatch

import "strings"

// Issue is the work item handed to an Executor. The dispatcher never looks
// inside it beyond Validate.
type Issue struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CreatorName string   `json:"creatorName,omitempty"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
	Status      string   `json:"status,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Repository  string   `json:"repository,omitempty"`
	Number      int      `json:"number,omitempty"`
}

// Validate reports whether the issue carries the minimum an executor needs.
func (i Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return ErrMissingTitle
	}
	return nil
}
