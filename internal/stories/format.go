package stories

import (
	"fmt"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
)

// Format renders stories as the numbered plain-text block posted back into
// the conversation thread.
func Format(list []model.Story) string {
	blocks := make([]string, 0, len(list))
	for i, s := range list {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s\n   %s", i+1, s.Title, s.Story)
		for _, c := range s.AcceptanceCriteria {
			fmt.Fprintf(&b, "\n   - %s", c)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// FormatTitles renders a compact one-line-per-story listing for the
// interactive menu.
func FormatTitles(list []model.Story) string {
	lines := make([]string, 0, len(list))
	for i, s := range list {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s.Title))
	}
	return strings.Join(lines, "\n")
}

// FormatOne renders a single focused story with its 1-based position.
func FormatOne(s model.Story, pos, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Story %d of %d: %s\n%s", pos, total, s.Title, s.Story)
	if len(s.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance Criteria:")
		for _, c := range s.AcceptanceCriteria {
			fmt.Fprintf(&b, "\n- %s", c)
		}
	}
	return b.String()
}

// FormatReviewIssues renders extracted review issues for reply text.
func FormatReviewIssues(issues []model.ReviewIssue) string {
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, fmt.Sprintf("%d. %s", is.Number, is.Text))
	}
	return strings.Join(lines, "\n")
}
