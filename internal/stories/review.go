package stories

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
)

var (
	numberedIssueRe = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.+)`)
	bulletIssueRe   = regexp.MustCompile(`^\s*-\s*(.+)`)
)

// ExtractReviewIssues pulls {number, text} items out of a review response.
// The review prompt asks for an "Issues" section with numbered lines, but
// the model does not always comply: numbered lines keep their literal
// number, bullet lines get sequential numbers starting at 1, and a missing
// section yields an empty list (nothing to selectively address).
func ExtractReviewIssues(text string) []model.ReviewIssue {
	var issues []model.ReviewIssue
	inSection := false
	bulletSeq := 0

	for _, line := range strings.Split(text, "\n") {
		if !inSection {
			if strings.Contains(line, "Issues") {
				inSection = true
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := numberedIssueRe.FindStringSubmatch(line); m != nil {
			num, _ := strconv.Atoi(m[1])
			issues = append(issues, model.ReviewIssue{
				Number: num,
				Text:   strings.TrimSpace(m[2]),
			})
			continue
		}

		if m := bulletIssueRe.FindStringSubmatch(line); m != nil {
			bulletSeq++
			issues = append(issues, model.ReviewIssue{
				Number: bulletSeq,
				Text:   strings.TrimSpace(m[1]),
			})
			continue
		}

		// First line that is neither numbered nor bulleted ends the section.
		break
	}

	return issues
}
