// Package stories turns free-form model output into structured story
// records. Parsing is line-oriented and deliberately tolerant: the upstream
// text format is a convention, not a contract, so unrecognized lines are
// dropped rather than rejected.
package stories

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
)

var (
	// Matches numbered story headings in several layouts:
	// "1. Title", "**1. Title**", "## 1. Title", "[1. Title]"
	titleRe = regexp.MustCompile(`^(?:##\s*)?\*{0,2}\[?(\d+)\.\s*\]?\*{0,2}(.+)`)

	// Matches criteria items: "- text" or "- [ ] text"
	criteriaRe = regexp.MustCompile(`^\s*-\s*(?:\[\s*\]\s*)?(.+)`)

	labeledTitleRe = regexp.MustCompile(`(?i)^Title:\s*(.+)`)
	labeledStoryRe = regexp.MustCompile(`(?i)^Story:\s*(.+)`)
	labeledACRe    = regexp.MustCompile(`(?i)^Acceptance Criteria:`)
)

// Parse extracts an ordered list of stories from generated text. A new
// numbered heading flushes the previous in-progress story; narrative lines
// start with "As a"/"As an" and continuation lines are joined with a single
// space until a criteria marker or heading appears. Zero detected stories
// returns an empty slice, never an error.
func Parse(text string) []model.Story {
	var parsed []model.Story
	var current *model.Story
	collectingStory := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := titleRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				parsed = append(parsed, *current)
			}
			num, _ := strconv.Atoi(m[1])
			current = &model.Story{
				ID:    fmt.Sprintf("story-%03d", num),
				Title: cleanTitle(m[2]),
			}
			collectingStory = false
			continue
		}

		// "As an" also has prefix "As a"
		if strings.HasPrefix(trimmed, "As a") {
			if current != nil {
				current.Story = trimmed
				collectingStory = true
			}
			continue
		}

		// Continuation lines for "I want..." / "so that..." wrapped onto
		// their own lines.
		if collectingStory && current != nil && trimmed != "" &&
			!strings.Contains(line, "Acceptance") && !strings.HasPrefix(trimmed, "-") {
			current.Story += " " + trimmed
			continue
		}

		if strings.Contains(line, "Acceptance") || strings.Contains(line, "acceptance") {
			collectingStory = false
			continue
		}

		// Any dash line under a story counts as a criterion, with or
		// without a preceding "Acceptance Criteria" header.
		if current != nil {
			if m := criteriaRe.FindStringSubmatch(line); m != nil {
				collectingStory = false
				current.AcceptanceCriteria = append(current.AcceptanceCriteria, strings.TrimSpace(m[1]))
			}
		}
	}

	if current != nil {
		parsed = append(parsed, *current)
	}

	return parsed
}

// ParseSingle extracts one story from a labeled-field response
// ("Title:", "Story:", "Acceptance Criteria:" followed by dash lines).
// Used for single-story refinement, where the caller owns the story id and
// tracker linkage and only takes title/narrative/criteria from the result.
func ParseSingle(text string) model.Story {
	var story model.Story
	inCriteria := false
	collectingStory := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := labeledTitleRe.FindStringSubmatch(line); m != nil {
			story.Title = strings.TrimSpace(m[1])
			continue
		}

		if m := labeledStoryRe.FindStringSubmatch(line); m != nil {
			story.Story = strings.TrimSpace(m[1])
			collectingStory = true
			continue
		}

		if strings.HasPrefix(trimmed, "As a") {
			story.Story = trimmed
			collectingStory = true
			continue
		}

		if collectingStory && trimmed != "" &&
			!strings.Contains(line, "Acceptance") && !strings.HasPrefix(trimmed, "-") {
			story.Story += " " + trimmed
			continue
		}

		if labeledACRe.MatchString(line) {
			inCriteria = true
			collectingStory = false
			continue
		}

		if inCriteria {
			if m := criteriaRe.FindStringSubmatch(line); m != nil {
				story.AcceptanceCriteria = append(story.AcceptanceCriteria, strings.TrimSpace(m[1]))
			}
		}
	}

	return story
}

func cleanTitle(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.Trim(s, "[]")
	return strings.TrimSpace(s)
}
