package issue_tracker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
)

const criteriaHeader = "## Acceptance Criteria"

var (
	metadataRe = regexp.MustCompile(`<!--\s*epic-bot-metadata\s*\n([\s\S]*?)\n-->`)

	legacyUsersRe   = regexp.MustCompile(`\*\*Users:\*\*\s*(.+)`)
	legacyTechRe    = regexp.MustCompile(`\*\*Tech Stack:\*\*\s*(.+)`)
	legacyProblemRe = regexp.MustCompile(`## Overview\s*\n([\s\S]*?)\n\*\*Users:\*\*`)

	issueTitleRe    = regexp.MustCompile(`(?i)^(story-\d+):\s*(.+)`)
	checkboxRe      = regexp.MustCompile(`(?i)- \[[ x]\]\s*(.+)`)
	milestoneNameRe = regexp.MustCompile(`^(epic-[^:]+):\s*(.+)`)
)

// FormatMilestoneDescription renders the human-readable milestone body with
// the structured metadata embedded in an HTML comment, so the epic fields
// round-trip losslessly through the tracker.
func FormatMilestoneDescription(epic *model.Epic) string {
	metadata, _ := json.Marshal(model.EpicMetadata{
		Users:     epic.Users,
		Problem:   epic.Problem,
		TechStack: epic.TechStack,
	})

	return fmt.Sprintf(`## Overview
%s

**Users:** %s
**Tech Stack:** %s

---
*Created with [Epic Bot](https://github.com/max-mines/epic-bot)*

<!-- epic-bot-metadata
%s
-->`, epic.Problem, epic.Users, epic.TechStack, metadata)
}

// ParseMilestoneDescription extracts epic metadata from a milestone body.
// Prefers the embedded JSON comment; falls back to best-effort field
// extraction for descriptions written before the comment existed.
func ParseMilestoneDescription(description string) model.EpicMetadata {
	if description == "" {
		return model.EpicMetadata{}
	}

	if m := metadataRe.FindStringSubmatch(description); m != nil {
		var meta model.EpicMetadata
		if err := json.Unmarshal([]byte(m[1]), &meta); err == nil {
			return meta
		}
	}

	// Legacy layout: plain markdown fields only.
	var meta model.EpicMetadata
	if m := legacyUsersRe.FindStringSubmatch(description); m != nil {
		meta.Users = strings.TrimSpace(m[1])
	}
	if m := legacyTechRe.FindStringSubmatch(description); m != nil {
		meta.TechStack = strings.TrimSpace(m[1])
	}
	if m := legacyProblemRe.FindStringSubmatch(description); m != nil {
		meta.Problem = strings.TrimSpace(m[1])
	}
	return meta
}

// FormatMilestoneTitle renders the milestone title as "<epic-id>: <title>".
func FormatMilestoneTitle(epic *model.Epic) string {
	return fmt.Sprintf("%s: %s", epic.ID, epic.Title)
}

// ParseMilestoneTitle splits a milestone title back into epic id and title.
// Titles not written by the bot come back with an empty id.
func ParseMilestoneTitle(title string) (id, epicTitle string) {
	if m := milestoneNameRe.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return "", title
}

// FormatIssueTitle renders the issue title as "<story-id>: <title>".
func FormatIssueTitle(story *model.Story) string {
	return fmt.Sprintf("%s: %s", story.ID, story.Title)
}

// FormatIssueBody renders a story as an issue body: the narrative followed
// by acceptance criteria as checkboxes.
func FormatIssueBody(story *model.Story) string {
	var b strings.Builder
	b.WriteString(story.Story)
	b.WriteString("\n\n" + criteriaHeader + "\n")
	for i, c := range story.AcceptanceCriteria {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- [ ] " + c)
	}
	return b.String()
}

// ParseIssue reconstructs a story from an issue's title and body. The story
// id comes from the title prefix when present, otherwise it is derived from
// the issue iid.
func ParseIssue(title, body string, iid int, url string) model.Story {
	story := model.Story{
		ID:       fmt.Sprintf("story-%03d", iid),
		Title:    title,
		IssueIID: iid,
		IssueURL: url,
	}

	if m := issueTitleRe.FindStringSubmatch(title); m != nil {
		story.ID = strings.ToLower(m[1])
		story.Title = strings.TrimSpace(m[2])
	}

	narrative := body
	var criteriaPart string
	if idx := strings.Index(body, criteriaHeader); idx != -1 {
		narrative = body[:idx]
		criteriaPart = body[idx+len(criteriaHeader):]
		// Criteria run until the next section heading, if any.
		if next := strings.Index(criteriaPart, "\n## "); next != -1 {
			criteriaPart = criteriaPart[:next]
		}
	} else if idx := strings.Index(body, "\n## "); idx != -1 {
		narrative = body[:idx]
	}
	story.Story = strings.TrimSpace(narrative)

	for _, m := range checkboxRe.FindAllStringSubmatch(criteriaPart, -1) {
		story.AcceptanceCriteria = append(story.AcceptanceCriteria, strings.TrimSpace(m[1]))
	}

	return story
}

// storyIndex orders reconstructed stories by the numeric part of their id
// so a fetched epic matches publish order rather than API response order.
func storyIndex(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "story-"))
	if err != nil {
		return 0
	}
	return n
}
