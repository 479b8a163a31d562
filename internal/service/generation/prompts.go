package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
)

// maxRepoContextChars caps how much README text is folded into the
// generation prompt.
const maxRepoContextChars = 3000

func storyGenerationPrompt(gc Context) string {
	repoSection := ""
	if gc.RepoContext != "" {
		excerpt := gc.RepoContext
		if len(excerpt) > maxRepoContextChars {
			excerpt = excerpt[:maxRepoContextChars]
		}
		repoSection = fmt.Sprintf("\n\nRepository Context (from README.md):\n%s\n", excerpt)
	}

	return fmt.Sprintf(`You are helping students create user stories for their project.

Epic: %s
Users: %s
Problem: %s
Tech Stack: %s%s

Generate 4-6 user stories that break down this epic. Use the repository context above to ensure stories align with the existing project structure, conventions, and goals.

Format each story exactly like this:
1. [Title]
   As a [user], I want to [action] so that [benefit]
   - [acceptance criterion 1]
   - [acceptance criterion 2]

2. [Next story...]

Keep stories small with 1-2 suggested acceptance criteria each. Make acceptance criteria specific and testable. Students will add more criteria later.`,
		gc.Description, gc.Users, gc.Problem, gc.TechStack, repoSection)
}

func storyRefinementPrompt(current []model.Story, feedback string) string {
	blocks := make([]string, 0, len(current))
	for i, s := range current {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Acceptance Criteria:", i+1, s.Title, s.Story)
		for _, c := range s.AcceptanceCriteria {
			fmt.Fprintf(&b, "\n   - %s", c)
		}
		blocks = append(blocks, b.String())
	}

	return fmt.Sprintf(`You previously generated these stories:

%s

The user wants changes: "%s"

Generate the updated list of stories in the same format:
1. [Title]
   As a [user], I want to [action] so that [benefit]
   - [acceptance criterion 1]
   - [acceptance criterion 2]
   - [acceptance criterion 3]
   - [acceptance criterion 4]

Keep stories small with 3-4 suggested acceptance criteria each. Make sure stories are focused, testable, and address all the requested changes.`,
		strings.Join(blocks, "\n\n"), feedback)
}

func reviewPrompt(epic *model.Epic) string {
	doc, _ := json.MarshalIndent(epic, "", "  ")

	return fmt.Sprintf(`Review this epic for quality. Keep feedback brief and actionable.

Epic: %s

Check:
1. Are stories small and focused?
2. Do stories have clear user value? ("so that" clause)
3. Are there obvious missing stories? (error handling, edge cases)
4. Are the suggested acceptance criteria (1-2 per story) specific and testable?

Format your response as:
✅ Good:
- [what's good]

⚠️ Issues:
1. [issue 1]
2. [issue 2]
3. [issue 3]

IMPORTANT: Number the issues (1, 2, 3, etc.) instead of using bullet points (-).

Keep it under 10 lines total.`, doc)
}

func singleStoryRefinementPrompt(story model.Story, instruction string, gc Context) string {
	criteria := make([]string, 0, len(story.AcceptanceCriteria))
	for _, c := range story.AcceptanceCriteria {
		criteria = append(criteria, "- "+c)
	}

	return fmt.Sprintf(`You are helping refine a user story.

Epic context: %s
Users: %s
Problem: %s
Tech Stack: %s

Current story:
Title: %s
Story: %s
Acceptance Criteria:
%s

User request: "%s"

Provide the updated story in this exact format:
Title: [updated title]
Story: [As a user, I want to... so that...]
Acceptance Criteria:
- [criterion 1]
- [criterion 2]
- [criterion 3]

Keep it focused and testable.`,
		gc.Description, gc.Users, gc.Problem, gc.TechStack,
		story.Title, story.Story, strings.Join(criteria, "\n"), instruction)
}
