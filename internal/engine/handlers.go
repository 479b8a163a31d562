package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
	"github.com/max-mines/epic-bot/internal/service/issue_tracker"
	"github.com/max-mines/epic-bot/internal/stories"
)

func (e *Engine) handleQ1(ctx context.Context, s *model.Session, text string) error {
	s.Answers.Users = e.resolveAnswer(ctx, s, text, func(a model.Answers) string { return a.Users })
	s.State = model.StateQ2
	e.post(ctx, s, e.withSameHint(ctx, s, "Q2: What problem does it solve?",
		func(a model.Answers) string { return a.Problem }))
	return nil
}

func (e *Engine) handleQ2(ctx context.Context, s *model.Session, text string) error {
	s.Answers.Problem = e.resolveAnswer(ctx, s, text, func(a model.Answers) string { return a.Problem })
	s.State = model.StateQ3
	e.post(ctx, s, e.withSameHint(ctx, s, "Q3: Tech stack? (e.g., \"React, Node, Postgres\")",
		func(a model.Answers) string { return a.TechStack }))
	return nil
}

func (e *Engine) handleQ3(ctx context.Context, s *model.Session, text string) error {
	s.Answers.TechStack = e.resolveAnswer(ctx, s, text, func(a model.Answers) string { return a.TechStack })
	s.State = model.StateGenerating
	e.post(ctx, s, "Generating stories...")

	if err := e.answers.Put(ctx, s.UserID, s.Answers); err != nil {
		slog.WarnContext(ctx, "answer cache write failed", "error", err)
	}

	// README context is best effort; generation proceeds without it.
	repoContext, err := e.tracker.FetchReadme(ctx)
	if err != nil {
		slog.DebugContext(ctx, "no readme context available", "error", err)
		repoContext = ""
	}

	parsed, err := e.gen.GenerateStories(ctx, e.generationContext(s, repoContext))
	if err != nil {
		s.State = model.StateQ3
		e.post(ctx, s, fmt.Sprintf("❌ Generation failed: %v\n\nQ3: Tech stack? (reply to retry)", err))
		return nil
	}

	s.Stories = parsed
	s.State = model.StateApproval
	e.post(ctx, s, fmt.Sprintf("✅ Generated %d stories:\n\n%s\n\n%s",
		len(parsed), stories.Format(parsed), approvalPrompt))
	return nil
}

// handleBusy covers GENERATING and REVIEWING. With per-session turns
// serialized these states are only observable when a prior turn failed
// mid-transition.
func (e *Engine) handleBusy(ctx context.Context, s *model.Session, text string) error {
	e.post(ctx, s, "One moment, still working on the previous step...")
	return nil
}

func (e *Engine) handleApproval(ctx context.Context, s *model.Session, text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "y"):
		epic, err := e.ensureEpicSaved(ctx, s)
		if err != nil {
			return err
		}
		return e.publishNew(ctx, s, epic)

	case lower == "review":
		epic, err := e.ensureEpicSaved(ctx, s)
		if err != nil {
			return err
		}
		s.State = model.StateReviewing
		e.post(ctx, s, fmt.Sprintf("✅ Epic saved as %s\n\nRunning review...", epic.ID))
		e.runReview(ctx, s)
		return nil

	case lower == "refine":
		if _, err := e.ensureEpicSaved(ctx, s); err != nil {
			return err
		}
		s.State = model.StateInteractiveMode
		s.CurrentStoryIndex = -1
		e.post(ctx, s, e.interactiveMenu(s))
		return nil

	default:
		s.Feedback = text
		s.State = model.StateRefining
		e.post(ctx, s, "What would you like to change?")
		return nil
	}
}

func (e *Engine) handleRefining(ctx context.Context, s *model.Session, text string) error {
	s.Feedback = text
	s.State = model.StateGenerating
	e.post(ctx, s, "Regenerating stories...")

	updated, err := e.gen.RefineStories(ctx, s.Stories, s.Feedback)
	if err != nil {
		s.State = model.StateRefining
		e.post(ctx, s, fmt.Sprintf("❌ Refinement failed: %v\n\nTry describing the change again.", err))
		return nil
	}

	s.Stories = mergeTrackerLinkage(s.Stories, updated)
	s.State = model.StateApproval
	e.saveEpicBestEffort(ctx, s)
	e.post(ctx, s, fmt.Sprintf("✅ Updated stories:\n\n%s\n\n%s",
		stories.Format(s.Stories), approvalPrompt))
	return nil
}

// runReview calls the review backend and lands the session in
// REVIEW_APPROVAL either way: a review failure must still let the user
// publish.
func (e *Engine) runReview(ctx context.Context, s *model.Session) {
	review, err := e.gen.ReviewEpic(ctx, s.Epic)
	if err != nil {
		slog.ErrorContext(ctx, "review failed", "error", err)
		s.State = model.StateReviewApproval
		e.post(ctx, s, fmt.Sprintf("❌ Review error: %v\n\nPublish to the tracker anyway? [Y/n]", err))
		return
	}

	s.ReviewIssues = stories.ExtractReviewIssues(review)
	s.HasBeenReviewed = true
	s.State = model.StateReviewApproval

	msg := "🔍 Review complete!\n\n" + review + "\n\n"
	if len(s.ReviewIssues) > 0 {
		msg += "Reply `all` or issue numbers (e.g. `1,3`) to address them, `refine` to edit stories, or [Y/n] to publish."
	} else {
		msg += "Publish to the tracker? [Y/n]"
	}
	e.post(ctx, s, msg)
}

var issueSelectionRe = regexp.MustCompile(`^\d+(\s*,\s*\d+)*$`)

func (e *Engine) handleReviewApproval(ctx context.Context, s *model.Session, text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "y"):
		return e.publishReviewed(ctx, s)

	case lower == "refine":
		s.State = model.StateInteractiveMode
		s.CurrentStoryIndex = -1
		e.post(ctx, s, e.interactiveMenu(s))
		return nil

	case lower == "all" || issueSelectionRe.MatchString(lower):
		return e.applyReviewIssues(ctx, s, lower)

	default:
		s.RefinementCount++
		if s.RefinementCount > e.cfg.MaxRefinements {
			// Forced internal transition, not a user event: the bounded
			// refinement loop ends here.
			slog.InfoContext(ctx, "max refinements reached, forcing publish",
				"refinement_count", s.RefinementCount)
			e.post(ctx, s, "Maximum refinements reached. Proceeding with current stories...")
			return e.publishReviewed(ctx, s)
		}

		s.Feedback = text
		s.State = model.StateRefining
		e.post(ctx, s, "What should I fix?")
		return nil
	}
}

func (e *Engine) applyReviewIssues(ctx context.Context, s *model.Session, input string) error {
	selected := selectReviewIssues(s.ReviewIssues, input)
	if len(selected) == 0 {
		e.post(ctx, s, "No matching review issues. Reply `all`, issue numbers like `1,3`, or [Y/n] to publish.")
		return nil
	}

	// A single selected issue that names a specific story gets a targeted
	// refinement; everything else is folded into one bulk pass.
	if len(selected) == 1 {
		if idx, ok := findStoryRef(selected[0].Text, s.Stories); ok {
			e.post(ctx, s, fmt.Sprintf("Refining story %d...", idx+1))

			updated, err := e.gen.RefineStory(ctx, s.Stories[idx], selected[0].Text, e.generationContext(s, ""))
			if err != nil {
				return fmt.Errorf("refining story: %w", err)
			}

			s.Stories[idx] = updated
			s.ModifiedStoryIndices = []int{idx}
			e.saveEpicBestEffort(ctx, s)
			e.post(ctx, s, "✅ Updated story:\n\n"+
				stories.FormatOne(updated, idx+1, len(s.Stories))+
				"\n\nPublish? [Y/n]")
			return nil
		}
	}

	feedback := "Address these review issues:\n" + stories.FormatReviewIssues(selected)
	e.post(ctx, s, "Regenerating stories to address the selected issues...")

	updated, err := e.gen.RefineStories(ctx, s.Stories, feedback)
	if err != nil {
		return fmt.Errorf("refining stories: %w", err)
	}

	s.Stories = mergeTrackerLinkage(s.Stories, updated)
	s.ModifiedStoryIndices = nil
	e.saveEpicBestEffort(ctx, s)
	e.post(ctx, s, "✅ Updated stories:\n\n"+stories.Format(s.Stories)+"\n\nPublish? [Y/n]")
	return nil
}

// selectReviewIssues matches user input (`all` or comma-separated numbers)
// against the extracted issues by their literal numbers.
func selectReviewIssues(issues []model.ReviewIssue, input string) []model.ReviewIssue {
	if input == "all" {
		return issues
	}

	wanted := make(map[int]bool)
	for _, part := range strings.Split(input, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			wanted[n] = true
		}
	}

	var selected []model.ReviewIssue
	for _, issue := range issues {
		if wanted[issue.Number] {
			selected = append(selected, issue)
		}
	}
	return selected
}

var (
	storyIDRefRe  = regexp.MustCompile(`(?i)\bstory-(\d+)\b`)
	storyNumRefRe = regexp.MustCompile(`(?i)\bstor(?:y|ies)\s*#?(\d+)\b`)
)

// findStoryRef looks for a concrete story reference (a story id or
// "story N") in a review issue's text and resolves it to an index.
func findStoryRef(text string, list []model.Story) (int, bool) {
	if m := storyIDRefRe.FindStringSubmatch(text); m != nil {
		id := "story-" + m[1]
		for i, st := range list {
			if strings.EqualFold(st.ID, id) {
				return i, true
			}
			if n, err := strconv.Atoi(m[1]); err == nil && st.ID == fmt.Sprintf("story-%03d", n) {
				return i, true
			}
		}
	}

	if m := storyNumRefRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(list) {
			return n - 1, true
		}
	}

	return 0, false
}

// publishReviewed is the terminal publish step out of REVIEW_APPROVAL. An
// already-published epic gets a selective or full update; anything else is
// a fresh create.
func (e *Engine) publishReviewed(ctx context.Context, s *model.Session) error {
	epic, err := e.ensureEpicSaved(ctx, s)
	if err != nil {
		return err
	}

	if s.IsExistingEpic && epic.Published() {
		if len(s.ModifiedStoryIndices) == 1 {
			idx := s.ModifiedStoryIndices[0]
			if idx >= 0 && idx < len(epic.Stories) && epic.Stories[idx].IssueIID != 0 {
				e.post(ctx, s, "Updating tracker issue...")

				ref, err := e.tracker.UpdateStory(ctx, &epic.Stories[idx])
				if err != nil {
					return fmt.Errorf("updating issue: %w", err)
				}

				e.saveEpicBestEffort(ctx, s)
				e.post(ctx, s, fmt.Sprintf("✅ Updated issue #%d: %s\n\nDone! 🎉", ref.IID, ref.Title))
				e.registry.Delete(s.ID)
				return nil
			}
		}

		e.post(ctx, s, "Updating tracker issues...")
		result, err := e.tracker.Update(ctx, epic)
		if err != nil {
			return fmt.Errorf("updating epic: %w", err)
		}

		e.saveEpicBestEffort(ctx, s)
		e.post(ctx, s, fmt.Sprintf("✅ Updated milestone %d: %s (%d issues)\n\nDone! 🎉",
			result.MilestoneID, result.Title, len(result.Issues)))
		e.registry.Delete(s.ID)
		return nil
	}

	return e.publishNew(ctx, s, epic)
}

// publishNew creates the milestone and issues, persists the linkage, and
// ends the conversation. A retried publish after partial failure goes
// through Update so existing tracker objects are reused.
func (e *Engine) publishNew(ctx context.Context, s *model.Session, epic *model.Epic) error {
	e.post(ctx, s, "Creating tracker issues...")

	var (
		result *issue_tracker.PublishResult
		err    error
	)
	if epic.Published() {
		result, err = e.tracker.Update(ctx, epic)
	} else {
		result, err = e.tracker.Create(ctx, epic)
	}
	if err != nil {
		// Create persists partial linkage onto the epic as it goes; save
		// it so a retry can reconcile.
		e.saveEpicBestEffort(ctx, s)
		return fmt.Errorf("publishing epic: %w", err)
	}

	s.Stories = epic.Stories
	e.saveEpicBestEffort(ctx, s)

	lines := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		lines = append(lines, fmt.Sprintf("- #%d: %s", issue.IID, issue.Title))
	}
	e.post(ctx, s, fmt.Sprintf("✅ Created milestone %d: %s\n\nStories:\n%s\n\nDone! 🎉",
		result.MilestoneID, result.Title, strings.Join(lines, "\n")))

	e.registry.Delete(s.ID)
	return nil
}

func (e *Engine) handleDeleteConfirmation(ctx context.Context, s *model.Session, text string) error {
	if !strings.HasPrefix(strings.ToLower(text), "y") {
		e.post(ctx, s, "❌ Deletion cancelled.")
		e.registry.Delete(s.ID)
		return nil
	}

	e.post(ctx, s, fmt.Sprintf("Deleting epic (milestone %d)...", s.Epic.MilestoneID))
	closed, err := e.tracker.Close(ctx, s.Epic.MilestoneID)

	// The session ends regardless of the close outcome; the local epic
	// document is intentionally kept for recovery.
	e.registry.Delete(s.ID)

	if err != nil {
		e.post(ctx, s, fmt.Sprintf("❌ Deletion failed: %v", err))
		return nil
	}

	e.post(ctx, s, fmt.Sprintf("✅ Closed milestone %d and %d story issues.", s.Epic.MilestoneID, closed))
	return nil
}
