package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
	"github.com/max-mines/epic-bot/internal/stories"
)

func (e *Engine) handleInteractiveMode(ctx context.Context, s *model.Session, text string) error {
	lower := strings.ToLower(text)

	switch lower {
	case "done":
		return e.finishInteractive(ctx, s)

	case "overview":
		e.post(ctx, s, stories.Format(s.Stories)+"\n\n"+e.interactiveMenu(s))
		return nil
	}

	if n, err := strconv.Atoi(lower); err == nil {
		if n < 1 || n > len(s.Stories) {
			e.post(ctx, s, fmt.Sprintf("Story number must be between 1 and %d.", len(s.Stories)))
			return nil
		}
		s.CurrentStoryIndex = n - 1
		s.State = model.StateStoryFocused
		e.post(ctx, s, stories.FormatOne(s.Stories[n-1], n, len(s.Stories))+focusHelp)
		return nil
	}

	e.post(ctx, s, "Unknown command. Reply with a story number, `overview`, or `done`.")
	return nil
}

// finishInteractive decides what `done` means for this session: publishing
// state and review history pick the exit path.
func (e *Engine) finishInteractive(ctx context.Context, s *model.Session) error {
	switch {
	case s.IsExistingEpic && s.Epic.Published():
		epic, err := e.ensureEpicSaved(ctx, s)
		if err != nil {
			return err
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

	case s.IsExistingEpic:
		s.State = model.StateApproval
		e.post(ctx, s, "This epic isn't published yet. Publish it now? [Y/n]")
		return nil

	case s.HasBeenReviewed:
		epic, err := e.ensureEpicSaved(ctx, s)
		if err != nil {
			return err
		}
		return e.publishNew(ctx, s, epic)

	default:
		s.State = model.StateApproval
		e.post(ctx, s, "All set. Reply `review` for an AI review, or [Y/n] to publish.")
		return nil
	}
}

func (e *Engine) handleStoryFocused(ctx context.Context, s *model.Session, text string) error {
	idx := s.CurrentStoryIndex
	if idx < 0 || idx >= len(s.Stories) {
		// Cursor went stale (stories shrank); fall back to the menu.
		s.CurrentStoryIndex = -1
		s.State = model.StateInteractiveMode
		e.post(ctx, s, e.interactiveMenu(s))
		return nil
	}

	switch strings.ToLower(text) {
	case "next":
		if idx+1 >= len(s.Stories) {
			e.post(ctx, s, "Already at the last story.")
			return nil
		}
		s.CurrentStoryIndex++
		e.post(ctx, s, stories.FormatOne(s.Stories[s.CurrentStoryIndex], s.CurrentStoryIndex+1, len(s.Stories))+focusHelp)
		return nil

	case "prev":
		if idx == 0 {
			e.post(ctx, s, "Already at the first story.")
			return nil
		}
		s.CurrentStoryIndex--
		e.post(ctx, s, stories.FormatOne(s.Stories[s.CurrentStoryIndex], s.CurrentStoryIndex+1, len(s.Stories))+focusHelp)
		return nil

	case "back":
		s.CurrentStoryIndex = -1
		s.State = model.StateInteractiveMode
		e.post(ctx, s, e.interactiveMenu(s))
		return nil
	}

	// Anything else is a refinement instruction for the focused story.
	e.post(ctx, s, "Refining story...")

	updated, err := e.gen.RefineStory(ctx, s.Stories[idx], text, e.generationContext(s, ""))
	if err != nil {
		return fmt.Errorf("refining story: %w", err)
	}

	s.Stories[idx] = updated
	s.ModifiedStoryIndices = appendIndex(s.ModifiedStoryIndices, idx)
	e.saveEpicBestEffort(ctx, s)
	e.post(ctx, s, "✅ Updated story:\n\n"+stories.FormatOne(updated, idx+1, len(s.Stories))+focusHelp)
	return nil
}

func appendIndex(indices []int, idx int) []int {
	for _, existing := range indices {
		if existing == idx {
			return indices
		}
	}
	return append(indices, idx)
}
