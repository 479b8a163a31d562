// Package generation is the gateway to the text-generation backend. It
// builds prompts from conversation state and structures the free-form
// responses with the stories parsers.
package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/max-mines/epic-bot/common/llm"
	"github.com/max-mines/epic-bot/common/logger"
	"github.com/max-mines/epic-bot/internal/model"
	"github.com/max-mines/epic-bot/internal/stories"
)

const (
	storyMaxTokens  = 4096
	reviewMaxTokens = 2048
)

// Context bundles the intake answers plus optional repository README
// excerpt fed to generation prompts.
type Context struct {
	Description string
	Users       string
	Problem     string
	TechStack   string
	RepoContext string
}

// Service abstracts the four generation calls the conversation engine
// makes. All of them may legitimately return degenerate results (zero
// stories, empty review text); only transport/API failures are errors.
type Service interface {
	GenerateStories(ctx context.Context, gc Context) ([]model.Story, error)
	RefineStories(ctx context.Context, current []model.Story, feedback string) ([]model.Story, error)
	ReviewEpic(ctx context.Context, epic *model.Epic) (string, error)
	RefineStory(ctx context.Context, story model.Story, instruction string, gc Context) (model.Story, error)
}

type service struct {
	client llm.Client
}

func NewService(client llm.Client) Service {
	return &service{client: client}
}

func (s *service) GenerateStories(ctx context.Context, gc Context) ([]model.Story, error) {
	text, err := s.complete(ctx, storyGenerationPrompt(gc), storyMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating stories: %w", err)
	}

	parsed := stories.Parse(text)
	slog.InfoContext(ctx, "stories generated",
		"count", len(parsed),
		"response_len", len(text))
	if len(parsed) == 0 {
		slog.WarnContext(ctx, "no stories parsed from generation response",
			"response_head", logger.Truncate(text, 500))
	}

	return parsed, nil
}

func (s *service) RefineStories(ctx context.Context, current []model.Story, feedback string) ([]model.Story, error) {
	text, err := s.complete(ctx, storyRefinementPrompt(current, feedback), storyMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("refining stories: %w", err)
	}

	parsed := stories.Parse(text)
	slog.InfoContext(ctx, "stories refined",
		"count", len(parsed),
		"previous_count", len(current))

	return parsed, nil
}

func (s *service) ReviewEpic(ctx context.Context, epic *model.Epic) (string, error) {
	text, err := s.complete(ctx, reviewPrompt(epic), reviewMaxTokens)
	if err != nil {
		return "", fmt.Errorf("reviewing epic: %w", err)
	}

	slog.InfoContext(ctx, "epic reviewed", "response_len", len(text))
	return text, nil
}

func (s *service) RefineStory(ctx context.Context, story model.Story, instruction string, gc Context) (model.Story, error) {
	text, err := s.complete(ctx, singleStoryRefinementPrompt(story, instruction, gc), reviewMaxTokens)
	if err != nil {
		return model.Story{}, fmt.Errorf("refining story %s: %w", story.ID, err)
	}

	updated := stories.ParseSingle(text)

	// The refined story replaces content only. Id and tracker linkage are
	// owned by the existing record and must survive the update.
	updated.ID = story.ID
	updated.IssueIID = story.IssueIID
	updated.IssueURL = story.IssueURL
	if updated.Title == "" {
		updated.Title = story.Title
	}
	if updated.Story == "" {
		updated.Story = story.Story
	}
	if len(updated.AcceptanceCriteria) == 0 {
		updated.AcceptanceCriteria = story.AcceptanceCriteria
	}

	slog.InfoContext(ctx, "story refined", "story_id", story.ID)
	return updated, nil
}

// complete issues one completion with a single retry on transient errors.
func (s *service) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := s.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		if !llm.IsRetryable(ctx, err) {
			return "", err
		}
		resp, err = s.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: maxTokens})
		if err != nil {
			return "", err
		}
	}
	return resp.Text, nil
}
