package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/max-mines/epic-bot/internal/model"
	"github.com/max-mines/epic-bot/internal/service/generation"
	"github.com/max-mines/epic-bot/internal/service/issue_tracker"
)

// mockPoster implements chat.Poster, recording everything posted.
type mockPoster struct {
	mu         sync.Mutex
	messages   []postedMessage
	ephemerals []postedMessage
	nextTS     int
}

type postedMessage struct {
	Channel  string
	ThreadTS string
	User     string
	Text     string
	TS       string
}

func (p *mockPoster) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTS++
	ts := fmt.Sprintf("17000000%02d.0001", p.nextTS)
	p.messages = append(p.messages, postedMessage{Channel: channelID, ThreadTS: threadTS, Text: text, TS: ts})
	return ts, nil
}

// rootTS returns the thread id of the first root message posted, which is
// the session key for flows started through the engine.
func (p *mockPoster) rootTS() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.messages {
		if m.ThreadTS == "" {
			return m.TS
		}
	}
	return ""
}

func (p *mockPoster) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ephemerals = append(p.ephemerals, postedMessage{Channel: channelID, User: userID, Text: text})
	return nil
}

func (p *mockPoster) lastMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		return ""
	}
	return p.messages[len(p.messages)-1].Text
}

func (p *mockPoster) lastEphemeral() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ephemerals) == 0 {
		return ""
	}
	return p.ephemerals[len(p.ephemerals)-1].Text
}

// mockGenerator implements generation.Service for testing.
type mockGenerator struct {
	generateFn    func(ctx context.Context, gc generation.Context) ([]model.Story, error)
	refineFn      func(ctx context.Context, current []model.Story, feedback string) ([]model.Story, error)
	reviewFn      func(ctx context.Context, epic *model.Epic) (string, error)
	refineStoryFn func(ctx context.Context, story model.Story, instruction string, gc generation.Context) (model.Story, error)

	generateCalls    int
	refineCalls      int
	reviewCalls      int
	refineStoryCalls int
}

func (m *mockGenerator) GenerateStories(ctx context.Context, gc generation.Context) ([]model.Story, error) {
	m.generateCalls++
	if m.generateFn != nil {
		return m.generateFn(ctx, gc)
	}
	return twoStories(), nil
}

func (m *mockGenerator) RefineStories(ctx context.Context, current []model.Story, feedback string) ([]model.Story, error) {
	m.refineCalls++
	if m.refineFn != nil {
		return m.refineFn(ctx, current, feedback)
	}
	return current, nil
}

func (m *mockGenerator) ReviewEpic(ctx context.Context, epic *model.Epic) (string, error) {
	m.reviewCalls++
	if m.reviewFn != nil {
		return m.reviewFn(ctx, epic)
	}
	return "✅ Good:\n- solid\n\n⚠️ Issues:\n1. fix X\n2. fix Y", nil
}

func (m *mockGenerator) RefineStory(ctx context.Context, story model.Story, instruction string, gc generation.Context) (model.Story, error) {
	m.refineStoryCalls++
	if m.refineStoryFn != nil {
		return m.refineStoryFn(ctx, story, instruction, gc)
	}
	story.Title = story.Title + " (refined)"
	return story, nil
}

// mockTracker implements issue_tracker.Service for testing.
type mockTracker struct {
	createFn      func(ctx context.Context, epic *model.Epic) (*issue_tracker.PublishResult, error)
	updateFn      func(ctx context.Context, epic *model.Epic) (*issue_tracker.PublishResult, error)
	updateStoryFn func(ctx context.Context, story *model.Story) (*issue_tracker.IssueRef, error)
	closeFn       func(ctx context.Context, milestoneID int) (int, error)
	listFn        func(ctx context.Context) ([]issue_tracker.Grouping, error)
	fetchFn       func(ctx context.Context, milestoneID int) (*model.Epic, error)
	readmeFn      func(ctx context.Context) (string, error)

	createCalls      int
	updateCalls      int
	updateStoryCalls int
	closeCalls       int
}

func (m *mockTracker) Create(ctx context.Context, epic *model.Epic) (*issue_tracker.PublishResult, error) {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, epic)
	}

	epic.MilestoneID = 101
	epic.MilestoneURL = "https://gitlab.example.com/-/milestones/101"
	result := &issue_tracker.PublishResult{
		MilestoneID:  epic.MilestoneID,
		MilestoneURL: epic.MilestoneURL,
		Title:        epic.Title,
	}
	for i := range epic.Stories {
		epic.Stories[i].IssueIID = i + 1
		epic.Stories[i].IssueURL = fmt.Sprintf("https://gitlab.example.com/-/issues/%d", i+1)
		result.Issues = append(result.Issues, issue_tracker.IssueRef{
			IID:   i + 1,
			Title: epic.Stories[i].Title,
			URL:   epic.Stories[i].IssueURL,
		})
	}
	return result, nil
}

func (m *mockTracker) Update(ctx context.Context, epic *model.Epic) (*issue_tracker.PublishResult, error) {
	m.updateCalls++
	if m.updateFn != nil {
		return m.updateFn(ctx, epic)
	}

	result := &issue_tracker.PublishResult{
		MilestoneID:  epic.MilestoneID,
		MilestoneURL: epic.MilestoneURL,
		Title:        epic.Title,
	}
	for _, st := range epic.Stories {
		if st.IssueIID == 0 {
			continue
		}
		result.Issues = append(result.Issues, issue_tracker.IssueRef{IID: st.IssueIID, Title: st.Title, URL: st.IssueURL})
	}
	return result, nil
}

func (m *mockTracker) UpdateStory(ctx context.Context, story *model.Story) (*issue_tracker.IssueRef, error) {
	m.updateStoryCalls++
	if m.updateStoryFn != nil {
		return m.updateStoryFn(ctx, story)
	}
	return &issue_tracker.IssueRef{IID: story.IssueIID, Title: story.Title, URL: story.IssueURL}, nil
}

func (m *mockTracker) Close(ctx context.Context, milestoneID int) (int, error) {
	m.closeCalls++
	if m.closeFn != nil {
		return m.closeFn(ctx, milestoneID)
	}
	return 2, nil
}

func (m *mockTracker) ListOpenGroupings(ctx context.Context) ([]issue_tracker.Grouping, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockTracker) FetchGrouping(ctx context.Context, milestoneID int) (*model.Epic, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, milestoneID)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockTracker) FetchReadme(ctx context.Context) (string, error) {
	if m.readmeFn != nil {
		return m.readmeFn(ctx)
	}
	return "", errors.New("no readme")
}

func twoStories() []model.Story {
	return []model.Story{
		{
			ID:                 "story-001",
			Title:              "Submit assignment",
			Story:              "As a student, I want to submit work so that it can be graded",
			AcceptanceCriteria: []string{"upload succeeds"},
		},
		{
			ID:                 "story-002",
			Title:              "Grade assignment",
			Story:              "As an instructor, I want to grade work so that students get feedback",
			AcceptanceCriteria: []string{"grade stored"},
		},
	}
}
