package issue_tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/max-mines/epic-bot/core/config"
	"github.com/max-mines/epic-bot/internal/model"
)

// storyLabels mark issues created by the bot so they are distinguishable
// from hand-filed issues in the same project.
var storyLabels = gitlab.LabelOptions{"user-story", "epic-bot"}

type gitLabService struct {
	client    *gitlab.Client
	projectID int
}

// NewGitLabService creates a Service backed by the configured GitLab
// project.
func NewGitLabService(cfg config.GitLabConfig) (Service, error) {
	client, err := newClient(cfg.BaseURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabService{
		client:    client,
		projectID: int(cfg.ProjectID),
	}, nil
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (s *gitLabService) Create(ctx context.Context, epic *model.Epic) (*PublishResult, error) {
	milestone, _, err := s.client.Milestones.CreateMilestone(
		s.projectID,
		&gitlab.CreateMilestoneOptions{
			Title:       gitlab.Ptr(FormatMilestoneTitle(epic)),
			Description: gitlab.Ptr(FormatMilestoneDescription(epic)),
		},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("creating milestone: %w", err)
	}

	// Persist linkage immediately so a failure while creating issues still
	// leaves a reconcilable epic behind.
	epic.MilestoneID = milestone.ID
	epic.MilestoneURL = milestone.WebURL

	slog.InfoContext(ctx, "milestone created",
		"milestone_id", milestone.ID,
		"title", milestone.Title)

	result := &PublishResult{
		MilestoneID:  milestone.ID,
		MilestoneURL: milestone.WebURL,
		Title:        epic.Title,
	}

	for i := range epic.Stories {
		story := &epic.Stories[i]
		issue, _, err := s.client.Issues.CreateIssue(
			s.projectID,
			&gitlab.CreateIssueOptions{
				Title:       gitlab.Ptr(FormatIssueTitle(story)),
				Description: gitlab.Ptr(FormatIssueBody(story)),
				MilestoneID: gitlab.Ptr(milestone.ID),
				Labels:      &storyLabels,
			},
			gitlab.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("creating issue for %s: %w", story.ID, err)
		}

		story.IssueIID = issue.IID
		story.IssueURL = issue.WebURL
		result.Issues = append(result.Issues, IssueRef{
			IID:   issue.IID,
			Title: story.Title,
			URL:   issue.WebURL,
		})
	}

	slog.InfoContext(ctx, "epic published",
		"milestone_id", milestone.ID,
		"issues", len(result.Issues))

	return result, nil
}

func (s *gitLabService) Update(ctx context.Context, epic *model.Epic) (*PublishResult, error) {
	if !epic.Published() {
		return nil, fmt.Errorf("epic %s has no milestone, cannot update", epic.ID)
	}

	result := &PublishResult{
		MilestoneID: epic.MilestoneID,
		Title:       epic.Title,
	}

	for i := range epic.Stories {
		story := &epic.Stories[i]
		if story.IssueIID == 0 {
			slog.WarnContext(ctx, "story has no issue, skipping update", "story_id", story.ID)
			continue
		}

		ref, err := s.UpdateStory(ctx, story)
		if err != nil {
			return nil, err
		}
		result.Issues = append(result.Issues, *ref)
	}

	milestone, _, err := s.client.Milestones.UpdateMilestone(
		s.projectID,
		epic.MilestoneID,
		&gitlab.UpdateMilestoneOptions{
			Title:       gitlab.Ptr(FormatMilestoneTitle(epic)),
			Description: gitlab.Ptr(FormatMilestoneDescription(epic)),
		},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("updating milestone %d: %w", epic.MilestoneID, err)
	}

	epic.MilestoneURL = milestone.WebURL
	result.MilestoneURL = milestone.WebURL

	slog.InfoContext(ctx, "epic updated",
		"milestone_id", epic.MilestoneID,
		"issues", len(result.Issues))

	return result, nil
}

func (s *gitLabService) UpdateStory(ctx context.Context, story *model.Story) (*IssueRef, error) {
	if story.IssueIID == 0 {
		return nil, fmt.Errorf("story %s has no issue, cannot update", story.ID)
	}

	issue, _, err := s.client.Issues.UpdateIssue(
		s.projectID,
		story.IssueIID,
		&gitlab.UpdateIssueOptions{
			Title:       gitlab.Ptr(FormatIssueTitle(story)),
			Description: gitlab.Ptr(FormatIssueBody(story)),
		},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("updating issue %d: %w", story.IssueIID, err)
	}

	return &IssueRef{
		IID:   issue.IID,
		Title: story.Title,
		URL:   issue.WebURL,
	}, nil
}

func (s *gitLabService) Close(ctx context.Context, milestoneID int) (int, error) {
	milestone, _, err := s.client.Milestones.GetMilestone(
		s.projectID, milestoneID, gitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("fetching milestone %d: %w", milestoneID, err)
	}

	issues, err := s.listMilestoneIssues(ctx, milestone.Title)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, issue := range issues {
		if issue.State != "opened" {
			continue
		}
		_, _, err := s.client.Issues.UpdateIssue(
			s.projectID,
			issue.IID,
			&gitlab.UpdateIssueOptions{StateEvent: gitlab.Ptr("close")},
			gitlab.WithContext(ctx),
		)
		if err != nil {
			return closed, fmt.Errorf("closing issue %d: %w", issue.IID, err)
		}
		closed++
	}

	_, _, err = s.client.Milestones.UpdateMilestone(
		s.projectID,
		milestoneID,
		&gitlab.UpdateMilestoneOptions{StateEvent: gitlab.Ptr("close")},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return closed, fmt.Errorf("closing milestone %d: %w", milestoneID, err)
	}

	slog.InfoContext(ctx, "epic closed",
		"milestone_id", milestoneID,
		"issues_closed", closed)

	return closed, nil
}

func (s *gitLabService) ListOpenGroupings(ctx context.Context) ([]Grouping, error) {
	milestones, _, err := s.client.Milestones.ListMilestones(
		s.projectID,
		&gitlab.ListMilestonesOptions{State: gitlab.Ptr("active")},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("listing milestones: %w", err)
	}

	groupings := make([]Grouping, 0, len(milestones))
	for _, m := range milestones {
		groupings = append(groupings, Grouping{ID: m.ID, Title: m.Title})
	}
	return groupings, nil
}

func (s *gitLabService) FetchGrouping(ctx context.Context, milestoneID int) (*model.Epic, error) {
	milestone, _, err := s.client.Milestones.GetMilestone(
		s.projectID, milestoneID, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching milestone %d: %w", milestoneID, err)
	}

	epicID, title := ParseMilestoneTitle(milestone.Title)
	if epicID == "" {
		epicID = fmt.Sprintf("epic-milestone-%d", milestone.ID)
	}
	meta := ParseMilestoneDescription(milestone.Description)

	epic := &model.Epic{
		ID:           epicID,
		Title:        title,
		Users:        meta.Users,
		Problem:      meta.Problem,
		TechStack:    meta.TechStack,
		MilestoneID:  milestone.ID,
		MilestoneURL: milestone.WebURL,
	}

	issues, err := s.listMilestoneIssues(ctx, milestone.Title)
	if err != nil {
		return nil, err
	}

	for _, issue := range issues {
		epic.Stories = append(epic.Stories,
			ParseIssue(issue.Title, issue.Description, issue.IID, issue.WebURL))
	}
	sort.SliceStable(epic.Stories, func(i, j int) bool {
		return storyIndex(epic.Stories[i].ID) < storyIndex(epic.Stories[j].ID)
	})

	return epic, nil
}

func (s *gitLabService) FetchReadme(ctx context.Context) (string, error) {
	raw, _, err := s.client.RepositoryFiles.GetRawFile(
		s.projectID,
		"README.md",
		&gitlab.GetRawFileOptions{},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("fetching readme: %w", err)
	}
	return string(raw), nil
}

// listMilestoneIssues pages through all issues assigned to the milestone.
// The GitLab issues API filters by milestone title, not id.
func (s *gitLabService) listMilestoneIssues(ctx context.Context, milestoneTitle string) ([]*gitlab.Issue, error) {
	var all []*gitlab.Issue
	opts := &gitlab.ListProjectIssuesOptions{
		Milestone:   gitlab.Ptr(milestoneTitle),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}

	for {
		issues, resp, err := s.client.Issues.ListProjectIssues(
			s.projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing milestone issues: %w", err)
		}
		all = append(all, issues...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}
