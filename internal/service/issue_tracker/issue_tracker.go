// Package issue_tracker publishes epics to the external tracker as a
// milestone with child issues, and reads them back.
package issue_tracker

import (
	"context"

	"github.com/max-mines/epic-bot/internal/model"
)

// IssueRef identifies one published story issue.
type IssueRef struct {
	IID   int
	Title string
	URL   string
}

// PublishResult reports what a create or update touched on the tracker.
type PublishResult struct {
	MilestoneID  int
	MilestoneURL string
	Title        string
	Issues       []IssueRef
}

// Grouping is one open milestone, as shown in the review picker.
type Grouping struct {
	ID    int
	Title string
}

// Service is the gateway to the external issue tracker. Create and Update
// write returned identifiers back onto the epic and its stories before
// returning, so a partial failure leaves enough linkage behind to reconcile
// manually.
type Service interface {
	// Create publishes the epic as a new milestone plus one issue per
	// story, in story order.
	Create(ctx context.Context, epic *model.Epic) (*PublishResult, error)

	// Update rewrites the milestone and every already-published story
	// issue. Requires the epic to carry a milestone id.
	Update(ctx context.Context, epic *model.Epic) (*PublishResult, error)

	// UpdateStory rewrites a single story issue. Requires the story to
	// carry an issue iid.
	UpdateStory(ctx context.Context, story *model.Story) (*IssueRef, error)

	// Close closes all open issues under the milestone, then the milestone
	// itself. Returns the number of issues transitioned to closed.
	Close(ctx context.Context, milestoneID int) (int, error)

	// ListOpenGroupings returns all open milestones.
	ListOpenGroupings(ctx context.Context) ([]Grouping, error)

	// FetchGrouping reconstructs an epic from a milestone and its issues.
	FetchGrouping(ctx context.Context, milestoneID int) (*model.Epic, error)

	// FetchReadme returns the project README text for generation context.
	// Best effort: any failure is reported as an error the caller treats
	// as "no context available".
	FetchReadme(ctx context.Context) (string, error)
}
