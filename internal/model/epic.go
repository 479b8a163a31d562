package model

import "time"

// Story is one unit of work inside an epic: a short title, the
// "As a ... I want ... so that ..." narrative, and its acceptance criteria.
// Tracker linkage fields are populated after a successful publish and
// survive in-place refinements so selective updates can target the right
// issue.
type Story struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Story              string   `json:"story"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	IssueIID           int      `json:"issue_iid,omitempty"`
	IssueURL           string   `json:"issue_url,omitempty"`
}

// Epic is the persisted unit of work. One JSON document per epic, keyed by
// ID. The ID is assigned at first save and never changes.
type Epic struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	Users        string    `json:"users"`
	Problem      string    `json:"problem"`
	TechStack    string    `json:"tech_stack"`
	Stories      []Story   `json:"stories"`
	MilestoneID  int       `json:"milestone_id,omitempty"`
	MilestoneURL string    `json:"milestone_url,omitempty"`
}

// Published reports whether the epic has been pushed to the tracker.
func (e *Epic) Published() bool {
	return e != nil && e.MilestoneID != 0
}

// EpicMetadata is the structured slice of epic fields that round-trips
// through the tracker milestone description.
type EpicMetadata struct {
	Users     string `json:"users"`
	Problem   string `json:"problem"`
	TechStack string `json:"tech_stack"`
}
