package model

import "time"

// SessionState is the node of the conversation state machine a session is
// currently on. The set is closed; there is no terminal state value,
// removal from the registry ends the conversation.
type SessionState string

const (
	StateQ1                 SessionState = "Q1"
	StateQ2                 SessionState = "Q2"
	StateQ3                 SessionState = "Q3"
	StateGenerating         SessionState = "GENERATING"
	StateApproval           SessionState = "APPROVAL"
	StateRefining           SessionState = "REFINING"
	StateReviewing          SessionState = "REVIEWING"
	StateReviewApproval     SessionState = "REVIEW_APPROVAL"
	StateInteractiveMode    SessionState = "INTERACTIVE_MODE"
	StateStoryFocused       SessionState = "STORY_FOCUSED"
	StateDeleteConfirmation SessionState = "DELETE_CONFIRMATION"
)

// Answers holds the free-text replies to the three intake questions.
type Answers struct {
	Users     string `json:"users"`
	Problem   string `json:"problem"`
	TechStack string `json:"tech_stack"`
}

// ReviewIssue is one numbered issue extracted from a review response.
// Numbers keep their literal value and need not be contiguous or unique
// across multiple review rounds.
type ReviewIssue struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Session is the in-memory state of one ongoing conversation, keyed by the
// chat thread id. At most one session exists per id; the registry holding
// sessions is the single source of truth for which threads are active.
type Session struct {
	ID          string
	State       SessionState
	Description string
	UserID      string
	ChannelID   string
	Answers     Answers
	Stories     []Story
	Epic        *Epic

	// Feedback is the pending refinement request captured on the approval
	// step; the next REFINING turn sends it to the generation backend.
	Feedback string

	// CurrentStoryIndex is the 0-based cursor into Stories, valid only in
	// the per-story focus sub-flow (-1 when unset).
	CurrentStoryIndex int

	ReviewIssues    []ReviewIssue
	RefinementCount int

	// ModifiedStoryIndices tracks which stories the last single-issue
	// refinement touched, so a publish can update one issue instead of all.
	ModifiedStoryIndices []int

	IsExistingEpic  bool
	HasBeenReviewed bool

	LastActivity time.Time
}

// Touch records inbound activity. LastActivity is monotonically
// non-decreasing; the stale-session sweep keys off it.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}
