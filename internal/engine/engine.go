// Package engine owns the conversation state machine: the session
// registry, the per-state transition handlers, and orchestration of the
// generation and tracker gateways. It is transport-agnostic; the HTTP
// layer feeds it commands and thread messages and it replies through a
// chat.Poster.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/max-mines/epic-bot/common/logger"
	"github.com/max-mines/epic-bot/internal/chat"
	"github.com/max-mines/epic-bot/internal/model"
	"github.com/max-mines/epic-bot/internal/service/generation"
	"github.com/max-mines/epic-bot/internal/service/issue_tracker"
	"github.com/max-mines/epic-bot/internal/stories"
	"github.com/max-mines/epic-bot/internal/store"
)

// Config bounds the engine's session lifecycle and refinement loop.
type Config struct {
	Retention      time.Duration // how long idle sessions survive
	SweepInterval  time.Duration // how often the sweeper runs
	MaxRefinements int           // bulk-refinement rejections before forced publish
}

type handlerFunc func(ctx context.Context, s *model.Session, text string) error

// Engine is the conversation engine. One instance per process; sessions in
// different threads run concurrently, turns within one thread are
// serialized by a per-session lock.
type Engine struct {
	registry SessionRegistry
	answers  store.AnswerCache
	epics    store.EpicStore
	tracker  issue_tracker.Service
	gen      generation.Service
	poster   chat.Poster

	handlers map[model.SessionState]handlerFunc
	locks    *keyedMutex
	cfg      Config
	now      func() time.Time
}

func New(
	cfg Config,
	registry SessionRegistry,
	answers store.AnswerCache,
	epics store.EpicStore,
	tracker issue_tracker.Service,
	gen generation.Service,
	poster chat.Poster,
) *Engine {
	if cfg.Retention == 0 {
		cfg.Retention = time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.MaxRefinements == 0 {
		cfg.MaxRefinements = 2
	}

	e := &Engine{
		registry: registry,
		answers:  answers,
		epics:    epics,
		tracker:  tracker,
		gen:      gen,
		poster:   poster,
		locks:    newKeyedMutex(),
		cfg:      cfg,
		now:      time.Now,
	}

	e.handlers = map[model.SessionState]handlerFunc{
		model.StateQ1:                 e.handleQ1,
		model.StateQ2:                 e.handleQ2,
		model.StateQ3:                 e.handleQ3,
		model.StateGenerating:         e.handleBusy,
		model.StateApproval:           e.handleApproval,
		model.StateRefining:           e.handleRefining,
		model.StateReviewing:          e.handleBusy,
		model.StateReviewApproval:     e.handleReviewApproval,
		model.StateInteractiveMode:    e.handleInteractiveMode,
		model.StateStoryFocused:       e.handleStoryFocused,
		model.StateDeleteConfirmation: e.handleDeleteConfirmation,
	}

	return e
}

// StartEpic begins the new-epic flow: a root message opens the thread, the
// session is keyed by that thread id, and Q1 is asked.
func (e *Engine) StartEpic(ctx context.Context, channelID, userID, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return e.poster.PostEphemeral(ctx, channelID, userID,
			"Please provide a description: `/story Build a student dashboard`")
	}

	threadTS, err := e.poster.PostMessage(ctx, channelID, "",
		fmt.Sprintf("📝 Creating epic: \"%s\"\n\nI'll ask 3 quick questions.", description))
	if err != nil {
		return fmt.Errorf("starting epic thread: %w", err)
	}

	session := &model.Session{
		ID:                threadTS,
		State:             model.StateQ1,
		Description:       description,
		UserID:            userID,
		ChannelID:         channelID,
		CurrentStoryIndex: -1,
		LastActivity:      e.now(),
	}
	e.registry.Put(session)

	ctx = e.sessionContext(ctx, session)
	slog.InfoContext(ctx, "epic session started")

	q1 := "Q1: Who is this for? (e.g., \"students\", \"instructors and students\")"
	e.post(ctx, session, e.withSameHint(ctx, session, q1, func(a model.Answers) string { return a.Users }))
	return nil
}

// StartDelete begins the deletion flow for a published epic, identified by
// its tracker milestone id.
func (e *Engine) StartDelete(ctx context.Context, channelID, userID, ref string) error {
	milestoneID, err := strconv.Atoi(strings.TrimSpace(ref))
	if err != nil {
		return e.poster.PostEphemeral(ctx, channelID, userID,
			"Please provide a milestone id: `/delete-epic 42`")
	}

	epic, err := e.tracker.FetchGrouping(ctx, milestoneID)
	if err != nil {
		return e.poster.PostEphemeral(ctx, channelID, userID,
			fmt.Sprintf("❌ Error fetching epic %d: %v", milestoneID, err))
	}

	listing := "(none)"
	if len(epic.Stories) > 0 {
		lines := make([]string, 0, len(epic.Stories))
		for _, st := range epic.Stories {
			lines = append(lines, fmt.Sprintf("- #%d: %s", st.IssueIID, st.Title))
		}
		listing = strings.Join(lines, "\n")
	}

	threadTS, err := e.poster.PostMessage(ctx, channelID, "", fmt.Sprintf(
		"⚠️ Confirm deletion of epic %d: %s\n\nStories to be closed (%d):\n%s\n\nType `Y` to confirm deletion, or anything else to cancel.",
		milestoneID, epic.Title, len(epic.Stories), listing))
	if err != nil {
		return fmt.Errorf("starting delete thread: %w", err)
	}

	session := &model.Session{
		ID:                threadTS,
		State:             model.StateDeleteConfirmation,
		Description:       epic.Title,
		UserID:            userID,
		ChannelID:         channelID,
		Epic:              epic,
		Stories:           epic.Stories,
		IsExistingEpic:    true,
		CurrentStoryIndex: -1,
		LastActivity:      e.now(),
	}
	e.registry.Put(session)

	slog.InfoContext(e.sessionContext(ctx, session), "delete session started",
		"milestone_id", milestoneID)
	return nil
}

// StartReview begins the review flow for an already-published epic. With no
// reference it lists open milestones instead of starting a session.
func (e *Engine) StartReview(ctx context.Context, channelID, userID, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return e.listOpenEpics(ctx, channelID, userID)
	}

	milestoneID, err := strconv.Atoi(ref)
	if err != nil {
		return e.poster.PostEphemeral(ctx, channelID, userID,
			"Please provide a milestone id: `/review-epic 42` (or no argument to list open epics)")
	}

	epic, err := e.tracker.FetchGrouping(ctx, milestoneID)
	if err != nil {
		return e.poster.PostEphemeral(ctx, channelID, userID,
			fmt.Sprintf("❌ Error fetching epic %d: %v", milestoneID, err))
	}

	threadTS, err := e.poster.PostMessage(ctx, channelID, "", fmt.Sprintf(
		"🔍 Reviewing epic: %s (%d stories)\n\nRunning review...", epic.Title, len(epic.Stories)))
	if err != nil {
		return fmt.Errorf("starting review thread: %w", err)
	}

	session := &model.Session{
		ID:          threadTS,
		State:       model.StateReviewing,
		Description: epic.Title,
		UserID:      userID,
		ChannelID:   channelID,
		Answers: model.Answers{
			Users:     epic.Users,
			Problem:   epic.Problem,
			TechStack: epic.TechStack,
		},
		Epic:              epic,
		Stories:           epic.Stories,
		IsExistingEpic:    true,
		CurrentStoryIndex: -1,
		LastActivity:      e.now(),
	}
	e.registry.Put(session)

	ctx = e.sessionContext(ctx, session)
	slog.InfoContext(ctx, "review session started", "milestone_id", milestoneID)

	// Keep a local copy of the fetched epic before any refinement happens.
	e.saveEpicBestEffort(ctx, session)
	e.runReview(ctx, session)
	return nil
}

func (e *Engine) listOpenEpics(ctx context.Context, channelID, userID string) error {
	groupings, err := e.tracker.ListOpenGroupings(ctx)
	if err != nil {
		return e.poster.PostEphemeral(ctx, channelID, userID,
			fmt.Sprintf("❌ Error listing open epics: %v", err))
	}
	if len(groupings) == 0 {
		return e.poster.PostEphemeral(ctx, channelID, userID, "No open epics found.")
	}

	lines := make([]string, 0, len(groupings))
	for _, g := range groupings {
		lines = append(lines, fmt.Sprintf("- %d: %s", g.ID, g.Title))
	}
	return e.poster.PostEphemeral(ctx, channelID, userID,
		"Open epics:\n"+strings.Join(lines, "\n")+"\n\nRun `/review-epic <id>` to review one.")
}

// HandleMessage routes a thread reply to its session's current state
// handler. Messages from bots, outside threads, or in untracked threads
// are ignored. No error escapes: failures surface as thread replies.
func (e *Engine) HandleMessage(ctx context.Context, threadTS, userID, text string, isBot bool) {
	if isBot || threadTS == "" {
		return
	}

	unlock := e.locks.Lock(threadTS)
	defer unlock()

	session, ok := e.registry.Get(threadTS)
	if !ok {
		return
	}

	session.Touch(e.now())
	ctx = e.sessionContext(ctx, session)
	slog.DebugContext(ctx, "handling thread message", "state", string(session.State))

	handler, ok := e.handlers[session.State]
	if !ok {
		slog.ErrorContext(ctx, "no handler for state", "state", string(session.State))
		return
	}

	if err := handler(ctx, session, strings.TrimSpace(text)); err != nil {
		slog.ErrorContext(ctx, "turn failed",
			"state", string(session.State),
			"error", err)
		e.post(ctx, session, fmt.Sprintf("❌ Error: %v", err))
	}
}

// Sweep evicts sessions idle past the retention window. Eviction is atomic
// removal by key, taken under the session lock so it never races a turn in
// flight.
func (e *Engine) Sweep(ctx context.Context) int {
	cutoff := e.now().Add(-e.cfg.Retention)
	evicted := 0

	for _, id := range e.registry.Stale(cutoff) {
		unlock := e.locks.Lock(id)
		if s, ok := e.registry.Get(id); ok && s.LastActivity.Before(cutoff) {
			e.registry.Delete(id)
			evicted++
		}
		unlock()
	}

	if evicted > 0 {
		slog.InfoContext(ctx, "stale sessions evicted", "count", evicted)
	}
	return evicted
}

// RunSweeper runs Sweep on the configured interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

func (e *Engine) sessionContext(ctx context.Context, s *model.Session) context.Context {
	fields := logger.LogFields{
		SessionID: logger.Ptr(s.ID),
		UserID:    logger.Ptr(s.UserID),
		Component: "bot.engine",
	}
	if s.Epic != nil {
		fields.EpicID = logger.Ptr(s.Epic.ID)
	}
	return logger.WithLogFields(ctx, fields)
}

// post sends a reply into the session's thread. Posting failures are
// logged, not propagated: there is nowhere else to report them.
func (e *Engine) post(ctx context.Context, s *model.Session, text string) {
	if _, err := e.poster.PostMessage(ctx, s.ChannelID, s.ID, text); err != nil {
		slog.ErrorContext(ctx, "posting reply failed", "error", err)
	}
}

// ensureEpicSaved creates the epic document on first save and re-persists
// the current stories on every durable point after that.
func (e *Engine) ensureEpicSaved(ctx context.Context, s *model.Session) (*model.Epic, error) {
	if s.Epic == nil {
		now := e.now().UTC()
		s.Epic = &model.Epic{
			ID:        "epic-" + now.Format("2006-01-02T15-04-05"),
			Title:     s.Description,
			CreatedBy: s.UserID,
			CreatedAt: now,
			Users:     s.Answers.Users,
			Problem:   s.Answers.Problem,
			TechStack: s.Answers.TechStack,
		}
	}
	s.Epic.Stories = s.Stories

	if err := e.epics.Save(ctx, s.Epic); err != nil {
		return nil, fmt.Errorf("saving epic: %w", err)
	}
	return s.Epic, nil
}

// saveEpicBestEffort persists the session's epic at a durable point where
// a storage failure should not derail the conversation.
func (e *Engine) saveEpicBestEffort(ctx context.Context, s *model.Session) {
	if s.Epic == nil {
		return
	}
	s.Epic.Stories = s.Stories
	if err := e.epics.Save(ctx, s.Epic); err != nil {
		slog.WarnContext(ctx, "saving epic failed", "epic_id", s.Epic.ID, "error", err)
	}
}

func (e *Engine) generationContext(s *model.Session, repoContext string) generation.Context {
	gc := generation.Context{
		Description: s.Description,
		Users:       s.Answers.Users,
		Problem:     s.Answers.Problem,
		TechStack:   s.Answers.TechStack,
		RepoContext: repoContext,
	}
	if s.Epic != nil {
		if gc.Description == "" {
			gc.Description = s.Epic.Title
		}
		if gc.Users == "" {
			gc.Users = s.Epic.Users
		}
		if gc.Problem == "" {
			gc.Problem = s.Epic.Problem
		}
		if gc.TechStack == "" {
			gc.TechStack = s.Epic.TechStack
		}
	}
	return gc
}

// withSameHint appends a `same` hint to an intake question when the user
// has a cached answer for that slot.
func (e *Engine) withSameHint(ctx context.Context, s *model.Session, question string, slot func(model.Answers) string) string {
	cached, ok, err := e.answers.Get(ctx, s.UserID)
	if err != nil {
		slog.WarnContext(ctx, "answer cache read failed", "error", err)
		return question
	}
	if !ok || slot(cached) == "" {
		return question
	}
	return fmt.Sprintf("%s\nReply `same` to reuse your previous answer: \"%s\"", question, slot(cached))
}

// resolveAnswer returns the cached slot value when the user replies `same`
// and a cached answer exists; otherwise the text is the answer, including
// a literal "same" with no cache present.
func (e *Engine) resolveAnswer(ctx context.Context, s *model.Session, text string, slot func(model.Answers) string) string {
	if !strings.EqualFold(text, "same") {
		return text
	}
	cached, ok, err := e.answers.Get(ctx, s.UserID)
	if err != nil {
		slog.WarnContext(ctx, "answer cache read failed", "error", err)
		return text
	}
	if !ok || slot(cached) == "" {
		return text
	}
	return slot(cached)
}

// mergeTrackerLinkage carries issue linkage from the previous story set
// onto a freshly parsed one, matched by story id. A bulk refinement
// rewrites content but must not orphan already-published issues.
func mergeTrackerLinkage(previous, updated []model.Story) []model.Story {
	byID := make(map[string]model.Story, len(previous))
	for _, st := range previous {
		byID[st.ID] = st
	}

	for i := range updated {
		if updated[i].IssueIID != 0 {
			continue
		}
		if old, ok := byID[updated[i].ID]; ok {
			updated[i].IssueIID = old.IssueIID
			updated[i].IssueURL = old.IssueURL
		}
	}
	return updated
}

const focusHelp = "\n\nDescribe a change to refine this story, or use `next`, `prev`, `back`."

const approvalPrompt = "Look good? [Y/n] (reply `review` for an AI review, `refine` to edit stories one by one)"

func (e *Engine) interactiveMenu(s *model.Session) string {
	return fmt.Sprintf(
		"🛠 Interactive mode (%d stories):\n\n%s\n\nReply with a story number to focus it, `overview` for full details, or `done` when finished.",
		len(s.Stories), stories.FormatTitles(s.Stories))
}
