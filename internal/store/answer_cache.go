package store

import (
	"context"
	"sync"

	"github.com/max-mines/epic-bot/internal/model"
)

// AnswerCache remembers a user's previous answers to the three intake
// questions so they can reply "same" instead of retyping. Best-effort
// memory, not durable state: losing it only costs the user some typing.
type AnswerCache interface {
	// Get returns the cached answers for a user. The boolean reports
	// whether any cached entry exists.
	Get(ctx context.Context, userID string) (model.Answers, bool, error)

	// Put stores the user's full answer triple, replacing any prior entry.
	Put(ctx context.Context, userID string, answers model.Answers) error
}

// MemoryAnswerCache is the default in-process AnswerCache.
type MemoryAnswerCache struct {
	mu      sync.RWMutex
	answers map[string]model.Answers
}

func NewMemoryAnswerCache() *MemoryAnswerCache {
	return &MemoryAnswerCache{answers: make(map[string]model.Answers)}
}

func (c *MemoryAnswerCache) Get(ctx context.Context, userID string) (model.Answers, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.answers[userID]
	return a, ok, nil
}

func (c *MemoryAnswerCache) Put(ctx context.Context, userID string, answers model.Answers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[userID] = answers
	return nil
}
