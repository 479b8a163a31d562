// Package store provides durable storage for epic documents and the
// per-user answer cache.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/max-mines/epic-bot/internal/model"
)

const (
	// MaxEpicSize is the maximum allowed epic document size in bytes.
	MaxEpicSize = 1 * 1024 * 1024 // 1MB
)

var (
	ErrEpicNotFound  = errors.New("epic not found")
	ErrEpicTooLarge  = errors.New("epic exceeds maximum size")
	ErrInvalidEpicID = errors.New("invalid epic id")
)

// epicIDRegex constrains ids to the epic-<timestamp> shape so ids can
// double as filenames without traversal risk.
var epicIDRegex = regexp.MustCompile(`^epic-[A-Za-z0-9T:.-]+$`)

// EpicStore persists epic documents keyed by id. One file per epic; the
// file is the sole durable record of the epic on this side, the tracker is
// the collaboration record.
type EpicStore interface {
	// Save writes the full epic document.
	Save(ctx context.Context, epic *model.Epic) error

	// Load retrieves an epic by id. Returns ErrEpicNotFound if absent.
	Load(ctx context.Context, id string) (*model.Epic, error)

	// List returns the ids of all stored epics.
	List(ctx context.Context) ([]string, error)
}

// LocalEpicStore implements EpicStore using the local filesystem.
type LocalEpicStore struct {
	rootDir string
}

// NewLocalEpicStore creates a LocalEpicStore with the given root directory.
func NewLocalEpicStore(rootDir string) (*LocalEpicStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("epic root directory is required")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating epic root directory: %w", err)
	}

	return &LocalEpicStore{rootDir: rootDir}, nil
}

// Save writes the epic as pretty-printed JSON via temp file + rename so a
// crash mid-write never leaves a truncated document.
func (s *LocalEpicStore) Save(ctx context.Context, epic *model.Epic) error {
	if epic == nil || epic.ID == "" {
		return ErrInvalidEpicID
	}
	if err := validateEpicID(epic.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(epic, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling epic: %w", err)
	}
	if len(data) > MaxEpicSize {
		return ErrEpicTooLarge
	}

	fullPath := filepath.Join(s.rootDir, epic.ID+".json")
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp epic: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming epic: %w", err)
	}

	return nil
}

// Load retrieves an epic document by id.
func (s *LocalEpicStore) Load(ctx context.Context, id string) (*model.Epic, error) {
	if err := validateEpicID(id); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(s.rootDir, id+".json")
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEpicNotFound
		}
		return nil, fmt.Errorf("reading epic: %w", err)
	}

	var epic model.Epic
	if err := json.Unmarshal(data, &epic); err != nil {
		return nil, fmt.Errorf("unmarshaling epic %s: %w", id, err)
	}

	return &epic, nil
}

// List returns the ids of all stored epics, in directory order.
func (s *LocalEpicStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("listing epics: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if validateEpicID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func validateEpicID(id string) error {
	if id == "" || strings.Contains(id, "..") || strings.ContainsRune(id, filepath.Separator) {
		return ErrInvalidEpicID
	}
	if !epicIDRegex.MatchString(id) {
		return ErrInvalidEpicID
	}
	return nil
}
