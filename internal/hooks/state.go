package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lazypower/chrysalis/internal/detect"
)

// TurnState carries what the submit hook learned to the stop hook of the
// same turn. Hooks run as separate processes, so it lives on disk.
// PendingEventID outlives the turn: it names a boundary waiting for the
// user's answer on a later prompt.
type TurnState struct {
	SurfacedMessageID string                 `json:"surfaced_message_id,omitempty"`
	Prompt            string                 `json:"prompt,omitempty"`
	Breakthrough      bool                   `json:"breakthrough,omitempty"`
	Emotional         *detect.EmotionalShift `json:"emotional,omitempty"`
	PendingEventID    string                 `json:"pending_event_id,omitempty"`
}

// StateDir stores one TurnState file per session.
type StateDir struct {
	Dir string
}

// DefaultStateDir returns the per-user cache location for turn state.
func DefaultStateDir() (StateDir, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return StateDir{}, fmt.Errorf("cache dir: %w", err)
	}
	return StateDir{Dir: filepath.Join(base, "chrysalis", "sessions")}, nil
}

func (s StateDir) path(sessionID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, sessionID)
	return filepath.Join(s.Dir, safe+".json")
}

// Load returns the session's state. A missing file is an empty state.
func (s StateDir) Load(sessionID string) (TurnState, error) {
	var st TurnState
	if sessionID == "" {
		return st, nil
	}
	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read turn state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return TurnState{}, fmt.Errorf("decode turn state: %w", err)
	}
	return st, nil
}

// Save replaces the session's state.
func (s StateDir) Save(sessionID string, st TurnState) error {
	if sessionID == "" {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode turn state: %w", err)
	}
	tmp := s.path(sessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write turn state: %w", err)
	}
	return os.Rename(tmp, s.path(sessionID))
}

// Clear removes the session's state.
func (s StateDir) Clear(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := os.Remove(s.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
