package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InteractionKind kind of lesson interaction
type InteractionKind string

// interaction kinds
const (
	InteractionView     InteractionKind = "view"
	InteractionStart    InteractionKind = "start"
	InteractionComplete InteractionKind = "complete"
	InteractionBookmark InteractionKind = "bookmark"
	InteractionSearch   InteractionKind = "search"
	InteractionPreview  InteractionKind = "preview"
	InteractionFilter   InteractionKind = "filter"
)

var ErrUnknownInteraction = errors.New("unknown interaction type")

// InteractionMetadata payload attached to an interaction, concrete type depends on the kind
type InteractionMetadata interface {
	sessionID() string
}

// SessionMetadata payload of view, start, complete, bookmark and preview interactions
type SessionMetadata struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Source    string `json:"source,omitempty" validate:"omitempty,max=64"`
	Duration  int    `json:"duration,omitempty" validate:"min=0"` // seconds
}

// SearchMetadata payload of search interactions
type SearchMetadata struct {
	SessionID   string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	SearchQuery string `json:"search_query" validate:"required,max=256"`
}

// FilterMetadata payload of filter interactions
type FilterMetadata struct {
	SessionID    string            `json:"session_id,omitempty" validate:"omitempty,max=128"`
	FilterValues map[string]string `json:"filter_values" validate:"required"`
}

func (m *SessionMetadata) sessionID() string { return m.SessionID }
func (m *SearchMetadata) sessionID() string  { return m.SessionID }
func (m *FilterMetadata) sessionID() string  { return m.SessionID }

// Interaction a decoded lesson interaction
type Interaction struct {
	LessonID string
	Kind     InteractionKind
	Metadata InteractionMetadata
}

// DurationMinutes whole minutes spent, zero for kinds without duration
func (i *Interaction) DurationMinutes() int {
	if m, ok := i.Metadata.(*SessionMetadata); ok && m.Duration > 0 {
		return m.Duration / 60
	}
	return 0
}

// InteractionRequest interaction as posted by clients
type InteractionRequest struct {
	LessonID string          `json:"lesson_id" validate:"required,max=64,excludes=:,ne=overall"`
	Kind     string          `json:"interaction_type" validate:"required,oneof=view start complete bookmark search preview filter"`
	Metadata json.RawMessage `json:"metadata"`
}

// Decode resolve the metadata variant for the requested kind
func (r *InteractionRequest) Decode() (*Interaction, error) {
	var metadata InteractionMetadata
	switch kind := InteractionKind(r.Kind); kind {
	case InteractionView, InteractionStart, InteractionComplete, InteractionBookmark, InteractionPreview:
		metadata = new(SessionMetadata)
	case InteractionSearch:
		metadata = new(SearchMetadata)
	case InteractionFilter:
		metadata = new(FilterMetadata)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInteraction, r.Kind)
	}

	if raw := bytes.TrimSpace(r.Metadata); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, metadata); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", r.Kind, err)
		}
	}
	return &Interaction{
		LessonID: r.LessonID,
		Kind:     InteractionKind(r.Kind),
		Metadata: metadata,
	}, nil
}

// InteractionModel persisted interaction
type InteractionModel struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	LessonID  string          `json:"lesson_id"`
	Kind      InteractionKind `json:"interaction_type"`
	SessionID string          `json:"session_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}
