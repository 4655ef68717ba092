package chatflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/flow"
)

// MemoryTemplateStore is a map-backed TemplateStore for tests and embedded
// use. Template names are matched case-insensitively per tenant.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]core.Template
}

func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: map[string]core.Template{}}
}

var _ core.TemplateStore = (*MemoryTemplateStore)(nil)

func templateKey(tenantID, name string) string {
	return strings.TrimSpace(tenantID) + "|" + strings.ToLower(strings.TrimSpace(name))
}

func (s *MemoryTemplateStore) Get(_ context.Context, tenantID, name string) (core.Template, error) {
	if s == nil {
		return core.Template{}, core.ErrTemplateNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	template, ok := s.templates[templateKey(tenantID, name)]
	if !ok {
		return core.Template{}, core.ErrTemplateNotFound
	}
	return template, nil
}

func (s *MemoryTemplateStore) UpsertStatus(_ context.Context, tenantID, name, language string, status core.TemplateStatus) (core.Template, error) {
	if s == nil {
		return core.Template{}, core.ErrTemplateNotFound
	}
	now := time.Now().UTC()
	key := templateKey(tenantID, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[key]
	if !ok {
		template = core.Template{
			ID:        uuid.NewString(),
			TenantID:  strings.TrimSpace(tenantID),
			Name:      strings.TrimSpace(name),
			CreatedAt: now,
		}
	}
	if language = strings.TrimSpace(language); language != "" {
		template.Language = language
	}
	template.Status = status
	template.UpdatedAt = now
	s.templates[key] = template
	return template, nil
}

// MemoryTranscript is a map-backed turn log: it doubles as the EventSink the
// router appends to and the transcript read model the queries consume.
type MemoryTranscript struct {
	mu    sync.RWMutex
	turns map[string][]core.TurnEvent
}

func NewMemoryTranscript() *MemoryTranscript {
	return &MemoryTranscript{turns: map[string][]core.TurnEvent{}}
}

var (
	_ core.EventSink   = (*MemoryTranscript)(nil)
	_ TranscriptSource = (*MemoryTranscript)(nil)
)

func transcriptKey(tenantID, contactID string) string {
	return strings.TrimSpace(tenantID) + "|" + strings.TrimSpace(contactID)
}

func (s *MemoryTranscript) RecordTurn(_ context.Context, event core.TurnEvent) error {
	if s == nil {
		return nil
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	key := transcriptKey(event.TenantID, event.ContactID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[key] = append(s.turns[key], event)
	return nil
}

// ListTurns returns the oldest turns first, capped at limit. A non-positive
// limit falls back to 100 to match the SQL read model.
func (s *MemoryTranscript) ListTurns(_ context.Context, tenantID, contactID string, limit int) ([]core.TurnEvent, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.turns[transcriptKey(tenantID, contactID)]
	if len(stored) > limit {
		stored = stored[:limit]
	}
	out := make([]core.TurnEvent, len(stored))
	copy(out, stored)
	return out, nil
}

// memoryFlowWriter adapts the in-process flow store to the authoring surface,
// applying the same normalization the SQL store does before registration.
type memoryFlowWriter struct {
	store *flow.MemoryFlowStore
}

var _ FlowWriter = memoryFlowWriter{}

func (w memoryFlowWriter) SaveFlow(_ context.Context, definition core.Flow, nodes []core.Node) (core.Flow, error) {
	if w.store == nil {
		return core.Flow{}, core.ErrFlowNotFound
	}
	if strings.TrimSpace(definition.ID) == "" {
		definition.ID = uuid.NewString()
	}
	for i := range nodes {
		nodes[i].FlowID = definition.ID
	}
	now := time.Now().UTC()
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}
	definition.UpdatedAt = now
	if err := w.store.Register(definition, nodes); err != nil {
		return core.Flow{}, err
	}
	return definition, nil
}
