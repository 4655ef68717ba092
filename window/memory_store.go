package window

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-chatflow/core"
)

// MemoryStore is a map-backed WindowStore for tests and single-process
// deployments without a database.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]core.ConversationWindow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: map[string]core.ConversationWindow{},
	}
}

var _ core.WindowStore = (*MemoryStore)(nil)

func memoryWindowKey(tenantID, contactID string) string {
	return strings.TrimSpace(tenantID) + "|" + strings.TrimSpace(contactID)
}

func (s *MemoryStore) Get(_ context.Context, tenantID, contactID string) (core.ConversationWindow, error) {
	if s == nil {
		return core.ConversationWindow{}, core.ErrWindowNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.windows[memoryWindowKey(tenantID, contactID)]
	if !ok {
		return core.ConversationWindow{}, core.ErrWindowNotFound
	}
	return window, nil
}

func (s *MemoryStore) Upsert(_ context.Context, window core.ConversationWindow) (core.ConversationWindow, error) {
	if s == nil {
		return core.ConversationWindow{}, core.ErrWindowNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(window.ID) == "" {
		window.ID = uuid.NewString()
	}
	s.windows[memoryWindowKey(window.TenantID, window.ContactID)] = window
	return window, nil
}

func (s *MemoryStore) ExpireDue(_ context.Context, tenantID string, now time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tenantID = strings.TrimSpace(tenantID)
	var expired int64
	for key, window := range s.windows {
		if tenantID != "" && window.TenantID != tenantID {
			continue
		}
		if window.Status == core.WindowStatusExpired {
			continue
		}
		if window.EndsAt.After(now) {
			continue
		}
		window.Status = core.WindowStatusExpired
		window.UpdatedAt = now.UTC()
		s.windows[key] = window
		expired++
	}
	return expired, nil
}
