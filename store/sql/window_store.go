package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-chatflow/core"
)

type WindowStore struct {
	db *bun.DB
}

func NewWindowStore(db *bun.DB) (*WindowStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &WindowStore{db: db}, nil
}

var _ core.WindowStore = (*WindowStore)(nil)

func (s *WindowStore) Get(ctx context.Context, tenantID string, contactID string) (core.ConversationWindow, error) {
	if s == nil || s.db == nil {
		return core.ConversationWindow{}, fmt.Errorf("sqlstore: window store is not configured")
	}
	record := &conversationWindowRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.contact_id = ?", strings.TrimSpace(contactID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ConversationWindow{}, core.ErrWindowNotFound
		}
		return core.ConversationWindow{}, err
	}
	return record.toDomain(), nil
}

func (s *WindowStore) Upsert(ctx context.Context, window core.ConversationWindow) (core.ConversationWindow, error) {
	if s == nil || s.db == nil {
		return core.ConversationWindow{}, fmt.Errorf("sqlstore: window store is not configured")
	}
	tenantID := strings.TrimSpace(window.TenantID)
	contactID := strings.TrimSpace(window.ContactID)
	if tenantID == "" || contactID == "" {
		return core.ConversationWindow{}, fmt.Errorf("sqlstore: window tenant and contact ids are required")
	}

	now := time.Now().UTC()
	if strings.TrimSpace(window.ID) == "" {
		window.ID = uuid.NewString()
	}
	if window.CreatedAt.IsZero() {
		window.CreatedAt = now
	}
	window.UpdatedAt = now

	record := &conversationWindowRecord{
		ID:        window.ID,
		TenantID:  tenantID,
		ContactID: contactID,
		StartedAt: window.StartedAt.UTC(),
		EndsAt:    window.EndsAt.UTC(),
		Status:    string(window.Status),
		CreatedAt: window.CreatedAt,
		UpdatedAt: window.UpdatedAt,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, contact_id) DO UPDATE").
		Set("started_at = EXCLUDED.started_at").
		Set("ends_at = EXCLUDED.ends_at").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.ConversationWindow{}, err
	}
	return s.Get(ctx, tenantID, contactID)
}

// ExpireDue flips every lapsed window in one set-based update so concurrent
// sweep workers cannot double-count the same rows.
func (s *WindowStore) ExpireDue(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: window store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*conversationWindowRecord)(nil)).
		Set("status = ?", string(core.WindowStatusExpired)).
		Set("updated_at = ?", now.UTC()).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("ends_at <= ?", now.UTC()).
		Where("status != ?", string(core.WindowStatusExpired)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
