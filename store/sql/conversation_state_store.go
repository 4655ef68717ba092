package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-chatflow/core"
)

type ConversationStateStore struct {
	db   *bun.DB
	repo repository.Repository[*conversationStateRecord]
}

func NewConversationStateStore(db *bun.DB) (*ConversationStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*conversationStateRecord](db, stateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid conversation state repository wiring: %w", err)
		}
	}
	return &ConversationStateStore{db: db, repo: repo}, nil
}

var _ core.ConversationStateStore = (*ConversationStateStore)(nil)

func (s *ConversationStateStore) Get(ctx context.Context, key core.ConversationKey) (core.ConversationState, error) {
	if s == nil || s.db == nil {
		return core.ConversationState{}, fmt.Errorf("sqlstore: conversation state store is not configured")
	}
	if err := key.Validate(); err != nil {
		return core.ConversationState{}, err
	}
	record := &conversationStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", key.TenantID).
		Where("?TableAlias.contact_id = ?", key.ContactID).
		Where("?TableAlias.flow_id = ?", key.FlowID).
		Where("?TableAlias.active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ConversationState{}, core.ErrStateNotFound
		}
		return core.ConversationState{}, err
	}
	return record.toDomain(), nil
}

func (s *ConversationStateStore) GetActive(ctx context.Context, tenantID string, contactID string) (core.ConversationState, error) {
	if s == nil || s.db == nil {
		return core.ConversationState{}, fmt.Errorf("sqlstore: conversation state store is not configured")
	}
	record := &conversationStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.contact_id = ?", strings.TrimSpace(contactID)).
		Where("?TableAlias.active = ?", true).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ConversationState{}, core.ErrStateNotFound
		}
		return core.ConversationState{}, err
	}
	return record.toDomain(), nil
}

func (s *ConversationStateStore) Create(ctx context.Context, state core.ConversationState) (core.ConversationState, error) {
	if s == nil || s.db == nil {
		return core.ConversationState{}, fmt.Errorf("sqlstore: conversation state store is not configured")
	}
	if err := state.Key().Validate(); err != nil {
		return core.ConversationState{}, err
	}
	now := time.Now().UTC()
	if strings.TrimSpace(state.ID) == "" {
		state.ID = uuid.NewString()
	}
	if state.Version <= 0 {
		state.Version = 1
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	record := stateToRecord(state)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.ConversationState{}, err
	}
	return record.toDomain(), nil
}

// Update applies the optimistic version check: the row is written only when
// its stored version still matches the caller's snapshot. A miss reports
// ErrStateVersionConflict and leaves the row untouched.
func (s *ConversationStateStore) Update(ctx context.Context, state core.ConversationState) (core.ConversationState, error) {
	if s == nil || s.db == nil {
		return core.ConversationState{}, fmt.Errorf("sqlstore: conversation state store is not configured")
	}
	if strings.TrimSpace(state.ID) == "" {
		return core.ConversationState{}, fmt.Errorf("sqlstore: conversation state id is required")
	}

	now := time.Now().UTC()
	record := stateToRecord(state)
	record.Version = state.Version + 1
	record.UpdatedAt = now
	result, err := s.db.NewUpdate().
		Model(record).
		Column("flow_id", "current_node_id", "variables", "failed_attempts", "active", "version", "updated_at").
		Where("id = ?", state.ID).
		Where("version = ?", state.Version).
		Exec(ctx)
	if err != nil {
		return core.ConversationState{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.ConversationState{}, err
	}
	if affected == 0 {
		return core.ConversationState{}, core.ErrStateVersionConflict
	}

	state.Version++
	state.UpdatedAt = now
	return state, nil
}

func (s *ConversationStateStore) Deactivate(ctx context.Context, key core.ConversationKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: conversation state store is not configured")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.NewUpdate().
		Model((*conversationStateRecord)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", key.TenantID).
		Where("contact_id = ?", key.ContactID).
		Where("flow_id = ?", key.FlowID).
		Exec(ctx)
	return err
}

func (s *ConversationStateStore) DeactivateStale(ctx context.Context, tenantID string, inactiveSince time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: conversation state store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*conversationStateRecord)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("active = ?", true).
		Where("updated_at <= ?", inactiveSince.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
