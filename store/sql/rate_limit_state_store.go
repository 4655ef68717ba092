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

	"github.com/goliatone/go-chatflow/ratelimit"
)

type RateLimitStateStore struct {
	db *bun.DB
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateLimitStateStore{db: db}, nil
}

var _ ratelimit.StateStore = (*RateLimitStateStore)(nil)

func (s *RateLimitStateStore) Get(ctx context.Context, tenantID string) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit tenant id is required")
	}

	record := &rateLimitStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ratelimit.State{}, ratelimit.ErrStateNotFound
		}
		return ratelimit.State{}, err
	}
	return ratelimit.State{
		TenantID:  record.TenantID,
		Sends:     copyTimes(record.Sends),
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	tenantID := strings.TrimSpace(state.TenantID)
	if tenantID == "" {
		return fmt.Errorf("sqlstore: rate-limit tenant id is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	record := &rateLimitStateRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Sends:     copyTimes(state.Sends),
		UpdatedAt: state.UpdatedAt.UTC(),
	}
	if record.Sends == nil {
		record.Sends = []time.Time{}
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id) DO UPDATE").
		Set("sends = EXCLUDED.sends").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
