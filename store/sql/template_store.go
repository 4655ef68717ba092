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

type TemplateStore struct {
	db   *bun.DB
	repo repository.Repository[*templateRecord]
}

func NewTemplateStore(db *bun.DB) (*TemplateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*templateRecord](db, templateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid template repository wiring: %w", err)
		}
	}
	return &TemplateStore{db: db, repo: repo}, nil
}

var _ core.TemplateStore = (*TemplateStore)(nil)

func (s *TemplateStore) Get(ctx context.Context, tenantID string, name string) (core.Template, error) {
	if s == nil || s.db == nil {
		return core.Template{}, fmt.Errorf("sqlstore: template store is not configured")
	}
	record := &templateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.name = ?", strings.TrimSpace(name)).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Template{}, fmt.Errorf("sqlstore: template %q for tenant %q: %w", name, tenantID, core.ErrTemplateNotFound)
		}
		return core.Template{}, err
	}
	return record.toDomain(), nil
}

func (s *TemplateStore) UpsertStatus(ctx context.Context, tenantID string, name string, language string, status core.TemplateStatus) (core.Template, error) {
	if s == nil || s.db == nil {
		return core.Template{}, fmt.Errorf("sqlstore: template store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	name = strings.TrimSpace(name)
	if tenantID == "" || name == "" {
		return core.Template{}, fmt.Errorf("sqlstore: template tenant id and name are required")
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en_US"
	}

	now := time.Now().UTC()
	record := &templateRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Language:  language,
		Status:    string(status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, name, language) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Template{}, err
	}
	return s.Get(ctx, tenantID, name)
}
