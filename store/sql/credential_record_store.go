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
	"github.com/goliatone/go-chatflow/security"
)

// CredentialRecordStore persists sealed tenant credential envelopes. The
// plaintext never touches the database; security.EncryptedCredentialResolver
// does the sealing.
type CredentialRecordStore struct {
	db *bun.DB
}

func NewCredentialRecordStore(db *bun.DB) (*CredentialRecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &CredentialRecordStore{db: db}, nil
}

var _ security.CredentialRecordStore = (*CredentialRecordStore)(nil)

func (s *CredentialRecordStore) GetCredentialRecord(ctx context.Context, tenantID string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential record store is not configured")
	}
	record := &credentialEnvelopeRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlstore: credentials for tenant %q: %w", tenantID, core.ErrCredentialsNotFound)
		}
		return nil, err
	}
	out := make([]byte, len(record.Sealed))
	copy(out, record.Sealed)
	return out, nil
}

func (s *CredentialRecordStore) PutCredentialRecord(ctx context.Context, tenantID string, sealed []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential record store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("sqlstore: tenant id is required")
	}
	if len(sealed) == 0 {
		return fmt.Errorf("sqlstore: sealed payload is required")
	}

	now := time.Now().UTC()
	record := &credentialEnvelopeRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Sealed:    append([]byte(nil), sealed...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id) DO UPDATE").
		Set("sealed_payload = EXCLUDED.sealed_payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
