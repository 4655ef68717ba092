package security

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-chatflow/core"
)

// CredentialRecordStore persists one sealed credential envelope per tenant.
type CredentialRecordStore interface {
	GetCredentialRecord(ctx context.Context, tenantID string) ([]byte, error)
	PutCredentialRecord(ctx context.Context, tenantID string, sealed []byte) error
}

type credentialRecord struct {
	TenantID      string `json:"tenant_id"`
	SigningSecret string `json:"signing_secret,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
}

// EncryptedCredentialResolver resolves tenant provider material from sealed
// records, decrypting through a SecretProvider on every lookup so plaintext
// secrets never sit at rest.
type EncryptedCredentialResolver struct {
	Secrets core.SecretProvider
	Records CredentialRecordStore
}

func NewEncryptedCredentialResolver(secrets core.SecretProvider, records CredentialRecordStore) *EncryptedCredentialResolver {
	return &EncryptedCredentialResolver{
		Secrets: secrets,
		Records: records,
	}
}

var _ core.CredentialResolver = (*EncryptedCredentialResolver)(nil)

func (r *EncryptedCredentialResolver) Save(ctx context.Context, creds core.TenantCredentials) error {
	if r == nil || r.Secrets == nil || r.Records == nil {
		return fmt.Errorf("security: credential resolver requires secrets and records")
	}
	tenantID := strings.TrimSpace(creds.TenantID)
	if tenantID == "" {
		return fmt.Errorf("security: tenant id is required")
	}

	payload, err := json.Marshal(credentialRecord{
		TenantID:      tenantID,
		SigningSecret: creds.SigningSecret,
		AccessToken:   creds.AccessToken,
		PhoneNumberID: creds.PhoneNumberID,
	})
	if err != nil {
		return fmt.Errorf("security: encode credentials: %w", err)
	}

	sealed, err := r.Secrets.Encrypt(ctx, payload)
	if err != nil {
		return fmt.Errorf("security: seal credentials: %w", err)
	}
	return r.Records.PutCredentialRecord(ctx, tenantID, sealed)
}

func (r *EncryptedCredentialResolver) Resolve(ctx context.Context, tenantID string) (core.TenantCredentials, error) {
	if r == nil || r.Secrets == nil || r.Records == nil {
		return core.TenantCredentials{}, fmt.Errorf("security: credential resolver requires secrets and records")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.TenantCredentials{}, fmt.Errorf("security: tenant id is required")
	}

	sealed, err := r.Records.GetCredentialRecord(ctx, tenantID)
	if err != nil {
		return core.TenantCredentials{}, err
	}

	payload, err := r.Secrets.Decrypt(ctx, sealed)
	if err != nil {
		return core.TenantCredentials{}, fmt.Errorf("security: open credentials: %w", err)
	}

	var record credentialRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return core.TenantCredentials{}, fmt.Errorf("security: decode credentials: %w", err)
	}

	return core.TenantCredentials{
		TenantID:      tenantID,
		SigningSecret: record.SigningSecret,
		AccessToken:   record.AccessToken,
		PhoneNumberID: record.PhoneNumberID,
	}, nil
}

// MemoryCredentialRecordStore keeps sealed records in memory, mostly for
// tests and single-process deployments.
type MemoryCredentialRecordStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryCredentialRecordStore() *MemoryCredentialRecordStore {
	return &MemoryCredentialRecordStore{records: map[string][]byte{}}
}

var _ CredentialRecordStore = (*MemoryCredentialRecordStore)(nil)

func (s *MemoryCredentialRecordStore) GetCredentialRecord(_ context.Context, tenantID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, ok := s.records[strings.TrimSpace(tenantID)]
	if !ok {
		return nil, fmt.Errorf("security: credentials for tenant %q: %w", tenantID, core.ErrCredentialsNotFound)
	}
	out := make([]byte, len(sealed))
	copy(out, sealed)
	return out, nil
}

func (s *MemoryCredentialRecordStore) PutCredentialRecord(_ context.Context, tenantID string, sealed []byte) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("security: tenant id is required")
	}
	stored := make([]byte, len(sealed))
	copy(stored, sealed)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[tenantID] = stored
	return nil
}
