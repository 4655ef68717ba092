package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusFailed     = "failed"
)

// DeliveryRecord tracks one provider message id through the dedupe ledger.
type DeliveryRecord struct {
	ID        string
	ClaimID   string
	TenantID  string
	MessageID string
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeliveryLedger deduplicates webhook deliveries by provider message id.
// Claim returns claimed=false when the message was already processed or is
// held under an unexpired lease; failed and lease-lapsed deliveries stay
// claimable so vendor retries can recover them.
type DeliveryLedger interface {
	Claim(ctx context.Context, tenantID string, messageID string, lease time.Duration) (DeliveryRecord, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
}

// MemoryDeliveryLedger is a map-backed ledger for tests and single-process
// deployments. The SQL ledger in store/sql is the durable implementation.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]*DeliveryRecord
	leases  map[string]time.Time
	Now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		records: map[string]*DeliveryRecord{},
		leases:  map[string]time.Time{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)

func ledgerKey(tenantID, messageID string) string {
	return strings.TrimSpace(tenantID) + "|" + strings.TrimSpace(messageID)
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDeliveryLedger) Claim(_ context.Context, tenantID, messageID string, lease time.Duration) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, webhookBadInput("delivery ledger is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return DeliveryRecord{}, false, webhookBadInput("message id is required for dedupe", nil)
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := ledgerKey(tenantID, messageID)
	if record, ok := l.records[key]; ok {
		switch record.Status {
		case DeliveryStatusProcessing:
			if expiry, held := l.leases[key]; held && now.Before(expiry) {
				return *record, false, nil
			}
		case DeliveryStatusFailed:
			// failed deliveries stay claimable so vendor retries can recover
		default:
			return *record, false, nil
		}
		record.ClaimID = uuid.NewString()
		record.Status = DeliveryStatusProcessing
		record.Attempts++
		record.UpdatedAt = now
		l.leases[key] = now.Add(lease)
		return *record, true, nil
	}

	record := &DeliveryRecord{
		ID:        uuid.NewString(),
		ClaimID:   uuid.NewString(),
		TenantID:  tenantID,
		MessageID: messageID,
		Status:    DeliveryStatusProcessing,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.records[key] = record
	l.leases[key] = now.Add(lease)
	return *record, true, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return webhookBadInput("delivery ledger is not configured", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, record := range l.records {
		if record.ClaimID == claimID {
			record.Status = DeliveryStatusProcessed
			record.UpdatedAt = l.now()
			delete(l.leases, key)
			return nil
		}
	}
	return webhookBadInput("unknown delivery claim", map[string]any{"claim_id": claimID})
}

func (l *MemoryDeliveryLedger) Fail(_ context.Context, claimID string, cause error) error {
	if l == nil {
		return webhookBadInput("delivery ledger is not configured", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, record := range l.records {
		if record.ClaimID == claimID {
			record.Status = DeliveryStatusFailed
			if cause != nil {
				record.LastError = cause.Error()
			}
			record.UpdatedAt = l.now()
			delete(l.leases, key)
			return nil
		}
	}
	return webhookBadInput("unknown delivery claim", map[string]any{"claim_id": claimID})
}
