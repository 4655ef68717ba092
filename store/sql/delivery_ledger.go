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

	"github.com/goliatone/go-chatflow/webhooks"
)

type DeliveryLedgerStore struct {
	db *bun.DB
}

func NewDeliveryLedgerStore(db *bun.DB) (*DeliveryLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &DeliveryLedgerStore{db: db}, nil
}

var _ webhooks.DeliveryLedger = (*DeliveryLedgerStore)(nil)

// Claim reserves one provider message id for processing. Processed rows and
// rows held under a live lease are not claimable; failed rows and lapsed
// leases are, so vendor retries can recover them.
func (s *DeliveryLedgerStore) Claim(ctx context.Context, tenantID string, messageID string, lease time.Duration) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: message id is required for dedupe")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}

	var out webhooks.DeliveryRecord
	claimed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		record := &webhookDeliveryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.tenant_id = ?", tenantID).
			Where("?TableAlias.message_id = ?", messageID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if errors.Is(err, sql.ErrNoRows) {
			leaseExpiry := now.Add(lease)
			record = &webhookDeliveryRecord{
				ID:             uuid.NewString(),
				ClaimID:        uuid.NewString(),
				TenantID:       tenantID,
				MessageID:      messageID,
				Status:         webhooks.DeliveryStatusProcessing,
				Attempts:       1,
				LeaseExpiresAt: &leaseExpiry,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					out = deliveryToDomain(record)
					claimed = false
					return nil
				}
				return insertErr
			}
			out = deliveryToDomain(record)
			claimed = true
			return nil
		}

		switch record.Status {
		case webhooks.DeliveryStatusProcessed:
			out = deliveryToDomain(record)
			return nil
		case webhooks.DeliveryStatusProcessing:
			if record.LeaseExpiresAt != nil && now.Before(*record.LeaseExpiresAt) {
				out = deliveryToDomain(record)
				return nil
			}
		}

		leaseExpiry := now.Add(lease)
		record.ClaimID = uuid.NewString()
		record.Status = webhooks.DeliveryStatusProcessing
		record.Attempts++
		record.LeaseExpiresAt = &leaseExpiry
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = deliveryToDomain(record)
		claimed = true
		return nil
	})
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return out, claimed, nil
}

func (s *DeliveryLedgerStore) Complete(ctx context.Context, claimID string) error {
	return s.settle(ctx, claimID, webhooks.DeliveryStatusProcessed, "")
}

func (s *DeliveryLedgerStore) Fail(ctx context.Context, claimID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.settle(ctx, claimID, webhooks.DeliveryStatusFailed, message)
}

func (s *DeliveryLedgerStore) settle(ctx context.Context, claimID string, status string, lastError string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: delivery claim id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", status).
		Set("last_error = ?", lastError).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("claim_id = ?", claimID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: unknown delivery claim %q", claimID)
	}
	return nil
}

func deliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	return webhooks.DeliveryRecord{
		ID:        record.ID,
		ClaimID:   record.ClaimID,
		TenantID:  record.TenantID,
		MessageID: record.MessageID,
		Status:    record.Status,
		Attempts:  record.Attempts,
		LastError: record.LastError,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
