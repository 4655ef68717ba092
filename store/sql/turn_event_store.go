package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-chatflow/core"
)

// TurnEventStore is the append-only audit stream behind core.EventSink.
type TurnEventStore struct {
	db *bun.DB
}

func NewTurnEventStore(db *bun.DB) (*TurnEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &TurnEventStore{db: db}, nil
}

var _ core.EventSink = (*TurnEventStore)(nil)

func (s *TurnEventStore) RecordTurn(ctx context.Context, event core.TurnEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: turn event store is not configured")
	}
	tenantID := strings.TrimSpace(event.TenantID)
	contactID := strings.TrimSpace(event.ContactID)
	if tenantID == "" || contactID == "" {
		return fmt.Errorf("sqlstore: turn event tenant and contact ids are required")
	}

	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	record := &turnEventRecord{
		ID:        strings.TrimSpace(event.ID),
		TenantID:  tenantID,
		ContactID: contactID,
		FlowID:    event.FlowID,
		NodeID:    event.NodeID,
		Direction: string(event.Direction),
		Body:      event.Body,
		Metadata:  copyAnyMap(event.Metadata),
		CreatedAt: event.CreatedAt.UTC(),
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// ListTurns returns a contact's transcript, oldest first.
func (s *TurnEventStore) ListTurns(ctx context.Context, tenantID string, contactID string, limit int) ([]core.TurnEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: turn event store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	var records []*turnEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.contact_id = ?", strings.TrimSpace(contactID)).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.TurnEvent, 0, len(records))
	for _, record := range records {
		out = append(out, core.TurnEvent{
			ID:        record.ID,
			TenantID:  record.TenantID,
			ContactID: record.ContactID,
			FlowID:    record.FlowID,
			NodeID:    record.NodeID,
			Direction: core.TurnDirection(record.Direction),
			Body:      record.Body,
			Metadata:  copyAnyMap(record.Metadata),
			CreatedAt: record.CreatedAt,
		})
	}
	return out, nil
}
