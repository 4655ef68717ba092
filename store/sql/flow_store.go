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

type FlowStore struct {
	db   *bun.DB
	repo repository.Repository[*flowRecord]
}

func NewFlowStore(db *bun.DB) (*FlowStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*flowRecord](db, flowHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid flow repository wiring: %w", err)
		}
	}
	return &FlowStore{db: db, repo: repo}, nil
}

var _ core.FlowStore = (*FlowStore)(nil)

// SaveFlow writes a flow definition and its nodes in one transaction. Every
// node must validate and the entry node must belong to the set.
func (s *FlowStore) SaveFlow(ctx context.Context, flow core.Flow, nodes []core.Node) (core.Flow, error) {
	if s == nil || s.db == nil {
		return core.Flow{}, fmt.Errorf("sqlstore: flow store is not configured")
	}
	if strings.TrimSpace(flow.TenantID) == "" {
		return core.Flow{}, fmt.Errorf("sqlstore: flow tenant id is required")
	}
	if len(nodes) == 0 {
		return core.Flow{}, fmt.Errorf("sqlstore: flow %q has no nodes", flow.ID)
	}

	if strings.TrimSpace(flow.ID) == "" {
		flow.ID = uuid.NewString()
	}
	entryFound := false
	for i := range nodes {
		nodes[i].FlowID = flow.ID
		if err := nodes[i].Validate(); err != nil {
			return core.Flow{}, err
		}
		if nodes[i].ID == flow.EntryNodeID {
			entryFound = true
		}
	}
	if !entryFound {
		return core.Flow{}, fmt.Errorf("sqlstore: entry node %q is not part of flow %q", flow.EntryNodeID, flow.ID)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	flow.UpdatedAt = now

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &flowRecord{
			ID:          flow.ID,
			TenantID:    strings.TrimSpace(flow.TenantID),
			Name:        strings.TrimSpace(flow.Name),
			EntryNodeID: flow.EntryNodeID,
			IsMain:      flow.IsMain,
			Active:      flow.Active,
			CreatedAt:   flow.CreatedAt,
			UpdatedAt:   flow.UpdatedAt,
		}
		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("entry_node_id = EXCLUDED.entry_node_id").
			Set("is_main = EXCLUDED.is_main").
			Set("active = EXCLUDED.active").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewDelete().
			Model((*flowNodeRecord)(nil)).
			Where("flow_id = ?", flow.ID).
			Exec(ctx); err != nil {
			return err
		}
		for _, node := range nodes {
			nodeRecord := &flowNodeRecord{
				ID:        node.ID,
				FlowID:    flow.ID,
				Type:      string(node.Type),
				Config:    nodeConfigToDoc(node.Config),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(nodeRecord).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Flow{}, err
	}
	return flow, nil
}

func (s *FlowStore) GetFlow(ctx context.Context, tenantID string, flowID string) (core.Flow, error) {
	if s == nil || s.db == nil {
		return core.Flow{}, fmt.Errorf("sqlstore: flow store is not configured")
	}
	record := &flowRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(flowID)).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Flow{}, fmt.Errorf("sqlstore: flow %q for tenant %q: %w", flowID, tenantID, core.ErrFlowNotFound)
		}
		return core.Flow{}, err
	}
	return record.toDomain(), nil
}

func (s *FlowStore) GetMainFlow(ctx context.Context, tenantID string) (core.Flow, error) {
	if s == nil || s.db == nil {
		return core.Flow{}, fmt.Errorf("sqlstore: flow store is not configured")
	}
	record := &flowRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.is_main = ?", true).
		Where("?TableAlias.active = ?", true).
		Where("?TableAlias.deleted_at IS NULL").
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Flow{}, fmt.Errorf("sqlstore: main flow for tenant %q: %w", tenantID, core.ErrFlowNotFound)
		}
		return core.Flow{}, err
	}
	return record.toDomain(), nil
}

func (s *FlowStore) GetNode(ctx context.Context, flowID string, nodeID string) (core.Node, error) {
	if s == nil || s.db == nil {
		return core.Node{}, fmt.Errorf("sqlstore: flow store is not configured")
	}
	record := &flowNodeRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.flow_id = ?", strings.TrimSpace(flowID)).
		Where("?TableAlias.id = ?", strings.TrimSpace(nodeID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Node{}, fmt.Errorf("sqlstore: node %q in flow %q: %w", nodeID, flowID, core.ErrNodeNotFound)
		}
		return core.Node{}, err
	}
	return record.toDomain()
}

func (s *FlowStore) ListNodes(ctx context.Context, flowID string) ([]core.Node, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: flow store is not configured")
	}
	var records []*flowNodeRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.flow_id = ?", strings.TrimSpace(flowID)).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Node, 0, len(records))
	for _, record := range records {
		node, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}
