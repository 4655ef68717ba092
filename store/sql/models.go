package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type flowRecord struct {
	bun.BaseModel `bun:"table:chatflow_flows,alias:cf"`

	ID          string     `bun:"id,pk"`
	TenantID    string     `bun:"tenant_id,notnull"`
	Name        string     `bun:"name,notnull"`
	EntryNodeID string     `bun:"entry_node_id,notnull"`
	IsMain      bool       `bun:"is_main,notnull"`
	Active      bool       `bun:"active,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete"`
}

type flowNodeRecord struct {
	bun.BaseModel `bun:"table:chatflow_flow_nodes,alias:cfn"`

	ID        string         `bun:"id,pk"`
	FlowID    string         `bun:"flow_id,pk"`
	Type      string         `bun:"type,notnull"`
	Config    map[string]any `bun:"config,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type conversationStateRecord struct {
	bun.BaseModel `bun:"table:chatflow_conversation_states,alias:ccs"`

	ID             string         `bun:"id,pk"`
	TenantID       string         `bun:"tenant_id,notnull"`
	ContactID      string         `bun:"contact_id,notnull"`
	FlowID         string         `bun:"flow_id,notnull"`
	CurrentNodeID  string         `bun:"current_node_id,notnull"`
	Variables      map[string]any `bun:"variables,type:jsonb,notnull"`
	FailedAttempts int            `bun:"failed_attempts,notnull"`
	Active         bool           `bun:"active,notnull"`
	Version        int            `bun:"version,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type conversationWindowRecord struct {
	bun.BaseModel `bun:"table:chatflow_conversation_windows,alias:ccw"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	ContactID string    `bun:"contact_id,notnull"`
	StartedAt time.Time `bun:"started_at,notnull"`
	EndsAt    time.Time `bun:"ends_at,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:chatflow_webhook_deliveries,alias:cwd"`

	ID             string     `bun:"id,pk"`
	ClaimID        string     `bun:"claim_id,notnull"`
	TenantID       string     `bun:"tenant_id,notnull"`
	MessageID      string     `bun:"message_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	LastError      string     `bun:"last_error"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type templateRecord struct {
	bun.BaseModel `bun:"table:chatflow_templates,alias:ct"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Language  string    `bun:"language,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type turnEventRecord struct {
	bun.BaseModel `bun:"table:chatflow_turn_events,alias:cte"`

	ID        string         `bun:"id,pk"`
	TenantID  string         `bun:"tenant_id,notnull"`
	ContactID string         `bun:"contact_id,notnull"`
	FlowID    string         `bun:"flow_id"`
	NodeID    string         `bun:"node_id"`
	Direction string         `bun:"direction,notnull"`
	Body      string         `bun:"body"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:chatflow_rate_limit_states,alias:crl"`

	ID        string      `bun:"id,pk"`
	TenantID  string      `bun:"tenant_id,notnull,unique"`
	Sends     []time.Time `bun:"sends,type:jsonb,notnull"`
	UpdatedAt time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type credentialEnvelopeRecord struct {
	bun.BaseModel `bun:"table:chatflow_tenant_credentials,alias:ctc"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull,unique"`
	Sealed    []byte    `bun:"sealed_payload,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
