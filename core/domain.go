package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidConversationKey      = errors.New("core: invalid conversation key")
	ErrInvalidNodeConfig           = errors.New("core: invalid node config")
	ErrInvalidWindowTransition     = errors.New("core: invalid window status transition")
	ErrStateNotFound               = errors.New("core: conversation state not found")
	ErrStateVersionConflict        = errors.New("core: conversation state version conflict")
	ErrWindowNotFound              = errors.New("core: conversation window not found")
	ErrFlowNotFound                = errors.New("core: flow not found")
	ErrNodeNotFound                = errors.New("core: node not found")
	ErrTemplateNotFound            = errors.New("core: template not found")
	ErrCredentialsNotFound         = errors.New("core: tenant credentials not found")
	ErrUnsupportedNodeType         = errors.New("core: unsupported node type")
	ErrUnsupportedConditionOperand = errors.New("core: unsupported condition operator")
)

type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeMessage   NodeType = "message"
	NodeTypeQuestion  NodeType = "question"
	NodeTypeCondition NodeType = "condition"
	NodeTypeJump      NodeType = "jump"
	NodeTypeEnd       NodeType = "end"
)

func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeMessage, NodeTypeQuestion, NodeTypeCondition, NodeTypeJump, NodeTypeEnd:
		return true
	default:
		return false
	}
}

// ConversationKey identifies the single live conversation state for a
// contact within a flow. At most one active state exists per key.
type ConversationKey struct {
	TenantID  string
	ContactID string
	FlowID    string
}

func (k ConversationKey) Validate() error {
	if strings.TrimSpace(k.TenantID) == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidConversationKey)
	}
	if strings.TrimSpace(k.ContactID) == "" {
		return fmt.Errorf("%w: empty contact id", ErrInvalidConversationKey)
	}
	if strings.TrimSpace(k.FlowID) == "" {
		return fmt.Errorf("%w: empty flow id", ErrInvalidConversationKey)
	}
	return nil
}

func (k ConversationKey) String() string {
	return strings.TrimSpace(k.TenantID) + "|" + strings.TrimSpace(k.ContactID) + "|" + strings.TrimSpace(k.FlowID)
}

type Flow struct {
	ID          string
	TenantID    string
	Name        string
	EntryNodeID string
	IsMain      bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Node is a single step in a flow. Config carries exactly one populated
// member matching Type; authoring data is validated at load time so the
// executor never sees a malformed node.
type Node struct {
	ID     string
	FlowID string
	Type   NodeType
	Config NodeConfig
}

type NodeConfig struct {
	Start     *StartConfig
	Message   *MessageConfig
	Question  *QuestionConfig
	Condition *ConditionConfig
	Jump      *JumpConfig
	End       *EndConfig
}

type StartConfig struct {
	Greeting string
	Next     string
}

type MessageConfig struct {
	Text    string
	Buttons []string
	Next    string
}

type ValidationKind string

const (
	ValidationText   ValidationKind = "text"
	ValidationEmail  ValidationKind = "email"
	ValidationPhone  ValidationKind = "phone"
	ValidationNumber ValidationKind = "number"
	ValidationChoice ValidationKind = "choice"
)

type ValidationRule struct {
	Kind      ValidationKind
	MinLength int
	MaxLength int
	Choices   []string
}

type QuestionConfig struct {
	Prompt    string
	Variable  string
	Rule      ValidationRule
	ErrorText string
	// MaxAttempts caps consecutive failed validations before the router
	// takes FallbackNext (or terminates when unset).
	MaxAttempts  int
	FallbackNext string
	Next         string
}

type ConditionOperator string

const (
	OperatorEquals        ConditionOperator = "eq"
	OperatorNotEquals     ConditionOperator = "ne"
	OperatorGreater       ConditionOperator = "gt"
	OperatorLess          ConditionOperator = "lt"
	OperatorGreaterEquals ConditionOperator = "gte"
	OperatorLessEquals    ConditionOperator = "lte"
	OperatorIn            ConditionOperator = "in"
	OperatorNotIn         ConditionOperator = "not_in"
	OperatorContains      ConditionOperator = "contains"
	OperatorStartsWith    ConditionOperator = "starts_with"
)

func (o ConditionOperator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorGreater, OperatorLess,
		OperatorGreaterEquals, OperatorLessEquals, OperatorIn, OperatorNotIn,
		OperatorContains, OperatorStartsWith:
		return true
	default:
		return false
	}
}

type ConditionConfig struct {
	Variable  string
	Operator  ConditionOperator
	Value     string
	Values    []string
	TrueNext  string
	FalseNext string
}

type JumpConfig struct {
	TargetFlowID   string
	CarryVariables bool
}

type EndConfig struct {
	Text string
}

// Validate rejects malformed authoring data before execution. A node is
// valid when exactly the config member matching its type is populated and
// that member's required fields are set.
func (n Node) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: node id is required", ErrInvalidNodeConfig)
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedNodeType, n.Type)
	}
	if count := n.Config.populated(); count != 1 {
		return fmt.Errorf("%w: node %q has %d config payloads, want exactly 1", ErrInvalidNodeConfig, n.ID, count)
	}
	switch n.Type {
	case NodeTypeStart:
		if n.Config.Start == nil {
			return configMismatch(n)
		}
	case NodeTypeMessage:
		if n.Config.Message == nil {
			return configMismatch(n)
		}
		if strings.TrimSpace(n.Config.Message.Next) == "" {
			return fmt.Errorf("%w: message node %q requires a next node", ErrInvalidNodeConfig, n.ID)
		}
	case NodeTypeQuestion:
		cfg := n.Config.Question
		if cfg == nil {
			return configMismatch(n)
		}
		if strings.TrimSpace(cfg.Variable) == "" {
			return fmt.Errorf("%w: question node %q requires a variable name", ErrInvalidNodeConfig, n.ID)
		}
		if strings.TrimSpace(cfg.Next) == "" {
			return fmt.Errorf("%w: question node %q requires a next node", ErrInvalidNodeConfig, n.ID)
		}
		if cfg.Rule.Kind == ValidationChoice && len(cfg.Rule.Choices) == 0 {
			return fmt.Errorf("%w: question node %q choice rule requires choices", ErrInvalidNodeConfig, n.ID)
		}
	case NodeTypeCondition:
		cfg := n.Config.Condition
		if cfg == nil {
			return configMismatch(n)
		}
		if strings.TrimSpace(cfg.Variable) == "" {
			return fmt.Errorf("%w: condition node %q requires a variable name", ErrInvalidNodeConfig, n.ID)
		}
		if !cfg.Operator.Valid() {
			return fmt.Errorf("%w: %q on node %q", ErrUnsupportedConditionOperand, cfg.Operator, n.ID)
		}
		if strings.TrimSpace(cfg.TrueNext) == "" || strings.TrimSpace(cfg.FalseNext) == "" {
			return fmt.Errorf("%w: condition node %q requires both branch targets", ErrInvalidNodeConfig, n.ID)
		}
	case NodeTypeJump:
		if n.Config.Jump == nil {
			return configMismatch(n)
		}
		if strings.TrimSpace(n.Config.Jump.TargetFlowID) == "" {
			return fmt.Errorf("%w: jump node %q requires a target flow", ErrInvalidNodeConfig, n.ID)
		}
	case NodeTypeEnd:
		if n.Config.End == nil {
			return configMismatch(n)
		}
	}
	return nil
}

func (c NodeConfig) populated() int {
	count := 0
	if c.Start != nil {
		count++
	}
	if c.Message != nil {
		count++
	}
	if c.Question != nil {
		count++
	}
	if c.Condition != nil {
		count++
	}
	if c.Jump != nil {
		count++
	}
	if c.End != nil {
		count++
	}
	return count
}

func configMismatch(n Node) error {
	return fmt.Errorf("%w: node %q config does not match type %q", ErrInvalidNodeConfig, n.ID, n.Type)
}

type ConversationState struct {
	ID            string
	TenantID      string
	ContactID     string
	FlowID        string
	CurrentNodeID string
	Variables     map[string]any
	// FailedAttempts counts consecutive validation failures on the current
	// question node; reset on every successful advance.
	FailedAttempts int
	Active         bool
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s ConversationState) Key() ConversationKey {
	return ConversationKey{
		TenantID:  s.TenantID,
		ContactID: s.ContactID,
		FlowID:    s.FlowID,
	}
}

type WindowStatus string

const (
	WindowStatusUnknown          WindowStatus = "unknown"
	WindowStatusActive           WindowStatus = "active"
	WindowStatusExpired          WindowStatus = "expired"
	WindowStatusManuallyExtended WindowStatus = "manually_extended"
)

// Sendable reports whether free-form sends are allowed under this status.
// Manual extensions count as active.
func (s WindowStatus) Sendable() bool {
	return s == WindowStatusActive || s == WindowStatusManuallyExtended
}

// ConversationWindow tracks the vendor-mandated 24h free-messaging interval
// for one (tenant, contact) conversation.
type ConversationWindow struct {
	ID        string
	TenantID  string
	ContactID string
	StartedAt time.Time
	EndsAt    time.Time
	Status    WindowStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusAt derives the effective status from the stored ends-at timestamp.
// The persisted status flag alone is never trusted for send eligibility:
// a row can hold "active" long after ends-at passed if no sweep ran.
func (w ConversationWindow) StatusAt(now time.Time) WindowStatus {
	if w.Status == WindowStatusExpired {
		return WindowStatusExpired
	}
	if !now.UTC().Before(w.EndsAt) {
		return WindowStatusExpired
	}
	if w.Status == WindowStatusManuallyExtended {
		return WindowStatusManuallyExtended
	}
	return WindowStatusActive
}

func (w *ConversationWindow) TransitionTo(status WindowStatus, now time.Time) error {
	if w == nil {
		return nil
	}
	if w.Status == status {
		w.UpdatedAt = now
		return nil
	}
	if !windowTransitionAllowed(w.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidWindowTransition, w.Status, status)
	}
	w.Status = status
	w.UpdatedAt = now
	return nil
}

func windowTransitionAllowed(current, next WindowStatus) bool {
	allowed := map[WindowStatus]map[WindowStatus]struct{}{
		WindowStatusActive: {
			WindowStatusExpired:          {},
			WindowStatusManuallyExtended: {},
		},
		WindowStatusManuallyExtended: {
			WindowStatusActive:  {},
			WindowStatusExpired: {},
		},
		WindowStatusExpired: {
			WindowStatusActive:           {},
			WindowStatusManuallyExtended: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type TemplateStatus string

const (
	TemplateStatusApproved TemplateStatus = "approved"
	TemplateStatusPending  TemplateStatus = "pending"
	TemplateStatusRejected TemplateStatus = "rejected"
)

type Template struct {
	ID        string
	TenantID  string
	Name      string
	Language  string
	Status    TemplateStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Template) Approved() bool {
	return t.Status == TemplateStatusApproved
}

// DispatchResult is the ephemeral outcome of one outbound send. Persistence
// is the caller's concern.
type DispatchResult struct {
	Success           bool
	ProviderMessageID string
	Error             string
	Attempts          int
	Timestamp         time.Time
}

type InboundMessage struct {
	TenantID      string
	ContactID     string
	MessageID     string
	PhoneNumberID string
	Type          string
	Text          string
	Timestamp     time.Time
}

type StatusUpdate struct {
	TenantID    string
	MessageID   string
	Status      string
	RecipientID string
	Timestamp   time.Time
}

type TurnDirection string

const (
	TurnInbound  TurnDirection = "inbound"
	TurnOutbound TurnDirection = "outbound"
)

type TurnEvent struct {
	ID        string
	TenantID  string
	ContactID string
	FlowID    string
	NodeID    string
	Direction TurnDirection
	Body      string
	Metadata  map[string]any
	CreatedAt time.Time
}

// TenantCredentials carries the decrypted per-tenant provider material the
// webhook verifier and send client need.
type TenantCredentials struct {
	TenantID      string
	SigningSecret string
	AccessToken   string
	PhoneNumberID string
}
