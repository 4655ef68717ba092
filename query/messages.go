package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetConversationState = "chatflow.query.conversation_state.get"
	TypeGetWindowStatus      = "chatflow.query.window.status"
	TypeListTurnEvents       = "chatflow.query.turns.list"
	TypeGetTemplate          = "chatflow.query.template.get"
	TypeGetFlow              = "chatflow.query.flow.get"
	TypeGetMainFlow          = "chatflow.query.flow.get_main"
)

type GetConversationStateMessage struct {
	TenantID  string
	ContactID string
}

func (GetConversationStateMessage) Type() string { return TypeGetConversationState }

func (m GetConversationStateMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.ContactID) == "" {
		return fmt.Errorf("query: contact id is required")
	}
	return nil
}

type GetWindowStatusMessage struct {
	TenantID  string
	ContactID string
}

func (GetWindowStatusMessage) Type() string { return TypeGetWindowStatus }

func (m GetWindowStatusMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.ContactID) == "" {
		return fmt.Errorf("query: contact id is required")
	}
	return nil
}

type ListTurnEventsMessage struct {
	TenantID  string
	ContactID string
	Limit     int
}

func (ListTurnEventsMessage) Type() string { return TypeListTurnEvents }

func (m ListTurnEventsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.ContactID) == "" {
		return fmt.Errorf("query: contact id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetTemplateMessage struct {
	TenantID string
	Name     string
}

func (GetTemplateMessage) Type() string { return TypeGetTemplate }

func (m GetTemplateMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("query: template name is required")
	}
	return nil
}

type GetFlowMessage struct {
	TenantID string
	FlowID   string
}

func (GetFlowMessage) Type() string { return TypeGetFlow }

func (m GetFlowMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.FlowID) == "" {
		return fmt.Errorf("query: flow id is required")
	}
	return nil
}

type GetMainFlowMessage struct {
	TenantID string
}

func (GetMainFlowMessage) Type() string { return TypeGetMainFlow }

func (m GetMainFlowMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	return nil
}
