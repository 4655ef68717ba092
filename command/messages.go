package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-chatflow/core"
)

const (
	TypeProcessInbound       = "chatflow.command.inbound.process"
	TypeSendText             = "chatflow.command.message.send_text"
	TypeSendInteractive      = "chatflow.command.message.send_interactive"
	TypeSendTemplate         = "chatflow.command.message.send_template"
	TypeExtendWindow         = "chatflow.command.window.extend"
	TypeSweepWindows         = "chatflow.command.window.sweep"
	TypeRegisterFlow         = "chatflow.command.flow.register"
	TypeUpsertTemplateStatus = "chatflow.command.template.upsert_status"
	TypeSaveCredentials      = "chatflow.command.credentials.save"
	TypeSweepStaleSessions   = "chatflow.command.session.sweep_stale"
)

type ProcessInboundMessage struct {
	Message core.InboundMessage
}

func (ProcessInboundMessage) Type() string { return TypeProcessInbound }

func (m ProcessInboundMessage) Validate() error {
	if strings.TrimSpace(m.Message.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Message.ContactID) == "" {
		return fmt.Errorf("command: contact id is required")
	}
	if strings.TrimSpace(m.Message.MessageID) == "" {
		return fmt.Errorf("command: message id is required")
	}
	return nil
}

type SendTextMessage struct {
	TenantID  string
	ContactID string
	Text      string
}

func (SendTextMessage) Type() string { return TypeSendText }

func (m SendTextMessage) Validate() error {
	if err := validateRecipient(m.TenantID, m.ContactID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("command: message text is required")
	}
	return nil
}

type SendInteractiveMessage struct {
	TenantID  string
	ContactID string
	Message   core.InteractiveSend
}

func (SendInteractiveMessage) Type() string { return TypeSendInteractive }

func (m SendInteractiveMessage) Validate() error {
	if err := validateRecipient(m.TenantID, m.ContactID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Message.Body) == "" {
		return fmt.Errorf("command: interactive body is required")
	}
	if len(m.Message.Buttons) == 0 {
		return fmt.Errorf("command: interactive buttons are required")
	}
	return nil
}

type SendTemplateMessage struct {
	TenantID  string
	ContactID string
	Template  core.TemplateSend
}

func (SendTemplateMessage) Type() string { return TypeSendTemplate }

func (m SendTemplateMessage) Validate() error {
	if err := validateRecipient(m.TenantID, m.ContactID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Template.Name) == "" {
		return fmt.Errorf("command: template name is required")
	}
	return nil
}

type ExtendWindowMessage struct {
	TenantID  string
	ContactID string
	Hours     int
}

func (ExtendWindowMessage) Type() string { return TypeExtendWindow }

func (m ExtendWindowMessage) Validate() error {
	if err := validateRecipient(m.TenantID, m.ContactID); err != nil {
		return err
	}
	if m.Hours <= 0 {
		return fmt.Errorf("command: extension hours must be positive")
	}
	return nil
}

type SweepWindowsMessage struct {
	TenantID string
}

func (SweepWindowsMessage) Type() string { return TypeSweepWindows }

func (m SweepWindowsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	return nil
}

type RegisterFlowMessage struct {
	Flow  core.Flow
	Nodes []core.Node
}

func (RegisterFlowMessage) Type() string { return TypeRegisterFlow }

func (m RegisterFlowMessage) Validate() error {
	if strings.TrimSpace(m.Flow.TenantID) == "" {
		return fmt.Errorf("command: flow tenant id is required")
	}
	if strings.TrimSpace(m.Flow.EntryNodeID) == "" {
		return fmt.Errorf("command: flow entry node id is required")
	}
	if len(m.Nodes) == 0 {
		return fmt.Errorf("command: flow nodes are required")
	}
	return nil
}

type UpsertTemplateStatusMessage struct {
	TenantID string
	Name     string
	Language string
	Status   core.TemplateStatus
}

func (UpsertTemplateStatusMessage) Type() string { return TypeUpsertTemplateStatus }

func (m UpsertTemplateStatusMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("command: template name is required")
	}
	switch m.Status {
	case core.TemplateStatusApproved, core.TemplateStatusPending, core.TemplateStatusRejected:
		return nil
	default:
		return fmt.Errorf("command: template status %q is not valid", m.Status)
	}
}

type SaveCredentialsMessage struct {
	Credentials core.TenantCredentials
}

func (SaveCredentialsMessage) Type() string { return TypeSaveCredentials }

func (m SaveCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.Credentials.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Credentials.AccessToken) == "" {
		return fmt.Errorf("command: access token is required")
	}
	return nil
}

type SweepStaleSessionsMessage struct {
	TenantID      string
	InactiveSince time.Time
}

func (SweepStaleSessionsMessage) Type() string { return TypeSweepStaleSessions }

func (m SweepStaleSessionsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if m.InactiveSince.IsZero() {
		return fmt.Errorf("command: inactive-since cutoff is required")
	}
	return nil
}

func validateRecipient(tenantID string, contactID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(contactID) == "" {
		return fmt.Errorf("command: contact id is required")
	}
	return nil
}
