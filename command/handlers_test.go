package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/flow"
)

func TestProcessInboundCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := flow.Result{
		Replies: []flow.Reply{{Text: "Welcome!"}},
		State:   core.ConversationState{TenantID: "t1", ContactID: "c1", CurrentNodeID: "ask_name"},
	}
	called := false

	svc := stubConversationService{
		handleInboundFn: func(_ context.Context, msg core.InboundMessage) (flow.Result, error) {
			called = true
			if msg.TenantID != "t1" || msg.ContactID != "c1" {
				t.Fatalf("unexpected inbound payload: %#v", msg)
			}
			return expected, nil
		},
	}

	cmd := NewProcessInboundCommand(svc)
	collector := gocmd.NewResult[flow.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ProcessInboundMessage{Message: core.InboundMessage{
		TenantID:  "t1",
		ContactID: "c1",
		MessageID: "wamid.1",
		Type:      "text",
		Text:      "hi",
	}})
	if err != nil {
		t.Fatalf("execute process inbound: %v", err)
	}
	if !called {
		t.Fatalf("expected conversation service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if len(result.Replies) != 1 || result.Replies[0].Text != "Welcome!" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestDispatchCommands_DelegateToService(t *testing.T) {
	t.Run("send text", func(t *testing.T) {
		called := false
		svc := stubDispatchService{
			sendTextFn: func(_ context.Context, tenantID, contactID, text string) (core.DispatchResult, error) {
				called = true
				if tenantID != "t1" || contactID != "c1" || text != "hello" {
					t.Fatalf("unexpected send text payload: %q %q %q", tenantID, contactID, text)
				}
				return core.DispatchResult{Success: true, ProviderMessageID: "wamid.out.1", Attempts: 1}, nil
			},
		}
		cmd := NewSendTextCommand(svc)
		collector := gocmd.NewResult[core.DispatchResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, SendTextMessage{TenantID: "t1", ContactID: "c1", Text: "hello"}); err != nil {
			t.Fatalf("execute send text: %v", err)
		}
		if !called {
			t.Fatalf("expected send text invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected dispatch result")
		}
		if !stored.Success || stored.ProviderMessageID != "wamid.out.1" {
			t.Fatalf("unexpected dispatch result: %#v", stored)
		}
	})

	t.Run("send interactive", func(t *testing.T) {
		called := false
		svc := stubDispatchService{
			sendInteractiveFn: func(_ context.Context, tenantID, contactID string, message core.InteractiveSend) (core.DispatchResult, error) {
				called = true
				if len(message.Buttons) != 2 {
					t.Fatalf("unexpected buttons: %#v", message.Buttons)
				}
				return core.DispatchResult{Success: true}, nil
			},
		}
		cmd := NewSendInteractiveCommand(svc)
		if err := cmd.Execute(context.Background(), SendInteractiveMessage{
			TenantID:  "t1",
			ContactID: "c1",
			Message:   core.InteractiveSend{Body: "Pick one", Buttons: []string{"Yes", "No"}},
		}); err != nil {
			t.Fatalf("execute send interactive: %v", err)
		}
		if !called {
			t.Fatalf("expected send interactive invocation")
		}
	})

	t.Run("send template", func(t *testing.T) {
		called := false
		svc := stubDispatchService{
			sendTemplateFn: func(_ context.Context, tenantID, contactID string, template core.TemplateSend) (core.DispatchResult, error) {
				called = true
				if template.Name != "order_update" {
					t.Fatalf("unexpected template: %#v", template)
				}
				return core.DispatchResult{Success: true}, nil
			},
		}
		cmd := NewSendTemplateCommand(svc)
		if err := cmd.Execute(context.Background(), SendTemplateMessage{
			TenantID:  "t1",
			ContactID: "c1",
			Template:  core.TemplateSend{Name: "order_update", Language: "en_US"},
		}); err != nil {
			t.Fatalf("execute send template: %v", err)
		}
		if !called {
			t.Fatalf("expected send template invocation")
		}
	})
}

func TestWindowCommands_DelegateToService(t *testing.T) {
	t.Run("extend", func(t *testing.T) {
		called := false
		svc := stubWindowService{
			extendFn: func(_ context.Context, tenantID, contactID string, hours int) (core.ConversationWindow, error) {
				called = true
				if tenantID != "t1" || contactID != "c1" || hours != 12 {
					t.Fatalf("unexpected extend payload: %q %q %d", tenantID, contactID, hours)
				}
				return core.ConversationWindow{TenantID: tenantID, ContactID: contactID, Status: core.WindowStatusManuallyExtended}, nil
			},
		}
		cmd := NewExtendWindowCommand(svc)
		collector := gocmd.NewResult[core.ConversationWindow]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, ExtendWindowMessage{TenantID: "t1", ContactID: "c1", Hours: 12}); err != nil {
			t.Fatalf("execute extend window: %v", err)
		}
		if !called {
			t.Fatalf("expected extend invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected window result")
		}
		if stored.Status != core.WindowStatusManuallyExtended {
			t.Fatalf("unexpected window status: %q", stored.Status)
		}
	})

	t.Run("sweep", func(t *testing.T) {
		called := false
		svc := stubWindowService{
			sweepFn: func(_ context.Context, tenantID string) (int64, error) {
				called = true
				if tenantID != "t1" {
					t.Fatalf("unexpected sweep tenant: %q", tenantID)
				}
				return 3, nil
			},
		}
		cmd := NewSweepWindowsCommand(svc)
		collector := gocmd.NewResult[int64]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, SweepWindowsMessage{TenantID: "t1"}); err != nil {
			t.Fatalf("execute sweep windows: %v", err)
		}
		if !called {
			t.Fatalf("expected sweep invocation")
		}
		swept, ok := collector.Load()
		if !ok {
			t.Fatalf("expected sweep count")
		}
		if swept != 3 {
			t.Fatalf("expected 3 swept windows, got %d", swept)
		}
	})
}

func TestAuthoringCommands_DelegateToService(t *testing.T) {
	t.Run("register flow", func(t *testing.T) {
		called := false
		svc := stubAuthoringService{
			saveFlowFn: func(_ context.Context, f core.Flow, nodes []core.Node) (core.Flow, error) {
				called = true
				if f.TenantID != "t1" || len(nodes) != 2 {
					t.Fatalf("unexpected flow payload: %#v nodes=%d", f, len(nodes))
				}
				f.ID = "flow-1"
				return f, nil
			},
		}
		cmd := NewRegisterFlowCommand(svc)
		collector := gocmd.NewResult[core.Flow]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, RegisterFlowMessage{
			Flow: core.Flow{TenantID: "t1", Name: "onboarding", EntryNodeID: "start"},
			Nodes: []core.Node{
				{ID: "start", Type: core.NodeTypeStart, Config: core.NodeConfig{Start: &core.StartConfig{Next: "bye"}}},
				{ID: "bye", Type: core.NodeTypeEnd, Config: core.NodeConfig{End: &core.EndConfig{Text: "bye"}}},
			},
		}); err != nil {
			t.Fatalf("execute register flow: %v", err)
		}
		if !called {
			t.Fatalf("expected save flow invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected flow result")
		}
		if stored.ID != "flow-1" {
			t.Fatalf("unexpected flow id: %q", stored.ID)
		}
	})

	t.Run("upsert template status", func(t *testing.T) {
		called := false
		svc := stubAuthoringService{
			upsertTemplateStatusFn: func(_ context.Context, tenantID, name, language string, status core.TemplateStatus) (core.Template, error) {
				called = true
				if status != core.TemplateStatusApproved {
					t.Fatalf("unexpected status: %q", status)
				}
				return core.Template{TenantID: tenantID, Name: name, Language: language, Status: status}, nil
			},
		}
		cmd := NewUpsertTemplateStatusCommand(svc)
		collector := gocmd.NewResult[core.Template]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, UpsertTemplateStatusMessage{
			TenantID: "t1",
			Name:     "order_update",
			Language: "en_US",
			Status:   core.TemplateStatusApproved,
		}); err != nil {
			t.Fatalf("execute upsert template status: %v", err)
		}
		if !called {
			t.Fatalf("expected upsert template invocation")
		}
		if _, ok := collector.Load(); !ok {
			t.Fatalf("expected template result")
		}
	})

	t.Run("save credentials", func(t *testing.T) {
		called := false
		svc := stubAuthoringService{
			saveCredentialsFn: func(_ context.Context, creds core.TenantCredentials) error {
				called = true
				if creds.TenantID != "t1" || creds.AccessToken != "token" {
					t.Fatalf("unexpected credentials: %#v", creds)
				}
				return nil
			},
		}
		cmd := NewSaveCredentialsCommand(svc)
		if err := cmd.Execute(context.Background(), SaveCredentialsMessage{
			Credentials: core.TenantCredentials{TenantID: "t1", AccessToken: "token", SigningSecret: "secret"},
		}); err != nil {
			t.Fatalf("execute save credentials: %v", err)
		}
		if !called {
			t.Fatalf("expected save credentials invocation")
		}
	})
}

func TestSweepStaleSessionsCommand_DelegatesToService(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	called := false
	svc := stubSessionService{
		deactivateStaleFn: func(_ context.Context, tenantID string, inactiveSince time.Time) (int64, error) {
			called = true
			if tenantID != "t1" || !inactiveSince.Equal(cutoff) {
				t.Fatalf("unexpected stale sweep payload: %q %v", tenantID, inactiveSince)
			}
			return 2, nil
		},
	}
	cmd := NewSweepStaleSessionsCommand(svc)
	collector := gocmd.NewResult[int64]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := cmd.Execute(ctx, SweepStaleSessionsMessage{TenantID: "t1", InactiveSince: cutoff}); err != nil {
		t.Fatalf("execute sweep stale sessions: %v", err)
	}
	if !called {
		t.Fatalf("expected deactivate stale invocation")
	}
	swept, ok := collector.Load()
	if !ok {
		t.Fatalf("expected sweep count")
	}
	if swept != 2 {
		t.Fatalf("expected 2 deactivated sessions, got %d", swept)
	}
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name: "process inbound valid",
			msg: ProcessInboundMessage{Message: core.InboundMessage{
				TenantID:  "t1",
				ContactID: "c1",
				MessageID: "wamid.1",
			}},
			wantErr: false,
		},
		{
			name: "process inbound missing message id",
			msg: ProcessInboundMessage{Message: core.InboundMessage{
				TenantID:  "t1",
				ContactID: "c1",
			}},
			wantErr: true,
		},
		{
			name:    "send text missing body",
			msg:     SendTextMessage{TenantID: "t1", ContactID: "c1"},
			wantErr: true,
		},
		{
			name: "send interactive missing buttons",
			msg: SendInteractiveMessage{
				TenantID:  "t1",
				ContactID: "c1",
				Message:   core.InteractiveSend{Body: "Pick one"},
			},
			wantErr: true,
		},
		{
			name: "send template valid",
			msg: SendTemplateMessage{
				TenantID:  "t1",
				ContactID: "c1",
				Template:  core.TemplateSend{Name: "order_update"},
			},
			wantErr: false,
		},
		{
			name:    "extend window zero hours",
			msg:     ExtendWindowMessage{TenantID: "t1", ContactID: "c1"},
			wantErr: true,
		},
		{
			name:    "sweep windows missing tenant",
			msg:     SweepWindowsMessage{},
			wantErr: true,
		},
		{
			name: "register flow missing nodes",
			msg: RegisterFlowMessage{
				Flow: core.Flow{TenantID: "t1", EntryNodeID: "start"},
			},
			wantErr: true,
		},
		{
			name: "upsert template invalid status",
			msg: UpsertTemplateStatusMessage{
				TenantID: "t1",
				Name:     "order_update",
				Status:   core.TemplateStatus("archived"),
			},
			wantErr: true,
		},
		{
			name: "save credentials missing token",
			msg: SaveCredentialsMessage{
				Credentials: core.TenantCredentials{TenantID: "t1"},
			},
			wantErr: true,
		},
		{
			name: "sweep stale sessions valid",
			msg: SweepStaleSessionsMessage{
				TenantID:      "t1",
				InactiveSince: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubConversationService struct {
	handleInboundFn func(ctx context.Context, msg core.InboundMessage) (flow.Result, error)
}

func (s stubConversationService) HandleInbound(ctx context.Context, msg core.InboundMessage) (flow.Result, error) {
	if s.handleInboundFn == nil {
		return flow.Result{}, fmt.Errorf("handle inbound not configured")
	}
	return s.handleInboundFn(ctx, msg)
}

type stubDispatchService struct {
	sendTextFn        func(ctx context.Context, tenantID string, contactID string, text string) (core.DispatchResult, error)
	sendInteractiveFn func(ctx context.Context, tenantID string, contactID string, message core.InteractiveSend) (core.DispatchResult, error)
	sendTemplateFn    func(ctx context.Context, tenantID string, contactID string, template core.TemplateSend) (core.DispatchResult, error)
}

func (s stubDispatchService) SendText(ctx context.Context, tenantID string, contactID string, text string) (core.DispatchResult, error) {
	if s.sendTextFn == nil {
		return core.DispatchResult{}, fmt.Errorf("send text not configured")
	}
	return s.sendTextFn(ctx, tenantID, contactID, text)
}

func (s stubDispatchService) SendInteractive(ctx context.Context, tenantID string, contactID string, message core.InteractiveSend) (core.DispatchResult, error) {
	if s.sendInteractiveFn == nil {
		return core.DispatchResult{}, fmt.Errorf("send interactive not configured")
	}
	return s.sendInteractiveFn(ctx, tenantID, contactID, message)
}

func (s stubDispatchService) SendTemplate(ctx context.Context, tenantID string, contactID string, template core.TemplateSend) (core.DispatchResult, error) {
	if s.sendTemplateFn == nil {
		return core.DispatchResult{}, fmt.Errorf("send template not configured")
	}
	return s.sendTemplateFn(ctx, tenantID, contactID, template)
}

type stubWindowService struct {
	extendFn func(ctx context.Context, tenantID string, contactID string, hours int) (core.ConversationWindow, error)
	sweepFn  func(ctx context.Context, tenantID string) (int64, error)
}

func (s stubWindowService) Extend(ctx context.Context, tenantID string, contactID string, hours int) (core.ConversationWindow, error) {
	if s.extendFn == nil {
		return core.ConversationWindow{}, fmt.Errorf("extend not configured")
	}
	return s.extendFn(ctx, tenantID, contactID, hours)
}

func (s stubWindowService) Sweep(ctx context.Context, tenantID string) (int64, error) {
	if s.sweepFn == nil {
		return 0, fmt.Errorf("sweep not configured")
	}
	return s.sweepFn(ctx, tenantID)
}

type stubAuthoringService struct {
	saveFlowFn             func(ctx context.Context, flow core.Flow, nodes []core.Node) (core.Flow, error)
	upsertTemplateStatusFn func(ctx context.Context, tenantID string, name string, language string, status core.TemplateStatus) (core.Template, error)
	saveCredentialsFn      func(ctx context.Context, creds core.TenantCredentials) error
}

func (s stubAuthoringService) SaveFlow(ctx context.Context, flow core.Flow, nodes []core.Node) (core.Flow, error) {
	if s.saveFlowFn == nil {
		return core.Flow{}, fmt.Errorf("save flow not configured")
	}
	return s.saveFlowFn(ctx, flow, nodes)
}

func (s stubAuthoringService) UpsertTemplateStatus(ctx context.Context, tenantID string, name string, language string, status core.TemplateStatus) (core.Template, error) {
	if s.upsertTemplateStatusFn == nil {
		return core.Template{}, fmt.Errorf("upsert template status not configured")
	}
	return s.upsertTemplateStatusFn(ctx, tenantID, name, language, status)
}

func (s stubAuthoringService) SaveCredentials(ctx context.Context, creds core.TenantCredentials) error {
	if s.saveCredentialsFn == nil {
		return fmt.Errorf("save credentials not configured")
	}
	return s.saveCredentialsFn(ctx, creds)
}

type stubSessionService struct {
	deactivateStaleFn func(ctx context.Context, tenantID string, inactiveSince time.Time) (int64, error)
}

func (s stubSessionService) DeactivateStale(ctx context.Context, tenantID string, inactiveSince time.Time) (int64, error) {
	if s.deactivateStaleFn == nil {
		return 0, fmt.Errorf("deactivate stale not configured")
	}
	return s.deactivateStaleFn(ctx, tenantID, inactiveSince)
}

var (
	_ ConversationService = stubConversationService{}
	_ DispatchService     = stubDispatchService{}
	_ WindowService       = stubWindowService{}
	_ AuthoringService    = stubAuthoringService{}
	_ SessionService      = stubSessionService{}
)
