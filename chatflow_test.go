package chatflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/query"
	"github.com/goliatone/go-chatflow/security"
	"github.com/goliatone/go-chatflow/webhooks"
)

func TestNewService_MemoryModeRoutesWebhookEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Webhook.FallbackSecret = "test-secret"

	client := &capturingSendClient{}
	svc, err := NewService(cfg, WithSendClient(client))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.SaveFlow(ctx, core.Flow{
		ID:          "flow-onboarding",
		TenantID:    "t1",
		Name:        "onboarding",
		EntryNodeID: "start",
		IsMain:      true,
		Active:      true,
	}, onboardingNodes()); err != nil {
		t.Fatalf("save flow: %v", err)
	}

	body := []byte(inboundPayload("15550001111", "wamid.inbound.1", "hi"))
	req := webhooks.Request{
		TenantID: "t1",
		Headers:  signedHeaders(body, "test-secret"),
		Body:     body,
	}

	result, err := svc.ProcessWebhook(ctx, req)
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if result.Status != webhooks.StatusOK || result.MessagesRouted != 1 {
		t.Fatalf("unexpected webhook result: %#v", result)
	}

	if len(client.texts) == 0 {
		t.Fatalf("expected question prompt to be dispatched")
	}
	if client.texts[len(client.texts)-1] != "What is your name?" {
		t.Fatalf("unexpected dispatched reply: %q", client.texts)
	}

	status, err := svc.Status(ctx, "t1", "15550001111")
	if err != nil {
		t.Fatalf("window status: %v", err)
	}
	if status != core.WindowStatusActive {
		t.Fatalf("expected inbound activity to open the window, got %q", status)
	}

	state, err := svc.GetActive(ctx, "t1", "15550001111")
	if err != nil {
		t.Fatalf("get active state: %v", err)
	}
	if state.CurrentNodeID != "ask_name" {
		t.Fatalf("expected cursor to await the question, got %q", state.CurrentNodeID)
	}

	turns, err := svc.ListTurns(ctx, "t1", "15550001111", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) < 2 {
		t.Fatalf("expected inbound and outbound turns, got %d", len(turns))
	}

	// same provider message id must dedupe, not re-route
	again, err := svc.ProcessWebhook(ctx, req)
	if err != nil {
		t.Fatalf("process webhook again: %v", err)
	}
	if again.MessagesRouted != 0 || again.MessagesDeduped != 1 {
		t.Fatalf("expected duplicate delivery to dedupe: %#v", again)
	}
}

func TestNewService_RejectsBadWebhookSignature(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhook.FallbackSecret = "test-secret"

	svc, err := NewService(cfg, WithSendClient(&capturingSendClient{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	body := []byte(inboundPayload("15550001111", "wamid.inbound.2", "hi"))
	_, err = svc.ProcessWebhook(context.Background(), webhooks.Request{
		TenantID: "t1",
		Headers:  signedHeaders(body, "wrong-secret"),
		Body:     body,
	})
	if err == nil {
		t.Fatalf("expected signature verification failure")
	}
}

func TestService_FreeFormSendRequiresOpenWindow(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(DefaultConfig(), WithSendClient(&capturingSendClient{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.SendText(ctx, "t1", "c1", "hello"); err == nil {
		t.Fatalf("expected send without a window to fail")
	}

	if _, err := svc.Tracker().Create(ctx, "t1", "c1"); err != nil {
		t.Fatalf("create window: %v", err)
	}
	out, err := svc.SendText(ctx, "t1", "c1", "hello")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected successful dispatch: %#v", out)
	}

	extended, err := svc.Extend(ctx, "t1", "c1", 12)
	if err != nil {
		t.Fatalf("extend window: %v", err)
	}
	if extended.Status != core.WindowStatusManuallyExtended {
		t.Fatalf("expected manual extension, got %q", extended.Status)
	}

	expired, err := svc.Sweep(ctx, "t1")
	if err != nil {
		t.Fatalf("sweep windows: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected no due windows, got %d", expired)
	}
}

func TestService_CredentialsAndTemplatesWithSecretProvider(t *testing.T) {
	ctx := context.Background()
	secrets, err := security.NewAppKeySecretProviderFromString("an-application-key-for-sealing")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}

	svc, err := NewService(DefaultConfig(), WithSecretProvider(secrets), WithSendClient(&capturingSendClient{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.SaveCredentials(ctx, core.TenantCredentials{
		TenantID:      "t1",
		SigningSecret: "per-tenant-secret",
		AccessToken:   "token-1",
		PhoneNumberID: "123",
	}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	resolved, err := svc.Dependencies().CredentialResolver.Resolve(ctx, "t1")
	if err != nil {
		t.Fatalf("resolve credentials: %v", err)
	}
	if resolved.AccessToken != "token-1" || resolved.SigningSecret != "per-tenant-secret" {
		t.Fatalf("unexpected resolved credentials: %#v", resolved)
	}

	if _, err := svc.UpsertTemplateStatus(ctx, "t1", "order_update", "en", core.TemplateStatusApproved); err != nil {
		t.Fatalf("upsert template status: %v", err)
	}

	// the facade resolves the template read model through Dependencies
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	template, err := facade.Queries().GetTemplate.Query(ctx, query.GetTemplateMessage{
		TenantID: "t1",
		Name:     "order_update",
	})
	if err != nil {
		t.Fatalf("query template: %v", err)
	}
	if !template.Approved() {
		t.Fatalf("expected approved template, got %q", template.Status)
	}
}

func TestService_SaveCredentialsRequiresSecretProvider(t *testing.T) {
	svc, err := NewService(DefaultConfig(), WithSendClient(&capturingSendClient{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.SaveCredentials(context.Background(), core.TenantCredentials{
		TenantID:    "t1",
		AccessToken: "token",
	}); err == nil {
		t.Fatalf("expected missing secret provider error")
	}
}

func onboardingNodes() []core.Node {
	return []core.Node{
		{
			ID:   "start",
			Type: core.NodeTypeStart,
			Config: core.NodeConfig{
				Start: &core.StartConfig{Next: "ask_name"},
			},
		},
		{
			ID:   "ask_name",
			Type: core.NodeTypeQuestion,
			Config: core.NodeConfig{
				Question: &core.QuestionConfig{
					Prompt:   "What is your name?",
					Variable: "name",
					Rule:     core.ValidationRule{Kind: core.ValidationText},
					Next:     "bye",
				},
			},
		},
		{
			ID:   "bye",
			Type: core.NodeTypeEnd,
			Config: core.NodeConfig{
				End: &core.EndConfig{Text: "Thanks!"},
			},
		},
	}
}

func inboundPayload(from, messageID, text string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550009999", "phone_number_id": "123"},
					"messages": [{
						"from": %q,
						"id": %q,
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": %q}
					}]
				}
			}]
		}]
	}`, from, messageID, text)
}

func signedHeaders(body []byte, secret string) map[string]string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return map[string]string{
		webhooks.SignatureHeader: "sha256=" + hex.EncodeToString(mac.Sum(nil)),
	}
}

type capturingSendClient struct {
	mu    sync.Mutex
	texts []string
}

var _ core.SendClient = (*capturingSendClient)(nil)

func (c *capturingSendClient) SendText(_ context.Context, _ core.TenantCredentials, _ string, text string) (core.ProviderSendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return core.ProviderSendResult{MessageID: fmt.Sprintf("wamid.out.%d", len(c.texts)), StatusCode: 200}, nil
}

func (c *capturingSendClient) SendTemplate(context.Context, core.TenantCredentials, string, core.TemplateSend) (core.ProviderSendResult, error) {
	return core.ProviderSendResult{MessageID: "wamid.out.template", StatusCode: 200}, nil
}

func (c *capturingSendClient) SendInteractive(_ context.Context, _ core.TenantCredentials, _ string, message core.InteractiveSend) (core.ProviderSendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, message.Body)
	return core.ProviderSendResult{MessageID: "wamid.out.interactive", StatusCode: 200}, nil
}
