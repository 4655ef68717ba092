package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-chatflow/core"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v19.0"

	defaultClientTimeout     = 30 * time.Second
	defaultResponseBodyLimit = int64(1 << 20)
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GraphSendClient implements core.SendClient against the vendor's
// Graph-style messaging API: POST {base}/{phone_number_id}/messages with a
// per-tenant bearer token.
type GraphSendClient struct {
	Client  HTTPDoer
	BaseURL string
}

func NewGraphSendClient(client HTTPDoer) *GraphSendClient {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &GraphSendClient{
		Client:  client,
		BaseURL: DefaultBaseURL,
	}
}

var _ core.SendClient = (*GraphSendClient)(nil)

type sendPayload struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type,omitempty"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textPayload        `json:"text,omitempty"`
	Template         *templatePayload    `json:"template,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
}

type textPayload struct {
	Body string `json:"body"`
}

type templatePayload struct {
	Name     string `json:"name"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactivePayload struct {
	Type   string `json:"type"`
	Body   struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []interactiveButton `json:"buttons"`
	} `json:"action"`
}

type interactiveButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *GraphSendClient) SendText(ctx context.Context, creds core.TenantCredentials, to string, text string) (core.ProviderSendResult, error) {
	payload := sendPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimSpace(to),
		Type:             "text",
		Text:             &textPayload{Body: text},
	}
	return c.post(ctx, creds, payload)
}

func (c *GraphSendClient) SendTemplate(ctx context.Context, creds core.TenantCredentials, to string, template core.TemplateSend) (core.ProviderSendResult, error) {
	body := &templatePayload{Name: strings.TrimSpace(template.Name)}
	body.Language.Code = strings.TrimSpace(template.Language)
	if body.Language.Code == "" {
		body.Language.Code = "en_US"
	}
	if len(template.Parameters) > 0 {
		component := templateComponent{Type: "body"}
		for _, parameter := range template.Parameters {
			component.Parameters = append(component.Parameters, templateParameter{Type: "text", Text: parameter})
		}
		body.Components = []templateComponent{component}
	}
	payload := sendPayload{
		MessagingProduct: "whatsapp",
		To:               strings.TrimSpace(to),
		Type:             "template",
		Template:         body,
	}
	return c.post(ctx, creds, payload)
}

func (c *GraphSendClient) SendInteractive(ctx context.Context, creds core.TenantCredentials, to string, message core.InteractiveSend) (core.ProviderSendResult, error) {
	body := &interactivePayload{Type: "button"}
	body.Body.Text = message.Body
	for i, title := range message.Buttons {
		button := interactiveButton{Type: "reply"}
		button.Reply.ID = fmt.Sprintf("btn_%d", i)
		button.Reply.Title = title
		body.Action.Buttons = append(body.Action.Buttons, button)
	}
	payload := sendPayload{
		MessagingProduct: "whatsapp",
		To:               strings.TrimSpace(to),
		Type:             "interactive",
		Interactive:      body,
	}
	return c.post(ctx, creds, payload)
}

func (c *GraphSendClient) post(ctx context.Context, creds core.TenantCredentials, payload sendPayload) (core.ProviderSendResult, error) {
	if c == nil || c.Client == nil {
		return core.ProviderSendResult{}, transportError(
			"transport: send client requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if strings.TrimSpace(creds.PhoneNumberID) == "" {
		return core.ProviderSendResult{}, transportError(
			"transport: tenant phone number id is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"tenant_id": creds.TenantID},
		)
	}
	if strings.TrimSpace(payload.To) == "" {
		return core.ProviderSendResult{}, transportError(
			"transport: recipient is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.ProviderSendResult{}, transportWrapError(
			err,
			goerrors.CategoryInternal,
			"transport: encode send payload",
			http.StatusInternalServerError,
			nil,
		)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	endpoint := baseURL + "/" + strings.TrimSpace(creds.PhoneNumberID) + "/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.ProviderSendResult{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create send request",
			http.StatusBadRequest,
			map[string]any{"url": endpoint},
		)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(creds.AccessToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpRes, err := c.Client.Do(httpReq)
	if err != nil {
		return core.ProviderSendResult{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute send request",
			http.StatusBadGateway,
			map[string]any{"url": endpoint},
		)
	}
	defer httpRes.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(httpRes.Body, defaultResponseBodyLimit))
	if err != nil {
		return core.ProviderSendResult{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read send response",
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode},
		)
	}

	var decoded sendResponse
	_ = json.Unmarshal(resBody, &decoded)

	result := core.ProviderSendResult{
		StatusCode: httpRes.StatusCode,
		Metadata:   map[string]any{"url": endpoint},
	}
	if len(decoded.Messages) > 0 {
		result.MessageID = strings.TrimSpace(decoded.Messages[0].ID)
	}

	// transient statuses return without error so callers can retry on the
	// status code; permanent client errors fail here
	if httpRes.StatusCode == http.StatusTooManyRequests || httpRes.StatusCode >= http.StatusInternalServerError {
		return result, nil
	}
	if httpRes.StatusCode >= http.StatusBadRequest {
		message := "provider rejected send"
		if decoded.Error != nil && strings.TrimSpace(decoded.Error.Message) != "" {
			message = decoded.Error.Message
		}
		category := goerrors.CategoryBadInput
		if httpRes.StatusCode == http.StatusUnauthorized || httpRes.StatusCode == http.StatusForbidden {
			category = goerrors.CategoryAuth
		}
		return result, transportError(
			"transport: "+message,
			category,
			httpRes.StatusCode,
			map[string]any{"tenant_id": creds.TenantID, "status_code": httpRes.StatusCode},
		)
	}
	return result, nil
}
