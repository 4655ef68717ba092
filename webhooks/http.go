package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-chatflow/core"
)

const maxWebhookBodyBytes = 1 << 20

// HTTPHandler exposes the webhook endpoint: GET serves the subscription
// handshake, POST ingests deliveries. Item-level processing failures still
// acknowledge 200 so the vendor does not retry the whole batch; only
// signature and malformed-body errors surface as 4xx.
type HTTPHandler struct {
	Processor   *Processor
	VerifyToken string
	// TenantResolver extracts the tenant from the request; defaults to the
	// tenant_id query parameter, then the X-Tenant-ID header.
	TenantResolver func(r *http.Request) string
	Logger         core.Logger
}

func NewHTTPHandler(processor *Processor, verifyToken string, logger core.Logger) *HTTPHandler {
	if logger == nil {
		logger = glog.Nop()
	}
	return &HTTPHandler{
		Processor:   processor,
		VerifyToken: strings.TrimSpace(verifyToken),
		Logger:      logger,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleChallenge(w, r)
	case http.MethodPost:
		h.handleDelivery(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *HTTPHandler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	challenge, err := VerifyChallenge(
		query.Get("hub.mode"),
		query.Get("hub.verify_token"),
		query.Get("hub.challenge"),
		h.VerifyToken,
	)
	if err != nil {
		h.Logger.Error("webhook handshake rejected", "error", err)
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "verification failed"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func (h *HTTPHandler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if h.Processor == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "processor not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}

	headers := map[string]string{}
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	result, err := h.Processor.Process(r.Context(), Request{
		TenantID: h.resolveTenant(r),
		Headers:  headers,
		Body:     body,
	})
	if err != nil {
		mapped := core.MapError(err)
		h.Logger.Error("webhook delivery rejected",
			"status", mapped.Code,
			"text_code", mapped.TextCode,
		)
		writeJSON(w, mapped.Code, map[string]any{"error": mapped.TextCode})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": result.Status})
}

func (h *HTTPHandler) resolveTenant(r *http.Request) string {
	if h.TenantResolver != nil {
		return strings.TrimSpace(h.TenantResolver(r))
	}
	if tenant := strings.TrimSpace(r.URL.Query().Get("tenant_id")); tenant != "" {
		return tenant
	}
	return strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
