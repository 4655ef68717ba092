package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-chatflow/core"
)

const (
	// SignatureHeader carries the vendor's HMAC over the raw request body.
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// SignatureVerifier checks the vendor HMAC-SHA256 signature against the
// tenant's signing secret. Secret resolution order: tenant credentials, then
// the global fallback secret. When neither is configured the request is let
// through unverified with a logged warning; a configured secret always fails
// closed on a missing or malformed header.
type SignatureVerifier struct {
	Credentials    core.CredentialResolver
	FallbackSecret string
	Logger         core.Logger
}

func NewSignatureVerifier(credentials core.CredentialResolver, fallbackSecret string, logger core.Logger) *SignatureVerifier {
	if logger == nil {
		logger = glog.Nop()
	}
	return &SignatureVerifier{
		Credentials:    credentials,
		FallbackSecret: strings.TrimSpace(fallbackSecret),
		Logger:         logger,
	}
}

func (v *SignatureVerifier) Verify(ctx context.Context, tenantID string, headers map[string]string, body []byte) error {
	if v == nil {
		return signatureInvalid("signature verifier is not configured", nil)
	}

	secret := v.resolveSecret(ctx, tenantID)
	if secret == "" {
		v.Logger.Error("no signing secret configured, accepting webhook unverified",
			"tenant_id", tenantID,
		)
		return nil
	}

	header := strings.TrimSpace(headerValue(headers, SignatureHeader))
	if header == "" {
		return signatureInvalid("signature header is required", map[string]any{
			"tenant_id": tenantID,
			"header":    SignatureHeader,
		})
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return signatureInvalid("signature header is malformed", map[string]any{
			"tenant_id": tenantID,
		})
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, signaturePrefix))
	if signature == "" {
		return signatureInvalid("signature value is required", map[string]any{
			"tenant_id": tenantID,
		})
	}

	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return signatureInvalid("signature is not valid hex", map[string]any{
			"tenant_id": tenantID,
		})
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return signatureInvalid("signature verification failed", map[string]any{
			"tenant_id": tenantID,
		})
	}
	return nil
}

func (v *SignatureVerifier) resolveSecret(ctx context.Context, tenantID string) string {
	if v.Credentials != nil {
		creds, err := v.Credentials.Resolve(ctx, strings.TrimSpace(tenantID))
		if err == nil {
			if secret := strings.TrimSpace(creds.SigningSecret); secret != "" {
				return secret
			}
		} else {
			v.Logger.Error("tenant credential resolution failed, falling back",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
	return v.FallbackSecret
}

// VerifyChallenge implements the subscription handshake: a GET with
// hub.mode=subscribe and a matching hub.verify_token gets the raw
// hub.challenge echoed back.
func VerifyChallenge(mode, verifyToken, challenge, expectedToken string) (string, error) {
	if strings.TrimSpace(mode) != "subscribe" {
		return "", webhookBadInput("unsupported hub mode", map[string]any{"hub_mode": mode})
	}
	expected := strings.TrimSpace(expectedToken)
	if expected == "" {
		return "", signatureInvalid("verify token is not configured", nil)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(verifyToken)), []byte(expected)) != 1 {
		return "", signatureInvalid("verify token mismatch", nil)
	}
	return challenge, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
