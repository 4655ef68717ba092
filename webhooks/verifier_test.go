package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-chatflow/core"
)

type stubCredentials struct {
	creds map[string]core.TenantCredentials
	err   error
}

func (s stubCredentials) Resolve(_ context.Context, tenantID string) (core.TenantCredentials, error) {
	if s.err != nil {
		return core.TenantCredentials{}, s.err
	}
	creds, ok := s.creds[tenantID]
	if !ok {
		return core.TenantCredentials{}, core.ErrStateNotFound
	}
	return creds, nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureVerifierAcceptsValidSignature(t *testing.T) {
	verifier := NewSignatureVerifier(stubCredentials{
		creds: map[string]core.TenantCredentials{
			"t1": {TenantID: "t1", SigningSecret: "tenant-secret"},
		},
	}, "", nil)

	body := []byte(`{"object":"whatsapp_business_account"}`)
	headers := map[string]string{SignatureHeader: signBody("tenant-secret", body)}

	if err := verifier.Verify(context.Background(), "t1", headers, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestSignatureVerifierRejectsTamperedBody(t *testing.T) {
	verifier := NewSignatureVerifier(stubCredentials{
		creds: map[string]core.TenantCredentials{
			"t1": {TenantID: "t1", SigningSecret: "tenant-secret"},
		},
	}, "", nil)

	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	headers := map[string]string{SignatureHeader: signBody("tenant-secret", body)}

	// flipping any byte after signing must invalidate the signature
	for i := 0; i < len(body); i += 7 {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		err := verifier.Verify(context.Background(), "t1", headers, tampered)
		if err == nil {
			t.Fatalf("tampered byte %d accepted", i)
		}
		if !core.HasTextCode(err, core.ErrorSignatureInvalid) {
			t.Fatalf("expected signature text code, got %v", err)
		}
	}
}

func TestSignatureVerifierFailsClosed(t *testing.T) {
	verifier := NewSignatureVerifier(nil, "fallback-secret", nil)
	body := []byte(`{}`)

	cases := []struct {
		name    string
		headers map[string]string
	}{
		{name: "missing header", headers: map[string]string{}},
		{name: "missing prefix", headers: map[string]string{SignatureHeader: "deadbeef"}},
		{name: "empty value", headers: map[string]string{SignatureHeader: "sha256="}},
		{name: "bad hex", headers: map[string]string{SignatureHeader: "sha256=zzzz"}},
		{name: "wrong secret", headers: map[string]string{SignatureHeader: signBody("other-secret", body)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := verifier.Verify(context.Background(), "t1", tc.headers, body)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !core.HasTextCode(err, core.ErrorSignatureInvalid) {
				t.Fatalf("expected signature text code, got %v", err)
			}
		})
	}
}

func TestSignatureVerifierFallbackSecret(t *testing.T) {
	// tenant has no signing secret of its own, global fallback applies
	verifier := NewSignatureVerifier(stubCredentials{
		creds: map[string]core.TenantCredentials{"t1": {TenantID: "t1"}},
	}, "fallback-secret", nil)

	body := []byte(`{"entry":[]}`)
	headers := map[string]string{SignatureHeader: signBody("fallback-secret", body)}
	if err := verifier.Verify(context.Background(), "t1", headers, body); err != nil {
		t.Fatalf("fallback secret rejected: %v", err)
	}
}

func TestSignatureVerifierLenientWithoutAnySecret(t *testing.T) {
	verifier := NewSignatureVerifier(nil, "", nil)
	if err := verifier.Verify(context.Background(), "t1", map[string]string{}, []byte(`{}`)); err != nil {
		t.Fatalf("no-secret deployments accept unverified: %v", err)
	}
}

func TestVerifyChallenge(t *testing.T) {
	challenge, err := VerifyChallenge("subscribe", "my-token", "1158201444", "my-token")
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if challenge != "1158201444" {
		t.Fatalf("expected raw challenge echo, got %q", challenge)
	}

	if _, err := VerifyChallenge("subscribe", "wrong", "c", "my-token"); err == nil {
		t.Fatal("token mismatch should fail")
	}
	if _, err := VerifyChallenge("unsubscribe", "my-token", "c", "my-token"); err == nil {
		t.Fatal("unsupported mode should fail")
	}
	if _, err := VerifyChallenge("subscribe", "x", "c", ""); err == nil {
		t.Fatal("unconfigured token should fail")
	}
}
