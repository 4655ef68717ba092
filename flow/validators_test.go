package flow

import (
	"testing"

	"github.com/goliatone/go-chatflow/core"
)

func TestValidateAnswer(t *testing.T) {
	cases := []struct {
		name    string
		rule    core.ValidationRule
		input   string
		wantErr bool
	}{
		{name: "text default", rule: core.ValidationRule{}, input: "hello"},
		{name: "text empty", rule: core.ValidationRule{}, input: "   ", wantErr: true},
		{name: "text too short", rule: core.ValidationRule{Kind: core.ValidationText, MinLength: 3}, input: "ab", wantErr: true},
		{name: "text too long", rule: core.ValidationRule{Kind: core.ValidationText, MaxLength: 3}, input: "abcd", wantErr: true},
		{name: "text within bounds", rule: core.ValidationRule{Kind: core.ValidationText, MinLength: 2, MaxLength: 5}, input: "abc"},
		{name: "email valid", rule: core.ValidationRule{Kind: core.ValidationEmail}, input: "a@b.co"},
		{name: "email invalid", rule: core.ValidationRule{Kind: core.ValidationEmail}, input: "a@b", wantErr: true},
		{name: "email with spaces", rule: core.ValidationRule{Kind: core.ValidationEmail}, input: "a b@c.co", wantErr: true},
		{name: "phone e164", rule: core.ValidationRule{Kind: core.ValidationPhone}, input: "+14155550123"},
		{name: "phone formatted", rule: core.ValidationRule{Kind: core.ValidationPhone}, input: "+1 (415) 555-0123"},
		{name: "phone invalid", rule: core.ValidationRule{Kind: core.ValidationPhone}, input: "call me", wantErr: true},
		{name: "number int", rule: core.ValidationRule{Kind: core.ValidationNumber}, input: "42"},
		{name: "number float", rule: core.ValidationRule{Kind: core.ValidationNumber}, input: "3.14"},
		{name: "number invalid", rule: core.ValidationRule{Kind: core.ValidationNumber}, input: "forty-two", wantErr: true},
		{name: "choice match", rule: core.ValidationRule{Kind: core.ValidationChoice, Choices: []string{"red", "blue"}}, input: "Blue"},
		{name: "choice miss", rule: core.ValidationRule{Kind: core.ValidationChoice, Choices: []string{"red", "blue"}}, input: "green", wantErr: true},
		{name: "unknown kind", rule: core.ValidationRule{Kind: core.ValidationKind("regex")}, input: "x", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAnswer(tc.rule, tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !core.HasTextCode(err, core.ErrorValidationFailed) {
					t.Fatalf("expected validation text code, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
