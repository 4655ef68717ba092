package flow

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-chatflow/core"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-()]{5,19}$`)
)

// ValidateAnswer checks a contact's answer against the question's rule. The
// returned error is a rich ValidationFailed error suitable for surfacing or
// counting against the re-ask ceiling.
func ValidateAnswer(rule core.ValidationRule, input string) error {
	input = strings.TrimSpace(input)

	switch rule.Kind {
	case "", core.ValidationText:
		length := len([]rune(input))
		if rule.MinLength > 0 && length < rule.MinLength {
			return validationFailed(fmt.Sprintf("answer must be at least %d characters", rule.MinLength))
		}
		if rule.MaxLength > 0 && length > rule.MaxLength {
			return validationFailed(fmt.Sprintf("answer must be at most %d characters", rule.MaxLength))
		}
		if length == 0 {
			return validationFailed("answer must not be empty")
		}
		return nil
	case core.ValidationEmail:
		if !emailPattern.MatchString(input) {
			return validationFailed("answer must be a valid email address")
		}
		return nil
	case core.ValidationPhone:
		if !phonePattern.MatchString(input) {
			return validationFailed("answer must be a valid phone number")
		}
		return nil
	case core.ValidationNumber:
		if _, err := strconv.ParseFloat(input, 64); err != nil {
			return validationFailed("answer must be a number")
		}
		return nil
	case core.ValidationChoice:
		for _, choice := range rule.Choices {
			if strings.EqualFold(input, strings.TrimSpace(choice)) {
				return nil
			}
		}
		return validationFailed(fmt.Sprintf("answer must be one of: %s", strings.Join(rule.Choices, ", ")))
	}

	return validationFailed(fmt.Sprintf("unknown validation kind %q", rule.Kind))
}

func validationFailed(message string) error {
	return flowError(
		message,
		goerrors.CategoryValidation,
		http.StatusBadRequest,
		core.ErrorValidationFailed,
		nil,
	)
}
