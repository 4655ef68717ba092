package dispatch

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-chatflow/core"
)

func dispatchError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dispatchWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return dispatchError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dispatchBadInput(message string, metadata map[string]any) error {
	return dispatchError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorBadInput,
		metadata,
	)
}

func windowExpiredError(tenantID, contactID string) error {
	return dispatchError(
		"messaging window has expired for contact",
		goerrors.CategoryOperation,
		http.StatusUnprocessableEntity,
		core.ErrorWindowExpired,
		map[string]any{"tenant_id": tenantID, "contact_id": contactID},
	)
}

func windowUnknownError(tenantID, contactID string) error {
	return dispatchError(
		"no messaging window exists for contact",
		goerrors.CategoryOperation,
		http.StatusUnprocessableEntity,
		core.ErrorWindowUnknown,
		map[string]any{"tenant_id": tenantID, "contact_id": contactID},
	)
}

func dispatchFailedError(source error, attempts int, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["attempts"] = attempts
	return dispatchWrapError(
		source,
		goerrors.CategoryExternal,
		"provider send failed after retries",
		http.StatusBadGateway,
		core.ErrorDispatchFailed,
		metadata,
	)
}
