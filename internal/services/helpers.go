package services

import (
	"context"
	"strings"

	apperrors "github.com/pledgerhq/pledger/pkg/errors"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func strPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// storeError classifies persistence failures. Constraint violations are
// surfaced as conflicts (typically an enum value the persisted schema does
// not recognise yet); anything else is wrapped as an internal error.
func storeError(err error, message string) error {
	if err == nil {
		return nil
	}

	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "constraint") || strings.Contains(lowered, "duplicate") {
		return apperrors.ErrConflict.WithInternal(err)
	}
	return apperrors.Wrap(err, message)
}
