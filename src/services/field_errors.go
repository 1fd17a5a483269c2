package services

import (
	"context"
	"strings"
	"unicode"

	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/security/validation"
)

// fieldError turns a validator error into a validation error carrying its text.
func fieldError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimPrefix(err.Error(), validation.ErrValidationFailed.Error()+": ")
	if msg != "" {
		runes := []rune(msg)
		runes[0] = unicode.ToUpper(runes[0])
		msg = string(runes)
		if !strings.HasSuffix(msg, ".") {
			msg += "."
		}
	}
	return apperrors.Wrap(op, apperrors.ErrValidation, err, msg)
}

// firstError returns the first non-nil error.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// withSessionContext derives a request context that is also cancelled when the session
// is discarded or expires.
func withSessionContext(ctx, sessionCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(sessionCtx, func() {
		cancel(context.Cause(sessionCtx))
	})
	return merged, func() {
		stop()
		cancel(context.Canceled)
	}
}
