package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/utils"
)

const maxRequestBodyBytes = 1 << 20

// statusForError maps an error kind to its HTTP status.
func statusForError(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrMalformedResponse:
		return http.StatusBadGateway
	case apperrors.ErrTransient:
		return http.StatusServiceUnavailable
	case apperrors.ErrValidation, apperrors.ErrInvariantViolation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrConflict:
		return http.StatusConflict
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Info("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	utils.SendJSONError(w, apperrors.UserMessage(err), status)
}

// decodeJSONBody decodes a bounded JSON body and rejects unknown fields.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid request body"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			msg = "Request body too large"
		case errors.Is(err, io.EOF):
			msg = "Request body is empty"
		default:
			msg = fmt.Sprintf("Invalid request body: %v", err)
		}
		logger.FromContext(r.Context()).Debug("Rejected request body", "path", r.URL.Path, "error", err)
		utils.SendJSONError(w, msg, http.StatusBadRequest)
		return false
	}
	return true
}

func lineIndexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		utils.SendJSONError(w, fmt.Sprintf("Invalid line index %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return index, true
}
