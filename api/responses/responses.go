package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

// codes whose own message is safe to show to callers
var publicMessageCodes = map[pkgerrors.Code]struct{}{
	pkgerrors.CodeValidation:    {},
	pkgerrors.CodeForbidden:     {},
	pkgerrors.CodeUnauthorized:  {},
	pkgerrors.CodeNotFound:      {},
	pkgerrors.CodeConflict:      {},
	pkgerrors.CodeStateConflict: {},
	pkgerrors.CodeInvariant:     {},
	pkgerrors.CodePaymentFailed: {},
	pkgerrors.CodeIdempotency:   {},
	pkgerrors.CodeRateLimit:     {},
}

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every 4xx/5xx body as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusCreated, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders err as the error envelope. Untyped errors become INTERNAL_ERROR.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if _, ok := publicMessageCodes[typed.Code()]; ok && typed.Message() != "" {
		msg = typed.Message()
	}
	payload := ErrorEnvelope{Error: APIError{Code: string(typed.Code()), Message: msg}}
	if meta.DetailsAllowed {
		payload.Error.Details = typed.Details()
	}

	if logg != nil {
		logError(ctx, logg, meta.HTTPStatus, err)
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

func logError(ctx context.Context, logg *logger.Logger, status int, err error) {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"status":     status,
		"error_code": dump.Code,
	}
	if status < http.StatusInternalServerError {
		fields["error"] = dump.TopMessage
		logg.Warn(logg.WithFields(ctx, fields), "request.rejected")
		return
	}
	fields["error_chain"] = dump.Chain
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_constraint"] = dump.PGConstraint
		fields["pg_detail"] = dump.PGDetail
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// headers are already out; all that is left is to record it
		zlog.Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}
