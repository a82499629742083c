package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCreated(w, map[string]string{"id": "abc"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var body SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.(map[string]any)["id"] != "abc" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodeConflict, http.StatusConflict},
		{pkgerrors.CodeNotFound, http.StatusNotFound},
		{pkgerrors.CodePaymentFailed, http.StatusPaymentRequired},
		{pkgerrors.CodeInvariant, http.StatusUnprocessableEntity},
		{pkgerrors.CodeStateConflict, http.StatusUnprocessableEntity},
		{pkgerrors.CodeValidation, http.StatusBadRequest},
		{pkgerrors.CodeForbidden, http.StatusForbidden},
		{pkgerrors.CodeDependency, http.StatusServiceUnavailable},
	}
	logg := logger.New(logger.Options{ServiceName: "responses-test"})
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), logg, w, pkgerrors.New(tc.code, "reason"))
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.code, tc.status, w.Code)
		}
		var body ErrorEnvelope
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Code != string(tc.code) {
			t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
		}
	}
}

func TestWriteErrorKeepsValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "start"})
	WriteError(context.Background(), nil, w, err)

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "bad input" {
		t.Fatalf("unexpected message %q", body.Error.Message)
	}
	if body.Error.Details == nil {
		t.Fatalf("expected details")
	}
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInternal) || body.Error.Message == "pq: connection refused" {
		t.Fatalf("internal error leaked: %+v", body.Error)
	}
	if body.Error.Details != nil {
		t.Fatalf("details should be omitted for internal errors")
	}
}
