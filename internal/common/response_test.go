package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusUnprocessableEntity, "VALIDATION", "currency is required", nil)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "VALIDATION" || body.Error.Message != "currency is required" {
		t.Fatalf("unexpected payload %+v", body.Error)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("row not found")
	appErr := &AppError{Code: "NOT_FOUND", Message: "variant missing", HTTPStatus: http.StatusNotFound, Err: cause}

	if !errors.Is(appErr, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
	if appErr.Error() != "row not found" {
		t.Fatalf("unexpected message %q", appErr.Error())
	}
}

func TestWriteErrorRendersAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, &AppError{
		Code:       "NOT_FOUND",
		Message:    "variant missing",
		HTTPStatus: http.StatusNotFound,
		Err:        errors.New("row not found"),
	})

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" || body.Error.Message != "variant missing" {
		t.Fatalf("unexpected payload %+v", body.Error)
	}
}

func TestWriteErrorDefaults(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, &AppError{Err: errors.New("boom")})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("zero-value status must default to 500, got %d", rr.Code)
	}

	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INTERNAL" || body.Error.Message != "internal error" {
		t.Fatalf("unexpected payload %+v", body.Error)
	}
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: connection refused"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if body := rr.Body.String(); strings.Contains(body, "connection refused") {
		t.Fatalf("internal detail leaked: %s", body)
	}
}
