package http

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
)

func TestWriteError_NotFoundKindPassesThroughMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/player/pb", nil)

	writeError(rec, zap.NewNop(), nil, req, apierr.MapNotFound("Ahead"))

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Error == "" || body.Error == "internal error" {
		t.Fatalf("expected the real not-found message, got %q", body.Error)
	}
}

func TestWriteError_MaskedKindHidesDiagnostic(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/overview", nil)

	writeError(rec, zap.NewNop(), nil, req, apierr.Internal(errors.New("db exploded"), "query failed"))

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Error != "internal error" {
		t.Fatalf("expected masked message, got %q", body.Error)
	}
}

func TestWriteError_RankComputeKindIsMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/overview", nil)

	writeError(rec, zap.NewNop(), nil, req, apierr.RankCompute(nil))

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Error != "internal error" {
		t.Fatalf("expected masked message, got %q", body.Error)
	}
}

func TestWriteError_UnwrappedErrorBecomesMaskedInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/overview", nil)

	writeError(rec, zap.NewNop(), nil, req, errors.New("some lower-level error"))

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 201, map[string]string{"ok": "true"})

	if rec.Code != 201 {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
}
