package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/campusnest/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "abc123"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("role_unresolved", "no role\nassigned", http.StatusForbidden).
		WithDetails(map[string]any{"redirect": "/login", "error": "overridden?"}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "role_unresolved" {
		t.Fatalf("details must not override the error code, got %v", body["error"])
	}
	if body["message"] != "no role assigned" {
		t.Fatalf("expected sanitized message, got %v", body["message"])
	}
	if body["redirect"] != "/login" || body["request_id"] != "req-1" || body["trace_id"] != "abc123" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["status"] != float64(http.StatusForbidden) {
		t.Fatalf("unexpected status field %v", body["status"])
	}
}
