package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Brownie44l1/veggie-api/internal/predict"
)

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (w brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestErrorHandler_LogsWriteFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	e := NewRouter(NewHandler(predict.New(notLoaded(), logger), logger), logger)

	w := brokenWriter{httptest.NewRecorder()}
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	entries := logs.FilterMessage("failed to write error response").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 write-failure entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["error"]; got != "connection reset" {
		t.Fatalf("unexpected logged error %v", got)
	}
}
