package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareReplacesOversizedTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); len(got) != 32 {
			t.Fatalf("TraceIDFromContext() = %q, want generated id", got)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, strings.Repeat("x", 500))
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestLoggerFromContextAddsCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := ContextWithTurnID(ContextWithTraceID(context.Background(), "abc123"), "turn-9")
	LoggerFromContext(ctx, base).Info("chat_turn")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"abc123"`) || !strings.Contains(out, `"turn_id":"turn-9"`) {
		t.Fatalf("log output = %s", out)
	}
	if got := TurnIDFromContext(ctx); got != "turn-9" {
		t.Fatalf("TurnIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := RecoverMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMetricPathFoldsUnknownRoutes(t *testing.T) {
	if got := metricPath("/v1/chat"); got != "/v1/chat" {
		t.Fatalf("metricPath(/v1/chat) = %q", got)
	}
	if got := metricPath("/wp-admin/setup.php"); got != "other" {
		t.Fatalf("metricPath(/wp-admin) = %q", got)
	}
}

func TestChatMetricsCount(t *testing.T) {
	before := counterValue(t, chatTurnsTotal.WithLabelValues("answered"))
	ObserveChatTurn("answered")
	if got := counterValue(t, chatTurnsTotal.WithLabelValues("answered")); got != before+1 {
		t.Fatalf("chat turns = %v, want %v", got, before+1)
	}

	rejectedBefore := counterValue(t, sqlGuardRejectionsTotal.WithLabelValues("not_select"))
	ObserveSQLGuardRejection("not_select")
	if got := counterValue(t, sqlGuardRejectionsTotal.WithLabelValues("not_select")); got != rejectedBefore+1 {
		t.Fatalf("rejections = %v", got)
	}

	exportsBefore := counterValue(t, snapshotExportsTotal.WithLabelValues("error"))
	ObserveSnapshotExport(0, errors.New("upload failed"))
	if got := counterValue(t, snapshotExportsTotal.WithLabelValues("error")); got != exportsBefore+1 {
		t.Fatalf("snapshot errors = %v", got)
	}

	ObserveLLMRequest("openai", nil, 150*time.Millisecond)
	ObserveChatStage("plan", time.Second)
	ObserveQueryRows(-1)
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return metric.GetCounter().GetValue()
}
