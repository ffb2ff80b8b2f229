package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"redditscheduler/internal/metrics"
	"redditscheduler/internal/service"
	"redditscheduler/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func bufferLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func newRouter(logger *logrus.Logger, handler http.HandlerFunc) *mux.Router {
	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(logger))
	router.HandleFunc("/api/posts/{id}", handler).Methods(http.MethodDelete)
	return router
}

func TestObservabilityMiddleware(t *testing.T) {
	recorder := withRecorder(t)
	logger, buf := bufferLogger()

	var seenRequestID, seenTraceID string
	router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
		info := tracing.GetRequestInfo(r.Context())
		seenRequestID = info.RequestID
		seenTraceID = info.TraceID
		w.WriteHeader(http.StatusNoContent)
	})

	labels := map[string]string{"method": "DELETE", "endpoint": "/api/posts/{id}", "status_code": "204"}
	before := metrics.GetRegistry().CounterValue(metrics.HTTPRequests, labels)

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/42", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, strings.HasPrefix(seenRequestID, "req_"))
	assert.NotEmpty(t, seenTraceID)
	assert.Equal(t, seenRequestID, w.Header().Get(RequestIDHeader))

	assert.Equal(t, before+1, metrics.GetRegistry().CounterValue(metrics.HTTPRequests, labels))

	found := false
	for _, timer := range metrics.GetSnapshot().Timers {
		if timer.Name == metrics.HTTPRequestTiming && timer.Labels["endpoint"] == "/api/posts/{id}" {
			found = true
		}
	}
	assert.True(t, found, "expected request timer labelled by route template")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http DELETE /api/posts/{id}", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	lines := logLines(t, buf)
	require.Len(t, lines, 2)
	completed := lines[1]
	assert.Equal(t, "HTTP request completed", completed["msg"])
	assert.Equal(t, "info", completed["level"])
	assert.Equal(t, seenRequestID, completed[service.LogFieldRequestID])
	assert.Equal(t, seenTraceID, completed[service.LogFieldTraceID])
	assert.Equal(t, "/api/posts/{id}", completed[service.LogFieldEndpoint])
	assert.Equal(t, "/api/posts/42", completed[service.LogFieldURL])
	assert.Equal(t, "192.168.1.100", completed[service.LogFieldRemoteIP])
	assert.Equal(t, float64(204), completed[service.LogFieldStatusCode])
}

func TestObservabilityMiddleware_HonorsIncomingRequestID(t *testing.T) {
	logger, _ := bufferLogger()

	var seen string
	router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
		seen = tracing.GetRequestID(r.Context())
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/1", nil)
	req.Header.Set(RequestIDHeader, "upstream-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "upstream-123", seen)
	assert.Equal(t, "upstream-123", w.Header().Get(RequestIDHeader))
}

func TestObservabilityMiddleware_RejectsMalformedRequestID(t *testing.T) {
	logger, _ := bufferLogger()

	var seen string
	router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
		seen = tracing.GetRequestID(r.Context())
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/1", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, strings.HasPrefix(seen, "req_"))
}

func TestObservabilityMiddleware_LogLevels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusOK, "info"},
		{"client error", http.StatusBadRequest, "warning"},
		{"server error", http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferLogger()
			router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/posts/9", nil))

			lines := logLines(t, buf)
			require.NotEmpty(t, lines)
			last := lines[len(lines)-1]
			assert.Equal(t, tt.level, last["level"])
			assert.Equal(t, float64(tt.status), last[service.LogFieldStatusCode])
			assert.Equal(t, float64(4), last[service.LogFieldSize])
		})
	}
}

func TestObservabilityMiddleware_ServerErrorMarksSpan(t *testing.T) {
	recorder := withRecorder(t)
	logger, _ := bufferLogger()
	router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/posts/9", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "HTTP 502", spans[0].Status().Description)
}

func TestRouteTemplate_Unmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, unmatchedRoute, routeTemplate(req))
}

func TestResponseWrapper_FirstWriteHeaderWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("abc"))

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, int64(3), rw.responseSize)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
