package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/listen-stream/playlist-screen/pkg/logger"
	"github.com/listen-stream/playlist-screen/pkg/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"generated", "", false},
		{"propagated", "req-123", true},
		{"too long", string(bytes.Repeat([]byte("a"), 200)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers[RequestIDHeader] = tt.header
			}
			w := perform(r, http.MethodGet, "/ping", headers)

			got := w.Header().Get(RequestIDHeader)
			require.NotEmpty(t, got)
			assert.Equal(t, got, w.Body.String())
			if tt.wantSame {
				assert.Equal(t, tt.header, got)
			} else {
				assert.NotEqual(t, tt.header, got)
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/x", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = perform(r, http.MethodOptions, "/x", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// 无 Origin 时不返回 CORS 头
	w = perform(r, http.MethodGet, "/x", nil)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowList(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://screen.example.com/"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/x", map[string]string{"Origin": "https://screen.example.com"})
	assert.Equal(t, "https://screen.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodGet, "/x", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: logger.DebugLevel, Output: &buf})

	r := gin.New()
	r.Use(RequestID(), Recovery(log))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := perform(r, http.MethodGet, "/boom", map[string]string{RequestIDHeader: "req-panic"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(500), body["code"])
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
	assert.Equal(t, "req-panic", body["request_id"])

	assert.Contains(t, buf.String(), "Panic recovered")
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "req-panic")
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: logger.DebugLevel, Output: &buf})

	r := gin.New()
	r.Use(RequestID(), Logging(log, "/health"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path    string
		level   string
		message string
	}{
		{"/ok", "INFO", "HTTP request"},
		{"/missing", "WARN", "HTTP request warning"},
		{"/fail", "ERROR", "HTTP request error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			perform(r, http.MethodGet, tt.path, map[string]string{RequestIDHeader: "req-log"})

			var entry logger.Entry
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, tt.message, entry.Message)
			assert.Equal(t, tt.path, entry.Fields["path"])
			assert.Equal(t, "req-log", entry.Fields["request_id"])
		})
	}

	buf.Reset()
	perform(r, http.MethodGet, "/health", nil)
	assert.Empty(t, buf.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	r := gin.New()
	r.Use(RequestID(), rl.Limit())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)

	w := perform(r, http.MethodGet, "/x", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "TOO_MANY_REQUESTS", body["error"])
	assert.NotEmpty(t, body["request_id"])

	// 不同 IP 独立计数
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	other := httptest.NewRecorder()
	r.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
	assert.Equal(t, 2, rl.Size())
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.getLimiter("1.1.1.1")
	rl.getLimiter("2.2.2.2")
	assert.Equal(t, 2, rl.Size())

	now = now.Add(rl.idleTTL + rl.cleanupInterval + time.Second)
	rl.getLimiter("3.3.3.3")
	assert.Equal(t, 1, rl.Size())
}

func TestRedisRateLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRedisRateLimiter(client, 1, 2, logger.NewNop())
	assert.Equal(t, 2*time.Second, rl.window)

	r := gin.New()
	r.Use(RequestID(), rl.Limit())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)

	w := perform(r, http.MethodGet, "/x", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	// 窗口过期后重新计数
	mr.FastForward(2 * time.Second)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)

	// Redis 不可用时放行
	mr.Close()
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: logger.DebugLevel, Output: &buf})

	r := gin.New()
	r.Use(Tracing(tp.Tracer("test"), "screen-svc"))
	r.GET("/api/playlists/:artist_id", func(c *gin.Context) {
		log.WithContext(c.Request.Context()).Info("inside")
		c.String(http.StatusOK, GetTraceID(c))
	})

	parent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	w := perform(r, http.MethodGet, "/api/playlists/dua-lipa", map[string]string{"traceparent": parent})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get(TraceIDHeader))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Body.String())
	assert.Contains(t, buf.String(), "4bf92f3577b34da6a3ce929d0e0e4736")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/playlists/:artist_id", spans[0].Name())
}

func TestMetrics(t *testing.T) {
	p, shutdown, err := telemetry.Init(context.Background(), &telemetry.Config{ServiceName: "screen-svc"})
	require.NoError(t, err)
	defer shutdown(context.Background())

	mw, err := Metrics(p)
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.GET("/api/artists", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(p.MetricsHandler()))

	perform(r, http.MethodGet, "/api/artists", nil)
	perform(r, http.MethodGet, "/nope", nil)

	w := perform(r, http.MethodGet, "/metrics", nil)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "screen_svc_http_requests_total")
	assert.Contains(t, string(body), `route="/api/artists"`)
	assert.Contains(t, string(body), `route="unmatched"`)
	assert.Contains(t, string(body), "screen_svc_http_request_duration_seconds")
}
