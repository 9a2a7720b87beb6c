package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
)

func TestDetermineLogLevel(t *testing.T) {
	cases := map[int]logrus.Level{
		http.StatusOK:                  logrus.InfoLevel,
		http.StatusCreated:             logrus.InfoLevel,
		http.StatusNotFound:            logrus.WarnLevel,
		http.StatusUnauthorized:        logrus.WarnLevel,
		http.StatusServiceUnavailable:  logrus.ErrorLevel,
		http.StatusInternalServerError: logrus.ErrorLevel,
	}
	for status, want := range cases {
		if got := determineLogLevel(status); got != want {
			t.Fatalf("status %d: got %s want %s", status, got, want)
		}
	}
}

func TestAccessLoggerWritesStructuredEntry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	router := gin.New()
	router.Use(RequestID(), AccessLogger(logger))
	router.GET("/missing/:id", func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/missing/42", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("request id not propagated")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	if entry["level"] != "warning" || entry["route"] != "/missing/:id" || entry["status"] != float64(404) {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["request_id"] != "req-1" || entry["user_id"] != "u1" {
		t.Fatalf("missing correlation fields %v", entry)
	}
}

func TestServerHandlesCORSPreflight(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", HTTPPort: 0, CORSOrigins: []string{"https://app.example.com"}}}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := NewServer(cfg, logger, http.NotFoundHandler())

	cases := []struct {
		origin string
		want   string
	}{
		{origin: "https://app.example.com", want: "https://app.example.com"},
		{origin: "https://evil.example.com", want: ""},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodOptions, "/v1/me/ledger", nil)
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "authorization")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != c.want {
			t.Fatalf("origin %s: expected allow-origin %q, got %q", c.origin, c.want, got)
		}
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{Log: config.LogConfig{Level: "debug", Format: "text"}}
	logger, err := NewLogger(cfg)
	if err != nil || logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("unexpected logger level=%v err=%v", logger, err)
	}
	if _, err := NewLogger(&config.Config{Log: config.LogConfig{Level: "loud"}}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
