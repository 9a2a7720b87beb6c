package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
)

const requestIDHeader = "X-Request-Id"

// RequestID propagates the caller's request id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLogger writes one entry per request through logrus.
func AccessLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"method":   c.Request.Method,
			"route":    c.FullPath(),
			"status":   status,
			"duration": time.Since(start).String(),
		}
		appendStringField(fields, "path", c.Request.URL.Path)
		appendStringField(fields, "client_ip", c.ClientIP())
		appendStringField(fields, "user_agent", c.Request.UserAgent())
		appendStringField(fields, "request_id", c.GetString("request_id"))
		appendStringField(fields, "user_id", c.GetString("user_id"))
		if size := c.Writer.Size(); size >= 0 {
			fields["response_bytes"] = size
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch level := determineLogLevel(status); level {
		case logrus.InfoLevel:
			entry.Info("request completed")
		case logrus.WarnLevel:
			entry.Warn("request completed")
		default:
			entry.Error("request completed")
		}
	}
}

func determineLogLevel(status int) logrus.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case status >= http.StatusBadRequest:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

func appendStringField(fields logrus.Fields, key, value string) {
	if value == "" {
		return
	}
	fields[key] = value
}

// NewLogger builds a configured logrus logger from application config.
func NewLogger(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
