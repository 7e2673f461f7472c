package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestLogger creates a zerolog-based request logger middleware.
func RequestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&requestLoggerFormatter{logger})
}

// requestLoggerFormatter implements chi's LogFormatter interface.
type requestLoggerFormatter struct {
	logger zerolog.Logger
}

func (l *requestLoggerFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.New().String()
		r.Header.Set("X-Correlation-ID", correlationID)
	}

	return &requestLoggerEntry{
		logger:        l.logger,
		correlationID: correlationID,
		method:        r.Method,
		url:           r.URL.Path,
		remoteAddr:    r.RemoteAddr,
	}
}

// requestLoggerEntry implements chi's LogEntry interface.
type requestLoggerEntry struct {
	logger        zerolog.Logger
	correlationID string
	method        string
	url           string
	remoteAddr    string
}

func (l *requestLoggerEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	level := zerolog.InfoLevel
	if status >= 400 && status < 500 {
		level = zerolog.WarnLevel
	} else if status >= 500 {
		level = zerolog.ErrorLevel
	}

	l.logger.WithLevel(level).
		Str("correlation_id", l.correlationID).
		Str("method", l.method).
		Str("url", l.url).
		Str("remote_addr", l.remoteAddr).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("Request completed")
}

func (l *requestLoggerEntry) Panic(v interface{}, stack []byte) {
	l.logger.Error().
		Str("correlation_id", l.correlationID).
		Str("method", l.method).
		Str("url", l.url).
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("Request panic")
}
