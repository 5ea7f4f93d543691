package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace ID stored by WithTraceContext.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext derives a logger with a fresh trace ID from base and
// stores both in the returned context.
func WithTraceContext(ctx context.Context, base *Logger) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := base.WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// OrderContext creates a logger context for order operations
func OrderContext(ctx context.Context, symbol, side string, qty int) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"qty":    qty,
	}).WithComponent("execution")
}

// SignalContext creates a logger context for trading signals
func SignalContext(ctx context.Context, symbol, signal string, price float64) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"symbol": symbol,
		"signal": signal,
		"price":  price,
	})
}

// PositionContext creates a logger context for position operations
func PositionContext(ctx context.Context, symbol, side string, entryPrice float64, qty int) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"entry_price": entryPrice,
		"qty":         qty,
	})
}

// AlpacaAPIContext creates a logger context for Alpaca API calls
func AlpacaAPIContext(endpoint string, params map[string]string) *Logger {
	l := Default().WithField("endpoint", endpoint).WithComponent("alpaca")
	for k, v := range params {
		l = l.WithField(k, v)
	}
	return l
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// NotificationContext creates a logger context for notifications
func NotificationContext(provider string) *Logger {
	return Default().WithField("provider", provider).WithComponent("notification")
}
