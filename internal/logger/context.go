package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context, threaded through a
// Resource Service call or Discovery Responder session so every log line
// it emits carries the same correlation fields without each call site
// having to repeat them.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Op        string    // Resource Service operation name: add_host, namespace_add, etc.
	NQN       string    // Subsystem NQN the operation concerns
	ClientIP  string    // Discovery client IP address (without port)
	Peer      string    // Gateway peer handling the request
	Group     string    // Gateway group name
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Op:        lc.Op,
		NQN:       lc.NQN,
		ClientIP:  lc.ClientIP,
		Peer:      lc.Peer,
		Group:     lc.Group,
		StartTime: lc.StartTime,
	}
}

// WithOp returns a copy with the Resource Service operation name set
func (lc *LogContext) WithOp(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Op = op
	}
	return clone
}

// WithNQN returns a copy with the subsystem NQN set
func (lc *LogContext) WithNQN(nqn string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.NQN = nqn
	}
	return clone
}

// WithPeer returns a copy with the gateway peer and group set
func (lc *LogContext) WithPeer(peer, group string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Peer = peer
		clone.Group = group
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
