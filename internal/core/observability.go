package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Logger is the minimal structured logging surface used by the service.
// Key-value pairs alternate keys and values, slog style.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewSlogLogger adapts an *slog.Logger to the service Logger interface.
// A nil argument uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s slogLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s slogLogger) Warn(msg string, kv ...any)  { s.l.Warn(msg, kv...) }
func (s slogLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// AuditSink receives one entry per committed mutation.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures who did what to which step sequence.
type AuditEntry struct {
	Operation  string    `json:"operation"`
	ProductID  string    `json:"product_id,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MemoryAuditSink retains audit entries in memory for inspection.
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditSink returns an empty in-memory sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

// Record implements AuditSink.
func (s *MemoryAuditSink) Record(_ context.Context, entry AuditEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// Entries returns a copy of all recorded entries.
func (s *MemoryAuditSink) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ServiceOption customises a Service at construction time.
type ServiceOption func(*Service)

// WithLogger installs a structured logger. Nil restores the noop logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l == nil {
			l = noopLogger{}
		}
		s.logger = l
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(r MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = r }
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// WithAuditSink installs an audit sink.
func WithAuditSink(a AuditSink) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// WithNowFunc overrides the clock used for audit timestamps.
func WithNowFunc(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}
