package instrument

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Instrumenter starts spans around core operations.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
}

// Span is one timed operation. End must be called exactly once.
type Span interface {
	End()
	SetStatus(status string)
	SetEntity(table string, id any)
	TraceID() string
}

type ctxKey struct{}

// WithInstrumenter attaches an instrumenter to ctx.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, ctxKey{}, inst)
}

// GetInstrumenter returns the instrumenter on ctx, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if inst, ok := ctx.Value(ctxKey{}).(Instrumenter); ok && inst != nil {
		return inst
	}
	return &NoopInstrumenter{}
}

// LogInstrumenter emits a debug log line and a duration sample per span,
// all tagged with the request's trace id.
type LogInstrumenter struct {
	traceID string
	logger  *zap.Logger
}

func NewLogInstrumenter(traceID string, logger *zap.Logger) *LogInstrumenter {
	return &LogInstrumenter{traceID: traceID, logger: logger}
}

func (i *LogInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, &logSpan{
		inst:      i,
		component: component,
		action:    action,
		status:    "ok",
		start:     time.Now(),
	}
}

type logSpan struct {
	inst      *LogInstrumenter
	component string
	action    string
	status    string
	table     string
	id        any
	start     time.Time
}

func (s *logSpan) SetStatus(status string) { s.status = status }

func (s *logSpan) SetEntity(table string, id any) {
	s.table = table
	s.id = id
}

func (s *logSpan) TraceID() string { return s.inst.traceID }

func (s *logSpan) End() {
	elapsed := time.Since(s.start)
	OperationDuration.WithLabelValues(s.component, s.action, s.status).Observe(elapsed.Seconds())
	s.inst.logger.Debug("span",
		zap.String("trace_id", s.inst.traceID),
		zap.String("component", s.component),
		zap.String("action", s.action),
		zap.String("status", s.status),
		zap.String("table", s.table),
		zap.Any("record_id", s.id),
		zap.Duration("duration", elapsed),
	)
}
