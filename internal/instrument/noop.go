package instrument

import "context"

// NoopInstrumenter discards all spans. Used when no request-scoped
// instrumenter is present, e.g. in tests that call services directly.
type NoopInstrumenter struct{}

func (n *NoopInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan discards all data.
type NoopSpan struct{}

func (n *NoopSpan) End()                             {}
func (n *NoopSpan) SetStatus(status string)          {}
func (n *NoopSpan) SetEntity(table string, id any)   {}
func (n *NoopSpan) TraceID() string                  { return "" }
