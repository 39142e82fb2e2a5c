package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestKey
)

// requestScope holds the identifiers attached to a request
type requestScope struct {
	requestID string
	tenantID  string
	userID    string
}

func scopeOf(ctx context.Context) requestScope {
	s, _ := ctx.Value(requestKey).(requestScope)
	return s
}

func withScope(ctx context.Context, fn func(*requestScope)) context.Context {
	s := scopeOf(ctx)
	fn(&s)
	return context.WithValue(ctx, requestKey, s)
}

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the request id and returns a logger carrying it
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = withScope(ctx, func(s *requestScope) { s.requestID = requestID })
	l := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, l), l
}

// WithTenantID records the tenant and returns a logger carrying it
func WithTenantID(ctx context.Context, logger *zap.Logger, tenantID string) (context.Context, *zap.Logger) {
	ctx = withScope(ctx, func(s *requestScope) { s.tenantID = tenantID })
	l := logger.With(zap.String("tenant_id", tenantID))
	return WithContext(ctx, l), l
}

// WithUserID records the acting user and returns a logger carrying it
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	ctx = withScope(ctx, func(s *requestScope) { s.userID = userID })
	l := logger.With(zap.String("user_id", userID))
	return WithContext(ctx, l), l
}

// WithActor records tenant and user together, as the auth middleware does
func WithActor(ctx context.Context, logger *zap.Logger, tenantID, userID string) (context.Context, *zap.Logger) {
	ctx = withScope(ctx, func(s *requestScope) {
		s.tenantID = tenantID
		s.userID = userID
	})
	l := logger.With(zap.String("tenant_id", tenantID), zap.String("user_id", userID))
	return WithContext(ctx, l), l
}

func GetRequestID(ctx context.Context) string { return scopeOf(ctx).requestID }
func GetTenantID(ctx context.Context) string  { return scopeOf(ctx).tenantID }
func GetUserID(ctx context.Context) string    { return scopeOf(ctx).userID }

// ContextLogger logs with the trace and request identifiers found in its
// context. The carried logger may already hold some of them; identifiers are
// only added for a logger that came from elsewhere (see WithLogger).
type ContextLogger struct {
	ctx      context.Context
	logger   *zap.Logger
	enriched bool
}

// L returns the logger carried by ctx. Usage:
//
//	logger.L(ctx).Info("Stock received", zap.String("lot_id", id))
func L(ctx context.Context) *ContextLogger {
	_, carried := ctx.Value(loggerKey).(*zap.Logger)
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx), enriched: carried}
}

// WithLogger logs through logger with the identifiers from ctx
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) fields() []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(cl.ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	if cl.enriched {
		return fields
	}
	s := scopeOf(cl.ctx)
	if s.requestID != "" {
		fields = append(fields, zap.String("request_id", s.requestID))
	}
	if s.tenantID != "" {
		fields = append(fields, zap.String("tenant_id", s.tenantID))
	}
	if s.userID != "" {
		fields = append(fields, zap.String("user_id", s.userID))
	}
	return fields
}

// Zap returns the underlying logger with context identifiers attached
func (cl *ContextLogger) Zap() *zap.Logger {
	if f := cl.fields(); len(f) > 0 {
		return cl.logger.With(f...)
	}
	return cl.logger
}

// With returns a child ContextLogger with extra fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...), enriched: cl.enriched}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.Zap().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.Zap().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.Zap().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.Zap().Error(msg, fields...) }
