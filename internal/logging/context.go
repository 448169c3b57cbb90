package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPackageID is the standardized structured logging key for package record identifiers.
	FieldPackageID = "package_id"
	// FieldTransition is the standardized structured logging key for pipeline transition names.
	FieldTransition = "transition"
	// FieldState is the standardized structured logging key for package states.
	FieldState = "state"
	// FieldEventType is the standardized structured logging key for lifecycle event names.
	FieldEventType = "event_type"
	// FieldErrorCode is the standardized structured logging key for publication error codes.
	FieldErrorCode = "error_code"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey string

const (
	packageIDKey  contextKey = "package_id"
	transitionKey contextKey = "transition"
	requestIDKey  contextKey = "request_id"
)

// WithPackageID annotates context with the package record identifier.
func WithPackageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, packageIDKey, id)
}

// PackageIDFromContext extracts the package identifier if present.
func PackageIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(packageIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTransition annotates context with the pipeline transition name.
func WithTransition(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, transitionKey, name)
}

// TransitionFromContext returns the transition name if present.
func TransitionFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transitionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := PackageIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPackageID, id))
	}
	if name, ok := TransitionFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTransition, name))
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
