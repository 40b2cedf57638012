package core

import (
	"context"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Telemetry bundles the logger and metrics recorder a component reports
// through. The zero value is usable and discards everything.
type Telemetry struct {
	Logger  Logger
	Metrics MetricsRecorder
}

func NewTelemetry(logger Logger, metrics MetricsRecorder) Telemetry {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return Telemetry{Logger: glog.Ensure(logger), Metrics: metrics}
}

// Observe records a counter and a duration histogram for operation and logs
// the outcome.
func (t Telemetry) Observe(
	ctx context.Context,
	metric string,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = OutcomeLabel(err)
	}
	elapsed := time.Since(startedAt)

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["outcome"] = outcome
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"outcome":   outcome,
	}
	t.IncCounter(ctx, metric, 1, tags)
	if metric == MetricAPIRequests {
		t.ObserveHistogram(ctx, MetricAPIDuration, float64(elapsed.Milliseconds()), tags)
	}

	if err != nil {
		t.Log(ctx, "error", operation+" failed", contextFields)
		return
	}
	t.Log(ctx, "debug", operation+" succeeded", contextFields)
}

// OutcomeLabel maps an error onto a low cardinality label.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsAuthorization(err):
		return "unauthorized"
	case IsAlreadyExists(err):
		return "conflict"
	}
	mapped := MapError(err)
	if mapped.TextCode == ErrorTransportFailure {
		return "transport"
	}
	return "failure"
}

func (t Telemetry) Log(ctx context.Context, level string, message string, fields map[string]any) {
	if t.Logger == nil {
		return
	}
	logger := t.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields = RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (t Telemetry) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if t.Metrics == nil {
		return
	}
	t.Metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (t Telemetry) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if t.Metrics == nil {
		return
	}
	t.Metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
