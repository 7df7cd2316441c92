package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := s.clock.Since(startedAt).Milliseconds()

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed
	if err != nil {
		contextFields["error"] = err.Error()
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			contextFields["error_category"] = fmt.Sprint(richErr.Category)
			contextFields["error_text_code"] = richErr.TextCode
		}
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	copyTag(tags, contextFields, "provider")

	s.recordCounter(ctx, "credentials."+operation+".total", 1, tags)
	s.recordHistogram(ctx, "credentials."+operation+".duration_ms", float64(elapsed), tags)

	if err != nil {
		s.logError(ctx, operation+" failed", contextFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", contextFields)
}

// observeToken reports a single freshness check. Precondition failures and
// remote rejections are logged at different levels.
func (s *Service) observeToken(ctx context.Context, startedAt time.Time, outcome TokenOutcome) {
	if s == nil {
		return
	}
	elapsed := s.clock.Since(startedAt).Milliseconds()
	fields := map[string]any{
		"event_type":        "token",
		"account_id":        outcome.AccountID,
		"provider":          string(outcome.Provider),
		"state":             string(outcome.State),
		"refresh_attempted": outcome.RefreshAttempted,
		"duration_ms":       elapsed,
	}
	tags := map[string]string{
		"state": string(outcome.State),
	}
	copyTag(tags, fields, "provider")
	if outcome.Failure != nil {
		fields["failure_kind"] = string(outcome.Failure.Kind)
		fields["error"] = outcome.Failure.Error()
		tags["failure_kind"] = string(outcome.Failure.Kind)
	}
	if outcome.StoreErr != nil {
		fields["store_error"] = outcome.StoreErr.Error()
		tags["store_failure"] = "true"
	}

	s.recordCounter(ctx, MetricTokenTotal, 1, tags)
	if outcome.RefreshAttempted {
		s.recordHistogram(ctx, MetricRefreshDuration, float64(elapsed), tags)
	}

	switch {
	case outcome.StoreErr != nil:
		s.logError(ctx, "refreshed token could not be persisted", fields)
	case outcome.Failure != nil && outcome.Failure.Kind == FailureLocalPrecondition:
		s.logWarn(ctx, "token refresh not possible, reauthentication required", fields)
	case outcome.Failure != nil:
		s.logError(ctx, "token refresh rejected", fields)
	case outcome.State == TokenStateRefreshed:
		s.logInfo(ctx, "token refreshed", fields)
	default:
		s.logDebug(ctx, "token checked", fields)
	}
}

func (s *Service) logDebug(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "debug", message, fields)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "warn", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
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

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func copyTag(tags map[string]string, fields map[string]any, key string) {
	if value := strings.TrimSpace(fmt.Sprint(fields[key])); value != "" && value != "<nil>" {
		tags[key] = value
	}
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
