package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/jonboulle/clockwork"
)

const (
	JobIDRefresh      = "credentials.refresh"
	ScriptPathRefresh = "credentials.refresh"

	ParamAccountID = "account_id"
	ParamAttempt   = "attempt"

	DedupPolicyDrop = "drop"

	defaultIdempotencyWindow = time.Minute
	defaultPollInterval      = time.Second
)

// RetryPolicy bounds how often a rejected refresh is put back on the queue.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        15 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// DelayFor doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. A
// retry at or past MaxAttempts becomes terminal.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// RefreshJob is the payload of a background refresh.
type RefreshJob struct {
	AccountID      string
	Attempt        int
	IdempotencyKey string
}

func ToExecutionMessage(in RefreshJob) *job.ExecutionMessage {
	params := map[string]any{ParamAccountID: strings.TrimSpace(in.AccountID)}
	if in.Attempt > 0 {
		params[ParamAttempt] = in.Attempt
	}
	return &job.ExecutionMessage{
		JobID:          JobIDRefresh,
		ScriptPath:     ScriptPathRefresh,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(DedupPolicyDrop),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) (RefreshJob, error) {
	if msg == nil {
		return RefreshJob{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDRefresh {
		return RefreshJob{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	accountID := strings.TrimSpace(readString(msg.Parameters[ParamAccountID]))
	if accountID == "" {
		return RefreshJob{}, fmt.Errorf("gojob: %s parameter is required", ParamAccountID)
	}
	return RefreshJob{
		AccountID:      accountID,
		Attempt:        readInt(msg.Parameters[ParamAttempt]),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
	}, nil
}

type EnqueuerOption func(*RefreshEnqueuer)

func WithEnqueueClock(clock clockwork.Clock) EnqueuerOption {
	return func(e *RefreshEnqueuer) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIdempotencyWindow sets how long repeated enqueues for one account
// collapse into the same job.
func WithIdempotencyWindow(window time.Duration) EnqueuerOption {
	return func(e *RefreshEnqueuer) {
		if window > 0 {
			e.window = window
		}
	}
}

type RefreshEnqueuer struct {
	enqueuer queue.Enqueuer
	clock    clockwork.Clock
	window   time.Duration
}

func NewRefreshEnqueuer(enqueuer queue.Enqueuer, opts ...EnqueuerOption) *RefreshEnqueuer {
	e := &RefreshEnqueuer{
		enqueuer: enqueuer,
		clock:    clockwork.NewRealClock(),
		window:   defaultIdempotencyWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *RefreshEnqueuer) EnqueueRefresh(ctx context.Context, accountID string) (queue.EnqueueReceipt, error) {
	if e == nil || e.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: account id is required")
	}
	return e.enqueuer.Enqueue(ctx, ToExecutionMessage(RefreshJob{
		AccountID:      accountID,
		IdempotencyKey: e.IdempotencyKey(accountID),
	}))
}

// IdempotencyKey buckets the current time by the configured window.
func (e *RefreshEnqueuer) IdempotencyKey(accountID string) string {
	bucket := e.clock.Now().UTC().Truncate(e.window).Unix()
	return JobIDRefresh + ":" + strings.TrimSpace(accountID) + ":" + strconv.FormatInt(bucket, 10)
}

type Refresher interface {
	EnsureFresh(ctx context.Context, accountID string) (core.TokenOutcome, error)
}

type WorkerOption func(*RefreshWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *RefreshWorker) {
		w.policy = policy
	}
}

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *RefreshWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithWorkerClock(clock clockwork.Clock) WorkerOption {
	return func(w *RefreshWorker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *RefreshWorker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// RefreshWorker consumes refresh jobs. The orchestrator never retries, so
// retries of remote rejections happen here through queue redelivery.
type RefreshWorker struct {
	refresher    Refresher
	policy       RetryPolicy
	logger       core.Logger
	clock        clockwork.Clock
	pollInterval time.Duration
}

func NewRefreshWorker(refresher Refresher, opts ...WorkerOption) *RefreshWorker {
	w := &RefreshWorker{
		refresher:    refresher,
		policy:       DefaultRetryPolicy(),
		logger:       glog.Nop(),
		clock:        clockwork.NewRealClock(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Handle processes one delivery at the attempt reported by deliveryAttempt.
func (w *RefreshWorker) Handle(ctx context.Context, delivery queue.Delivery) error {
	return w.HandleAttempt(ctx, delivery, deliveryAttempt(delivery))
}

type deliveryAttemptsReader interface {
	Attempts() int
}

// deliveryAttempt prefers the broker's delivery count and falls back to the
// attempt parameter that nack writes before a retry.
func deliveryAttempt(delivery queue.Delivery) int {
	if delivery == nil {
		return 1
	}
	if reader, ok := delivery.(deliveryAttemptsReader); ok {
		if attempts := reader.Attempts(); attempts > 0 {
			return attempts
		}
	}
	if msg := delivery.Message(); msg != nil {
		if attempt := readInt(msg.Parameters[ParamAttempt]); attempt > 0 {
			return attempt
		}
	}
	return 1
}

// HandleAttempt acks deliveries that need no retry: fresh, refreshed,
// missing credentials and local precondition failures. Remote rejections and
// infrastructure errors are nacked under the retry policy.
func (w *RefreshWorker) HandleAttempt(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if w == nil || w.refresher == nil {
		return fmt.Errorf("gojob: refresh worker is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		w.logger.WithContext(ctx).Warn("dropping malformed refresh job", "error", err.Error())
		return delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: err.Error()})
	}
	logger := w.logger.WithContext(ctx)

	outcome, err := w.refresher.EnsureFresh(ctx, msg.AccountID)
	if err != nil {
		logger.Error("background refresh failed", "account_id", msg.AccountID, "attempt", attempt, "error", err.Error())
		return w.nack(ctx, delivery, attempt, err.Error())
	}

	switch outcome.State {
	case core.TokenStateFresh, core.TokenStateMissing:
		logger.Debug("background refresh not needed", "account_id", msg.AccountID, "state", string(outcome.State))
		return delivery.Ack(ctx)
	case core.TokenStateRefreshed:
		if outcome.StoreErr != nil {
			logger.Warn("refreshed token was not persisted", "account_id", msg.AccountID, "error", outcome.StoreErr.Error())
		}
		logger.Info("background refresh succeeded", "account_id", msg.AccountID, "provider", string(outcome.Provider))
		return delivery.Ack(ctx)
	case core.TokenStateRefreshFailed:
		if outcome.Failure != nil && outcome.Failure.IsRetryable() {
			logger.Warn("background refresh rejected",
				"account_id", msg.AccountID,
				"provider", string(outcome.Provider),
				"attempt", attempt,
				"error", outcome.Failure.Error(),
			)
			return w.nack(ctx, delivery, attempt, outcome.Failure.Error())
		}
		reason := "refresh precondition failed"
		if outcome.Failure != nil {
			reason = outcome.Failure.Error()
		}
		logger.Info("background refresh needs relink", "account_id", msg.AccountID, "reason", reason)
		return delivery.Ack(ctx)
	default:
		return w.nack(ctx, delivery, attempt, fmt.Sprintf("unexpected token state %q", outcome.State))
	}
}

// RunOnce dequeues and handles a single delivery.
func (w *RefreshWorker) RunOnce(ctx context.Context, dequeuer queue.Dequeuer) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	return w.Handle(ctx, delivery)
}

// Run handles deliveries until ctx is done, pausing after dequeue errors.
func (w *RefreshWorker) Run(ctx context.Context, dequeuer queue.Dequeuer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.RunOnce(ctx, dequeuer); err != nil {
			w.logger.WithContext(ctx).Warn("refresh worker poll failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.pollInterval):
			}
		}
	}
}

func (w *RefreshWorker) nack(ctx context.Context, delivery queue.Delivery, attempt int, reason string) error {
	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       w.policy.DelayFor(attempt),
		Reason:      reason,
	}, attempt)
	if opts.Disposition == queue.NackDispositionRetry {
		if msg := delivery.Message(); msg != nil {
			if msg.Parameters == nil {
				msg.Parameters = map[string]any{}
			}
			msg.Parameters[ParamAttempt] = attempt + 1
		}
	} else {
		w.logger.WithContext(ctx).Warn("refresh job exhausted retries",
			"attempt", attempt,
			"disposition", string(opts.Disposition),
			"reason", opts.Reason,
		)
	}
	return delivery.Nack(ctx, opts)
}

// LoggingHook reports go-job worker events for refresh jobs.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "refresh job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "refresh job succeeded", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "refresh job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "refresh job retry scheduled", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt, "duration", event.Duration}
	if msg != nil {
		args = append(args, "job_id", msg.JobID, ParamAccountID, readString(msg.Parameters[ParamAccountID]))
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay)
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	logger := h.logger.WithContext(ctx)
	switch level {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func readInt(value any) int {
	switch typed := value.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ Refresher   = (*core.Service)(nil)
)
