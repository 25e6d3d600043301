package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"course-push-backend/internal/metrics"
	"course-push-backend/internal/model"
	"course-push-backend/internal/store"
)

// ErrInvalidTarget is returned when a target names neither or both selectors.
var ErrInvalidTarget = errors.New("target must name exactly one of workspace or user")

// topics are limited to 32 characters of the URL-safe base64 alphabet.
var topicPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Target selects the subscriptions a notification is fanned out to.
type Target struct {
	WorkspaceID string `json:"workspaceId,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// Validate checks that exactly one selector is set.
func (t Target) Validate() error {
	if (t.WorkspaceID == "") == (t.UserID == "") {
		return ErrInvalidTarget
	}
	return nil
}

// Result aggregates the outcome of one dispatch batch.
type Result struct {
	Success    bool `json:"success"`
	Total      int  `json:"total"`
	Successful int  `json:"successful"`
	Failed     int  `json:"failed"`
}

type outcome int

const (
	delivered outcome = iota
	gone
	failed
)

// Dispatcher delivers one payload to every active subscription of a target.
type Dispatcher struct {
	store             store.Store
	webpush           *webpush.Options
	sender            NotificationSender
	concurrency       int
	attemptTimeout    time.Duration
	refreshOnDelivery bool
	log               *zap.Logger
	now               func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSender replaces the web push transport.
func WithSender(s NotificationSender) DispatcherOption {
	return func(d *Dispatcher) { d.sender = s }
}

// WithConcurrency caps the number of deliveries in flight per batch.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithAttemptTimeout bounds each delivery attempt.
func WithAttemptTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

// WithRefreshOnDelivery controls whether a successful delivery refreshes last_used.
func WithRefreshOnDelivery(refresh bool) DispatcherOption {
	return func(d *Dispatcher) { d.refreshOnDelivery = refresh }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher creates a dispatcher. The webpush options carry the signing
// credential and are shared read-only by every attempt.
func NewDispatcher(s store.Store, webpushOptions *webpush.Options, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:             s,
		webpush:           webpushOptions,
		sender:            &WebPushSender{},
		concurrency:       10,
		attemptTimeout:    10 * time.Second,
		refreshOnDelivery: true,
		log:               zap.NewNop(),
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch fans the payload out to the target's active subscriptions and waits
// for every attempt to settle. Per-subscription failures are counted, never
// returned; only an invalid target or a failed target query is an error.
// Caller cancellation does not abort a batch that has started.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, payload model.NotificationPayload) (*Result, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	subs, err := d.selectTargets(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		d.log.Debug("no active subscriptions for target",
			zap.String("workspace_id", target.WorkspaceID), zap.String("user_id", target.UserID))
		return &Result{}, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	opts := d.batchOptions(payload.Tag)

	metrics.DispatchBatches.Inc()
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	batchCtx := context.WithoutCancel(ctx)
	res := d.run(batchCtx, subs, body, opts)

	d.log.Info("dispatch finished",
		zap.String("workspace_id", target.WorkspaceID),
		zap.String("user_id", target.UserID),
		zap.Int("total", res.Total),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func (d *Dispatcher) selectTargets(ctx context.Context, target Target) ([]model.PushSubscription, error) {
	var (
		rows []model.PushSubscription
		err  error
	)
	if target.WorkspaceID != "" {
		rows, err = d.store.ListByWorkspace(ctx, target.WorkspaceID)
	} else {
		rows, err = d.store.ListByUser(ctx, target.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("select dispatch targets: %w", err)
	}

	active := rows[:0]
	for _, sub := range rows {
		if sub.IsActive {
			active = append(active, sub)
		}
	}
	return active, nil
}

// batchOptions copies the shared options and sets the topic for this payload.
func (d *Dispatcher) batchOptions(tag string) *webpush.Options {
	var opts webpush.Options
	if d.webpush != nil {
		opts = *d.webpush
	}
	if topicPattern.MatchString(tag) {
		opts.Topic = tag
	} else if tag != "" {
		d.log.Debug("tag is not a valid push topic, sending without one", zap.String("tag", tag))
	}
	return &opts
}

// run feeds the subscriptions to a bounded pool of workers and collects one
// outcome per subscription.
func (d *Dispatcher) run(ctx context.Context, subs []model.PushSubscription, body []byte, opts *webpush.Options) *Result {
	workers := d.concurrency
	if workers > len(subs) {
		workers = len(subs)
	}

	jobs := make(chan model.PushSubscription)
	results := make(chan outcome, len(subs))

	for i := 0; i < workers; i++ {
		go func() {
			for sub := range jobs {
				results <- d.deliver(ctx, sub, body, opts)
			}
		}()
	}

	for _, sub := range subs {
		jobs <- sub
	}
	close(jobs)

	res := &Result{Total: len(subs)}
	for range subs {
		if <-results == delivered {
			res.Successful++
		} else {
			res.Failed++
		}
	}
	res.Success = res.Successful > 0
	return res
}

// deliver sends a single web push notification and applies its registry side effects.
func (d *Dispatcher) deliver(ctx context.Context, sub model.PushSubscription, body []byte, opts *webpush.Options) outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(attemptCtx, body, wpSub, opts)
	if err != nil {
		d.log.Warn("push delivery failed",
			zap.String("subscription_id", sub.ID), zap.String("endpoint", sub.Endpoint), zap.Error(err))
		metrics.Deliveries.WithLabelValues(metrics.OutcomeFailed).Inc()
		return failed
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.Deliveries.WithLabelValues(metrics.OutcomeDelivered).Inc()
		if d.refreshOnDelivery {
			if err := d.store.Touch(ctx, sub.ID, d.now()); err != nil {
				d.log.Warn("failed to refresh last_used", zap.String("subscription_id", sub.ID), zap.Error(err))
			}
		}
		return delivered

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		d.log.Info("subscription is gone, deleting",
			zap.String("subscription_id", sub.ID), zap.Int("status", resp.StatusCode))
		metrics.Deliveries.WithLabelValues(metrics.OutcomeGone).Inc()
		if err := d.store.RemoveByID(ctx, sub.ID); err != nil {
			d.log.Error("failed to delete gone subscription", zap.String("subscription_id", sub.ID), zap.Error(err))
		} else {
			metrics.PrunedSubscriptions.Inc()
		}
		return gone

	default:
		d.log.Warn("push service rejected delivery",
			zap.String("subscription_id", sub.ID), zap.Int("status", resp.StatusCode))
		metrics.Deliveries.WithLabelValues(metrics.OutcomeFailed).Inc()
		return failed
	}
}
