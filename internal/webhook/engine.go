package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-dispatch/internal/logging"
	"github.com/telhawk-systems/telhawk-dispatch/internal/metrics"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/store"
)

var ErrEndpointNotFound = errors.New("endpoint not found")

// EngineConfig tunes the delivery engine's tick cadence and queue bounds.
type EngineConfig struct {
	DrainInterval     time.Duration `mapstructure:"drain_interval"`
	RetryScanInterval time.Duration `mapstructure:"retry_scan_interval"`
	DrainBatchSize    int           `mapstructure:"drain_batch_size"`
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// DefaultEngineConfig returns the stock cadence: both global ticks fire
// every second.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DrainInterval:     time.Second,
		RetryScanInterval: time.Second,
		DrainBatchSize:    50,
		QueueCapacity:     10000,
		UserAgent:         "TelHawk-Dispatch/1.0",
	}
}

// Engine turns queued events into signed delivery attempts against the
// registered endpoints, records attempt history, and schedules retries with
// exponential backoff. Delivery I/O runs in detached goroutines; state
// transitions are applied through the store after each attempt completes,
// so no lock is held across network I/O.
type Engine struct {
	cfg       EngineConfig
	registry  *Registry
	store     store.Store
	transport Transport
	logger    *logging.Logger

	mu    sync.Mutex
	queue []*models.QueuedEvent

	inflight sync.WaitGroup
	now      func() time.Time
	stop     chan struct{}
	stopped  chan struct{}
}

// NewEngine creates a delivery engine. Non-positive intervals and bounds in
// cfg fall back to the defaults; the tickers cannot run them.
func NewEngine(cfg EngineConfig, registry *Registry, st store.Store, transport Transport, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	def := DefaultEngineConfig()
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.RetryScanInterval <= 0 {
		cfg.RetryScanInterval = def.RetryScanInterval
	}
	if cfg.DrainBatchSize <= 0 {
		cfg.DrainBatchSize = def.DrainBatchSize
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		transport: transport,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// TriggerEventRequest carries an inbound event without id or timestamp;
// the engine assigns both.
type TriggerEventRequest struct {
	Type     string                 `json:"type"`
	Data     map[string]interface{} `json:"data"`
	Source   string                 `json:"source,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TriggerEvent assigns an id and timestamp and appends the event to the
// delivery queue. Delivery failures are never surfaced to the caller; they
// are absorbed into the delivery state machine and observable through
// status queries and stats.
func (e *Engine) TriggerEvent(ctx context.Context, req TriggerEventRequest) (string, error) {
	if req.Type == "" {
		return "", fmt.Errorf("event type is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate event id: %w", err)
	}

	ev := &models.QueuedEvent{
		ID:        id.String(),
		Type:      req.Type,
		Timestamp: e.now(),
		Data:      req.Data,
		Source:    req.Source,
		Metadata:  req.Metadata,
	}

	e.mu.Lock()
	if len(e.queue) >= e.cfg.QueueCapacity {
		// The producer is never blocked; the oldest event is shed instead.
		e.queue = e.queue[1:]
		e.logger.WarnContext(ctx, "webhook queue full, dropping oldest event")
	}
	e.queue = append(e.queue, ev)
	depth := len(e.queue)
	e.mu.Unlock()

	metrics.WebhookQueueDepth.Set(float64(depth))
	return ev.ID, nil
}

// Start runs the queue-drain and retry-scan ticks until Stop or context
// cancellation. Call in a goroutine.
func (e *Engine) Start(ctx context.Context) {
	defer close(e.stopped)

	e.logger.InfoContext(ctx, "delivery engine started",
		"drain_interval", e.cfg.DrainInterval.String(),
		"retry_scan_interval", e.cfg.RetryScanInterval.String())

	drain := time.NewTicker(e.cfg.DrainInterval)
	defer drain.Stop()
	retry := time.NewTicker(e.cfg.RetryScanInterval)
	defer retry.Stop()

	for {
		select {
		case <-drain.C:
			e.drainOnce(ctx)
		case <-retry.C:
			e.scanRetriesOnce(ctx)
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the ticks and waits for in-flight delivery attempts.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.stopped
	e.inflight.Wait()
}

// drainOnce pops up to the batch size from the queue and fans each event
// out to every active endpoint subscribed to its type.
func (e *Engine) drainOnce(ctx context.Context) {
	e.mu.Lock()
	n := len(e.queue)
	if n > e.cfg.DrainBatchSize {
		n = e.cfg.DrainBatchSize
	}
	batch := e.queue[:n]
	e.queue = e.queue[n:]
	depth := len(e.queue)
	e.mu.Unlock()

	metrics.WebhookQueueDepth.Set(float64(depth))

	for _, ev := range batch {
		endpoints, err := e.registry.activeFor(ctx, ev.Type)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to resolve endpoints", "event_id", ev.ID, "error", err)
			continue
		}

		for _, ep := range endpoints {
			d, err := e.createDelivery(ctx, ev, ep)
			if err != nil {
				// One bad target must not abort fan-out to the others.
				e.logger.ErrorContext(ctx, "failed to create delivery",
					"event_id", ev.ID, "endpoint_id", ep.ID, "error", err)
				continue
			}

			e.dispatch(d, ep)
		}
	}
}

// scanRetriesOnce wakes every retrying delivery whose backoff has elapsed
// and re-dispatches it. Attempt N+1 is only ever dispatched after attempt
// N's outcome has been recorded, so retries for one delivery are strictly
// sequential.
func (e *Engine) scanRetriesOnce(ctx context.Context) {
	due, err := e.store.DueRetries(ctx, e.now())
	if err != nil {
		e.logger.ErrorContext(ctx, "retry scan failed", "error", err)
		return
	}

	for _, d := range due {
		ep, err := e.registry.GetEndpoint(ctx, d.EndpointID)
		if err != nil || ep == nil {
			continue
		}
		if ep.Status == models.EndpointDisabled {
			// Paused, not abandoned: the retry resumes if re-enabled.
			continue
		}

		d.Status = models.DeliveryPending
		d.NextRetryAt = nil
		if err := e.store.Update(ctx, d); err != nil {
			e.logger.ErrorContext(ctx, "failed to mark delivery pending", "delivery_id", d.ID, "error", err)
			continue
		}

		e.dispatch(d, ep)
	}
}

// dispatch runs one delivery attempt as a detached task.
func (e *Engine) dispatch(d *models.Delivery, ep *models.Endpoint) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.attempt(context.Background(), d, ep)
	}()
}

// attempt performs one signed delivery try and applies the state machine
// transition from its outcome.
func (e *Engine) attempt(ctx context.Context, d *models.Delivery, ep *models.Endpoint) {
	req, err := e.buildRequest(d, ep)
	if err != nil {
		e.recordOutcome(ctx, d, ep, models.Attempt{
			AttemptNumber: len(d.Attempts) + 1,
			Timestamp:     e.now(),
			ErrorMessage:  fmt.Sprintf("build request: %v", err),
		})
		return
	}

	attempt := models.Attempt{
		AttemptNumber:  len(d.Attempts) + 1,
		Timestamp:      e.now(),
		RequestHeaders: req.Headers,
		RequestBody:    string(req.Body),
	}

	res, err := e.transport.Deliver(ctx, req)
	if err != nil {
		attempt.ErrorMessage = err.Error()
	} else {
		attempt.HTTPStatus = res.StatusCode
		attempt.ResponseTimeMs = res.Duration.Milliseconds()
		attempt.ResponseHeaders = res.Headers
		attempt.ResponseBody = string(res.Body)
		metrics.DeliveryDuration.Observe(res.Duration.Seconds())
		if !res.Success() {
			attempt.ErrorMessage = fmt.Sprintf("endpoint returned status %d", res.StatusCode)
		}
	}

	e.recordOutcome(ctx, d, ep, attempt)
}

// recordOutcome appends the attempt and advances the delivery state
// machine: delivered on success, retrying while the retry budget lasts,
// failed once it is exhausted.
func (e *Engine) recordOutcome(ctx context.Context, d *models.Delivery, ep *models.Endpoint, attempt models.Attempt) {
	d.Attempts = append(d.Attempts, attempt)

	success := attempt.ErrorMessage == "" && attempt.HTTPStatus >= 200 && attempt.HTTPStatus < 300

	if success {
		now := e.now()
		d.Status = models.DeliveryDelivered
		d.CompletedAt = &now
		d.NextRetryAt = nil
		e.registry.recordSuccess(ctx, ep.ID)
		metrics.DeliveriesTotal.WithLabelValues(string(models.DeliveryDelivered)).Inc()
	} else {
		exhausted := len(d.Attempts) >= ep.RetryPolicy.MaxRetries
		e.registry.recordFailure(ctx, ep.ID, exhausted)

		if exhausted {
			now := e.now()
			d.Status = models.DeliveryFailed
			d.CompletedAt = &now
			d.NextRetryAt = nil
			metrics.DeliveriesTotal.WithLabelValues(string(models.DeliveryFailed)).Inc()
			e.logger.WarnContext(ctx, "delivery failed permanently",
				"delivery_id", d.ID, "endpoint_id", ep.ID, "attempts", len(d.Attempts))
		} else {
			next := e.now().Add(ep.RetryPolicy.Delay(len(d.Attempts)))
			d.Status = models.DeliveryRetrying
			d.NextRetryAt = &next
			metrics.RetriesScheduled.Inc()
		}
	}

	if err := e.store.Update(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "failed to record delivery outcome", "delivery_id", d.ID, "error", err)
	}
}

// createDelivery opens a pending delivery record for one (event, endpoint)
// pair. The event is embedded so retries never depend on the queue.
func (e *Engine) createDelivery(ctx context.Context, ev *models.QueuedEvent, ep *models.Endpoint) (*models.Delivery, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	d := &models.Delivery{
		ID:         id.String(),
		EndpointID: ep.ID,
		EventID:    ev.ID,
		URL:        ep.URL,
		Method:     http.MethodPost,
		Status:     models.DeliveryPending,
		CreatedAt:  e.now(),
		Event:      ev,
	}

	if err := e.store.Create(ctx, d); err != nil {
		return nil, err
	}
	metrics.DeliveriesTotal.WithLabelValues(string(models.DeliveryPending)).Inc()
	return d, nil
}

// buildRequest constructs the signed wire payload:
// {event, webhook: {id, name}, timestamp} with the signature and identity
// headers the receiver uses for verification.
func (e *Engine) buildRequest(d *models.Delivery, ep *models.Endpoint) (*Request, error) {
	payload := map[string]interface{}{
		"event": d.Event,
		"webhook": map[string]string{
			"id":   ep.ID,
			"name": ep.Name,
		},
		"timestamp": e.now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Request{
		URL:    d.URL,
		Method: d.Method,
		Headers: map[string]string{
			"Content-Type":         "application/json",
			"X-Webhook-Signature":  Sign(ep.Secret, body),
			"X-Webhook-ID":         ep.ID,
			"X-Webhook-Event-Type": d.Event.Type,
			"X-Webhook-Event-ID":   d.Event.ID,
			"User-Agent":           e.cfg.UserAgent,
		},
		Body: body,
	}, nil
}

// TestResult is the outcome of a synthetic endpoint test.
type TestResult struct {
	Success        bool   `json:"success"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	HTTPStatus     int    `json:"http_status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TestEndpoint sends a synthetic integration.test event through the normal
// delivery path, synchronously and without retries.
func (e *Engine) TestEndpoint(ctx context.Context, endpointID string) (*TestResult, error) {
	ep, err := e.registry.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, ErrEndpointNotFound
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	ev := &models.QueuedEvent{
		ID:        id.String(),
		Type:      "integration.test",
		Timestamp: e.now(),
		Data:      map[string]interface{}{"message": "endpoint connectivity test"},
		Source:    "dispatch",
	}

	d, err := e.createDelivery(ctx, ev, ep)
	if err != nil {
		return nil, err
	}

	req, err := e.buildRequest(d, ep)
	if err != nil {
		return nil, err
	}

	attempt := models.Attempt{
		AttemptNumber:  1,
		Timestamp:      e.now(),
		RequestHeaders: req.Headers,
		RequestBody:    string(req.Body),
	}

	result := &TestResult{}
	res, err := e.transport.Deliver(ctx, req)
	if err != nil {
		attempt.ErrorMessage = err.Error()
		result.Error = err.Error()
	} else {
		attempt.HTTPStatus = res.StatusCode
		attempt.ResponseTimeMs = res.Duration.Milliseconds()
		attempt.ResponseHeaders = res.Headers
		attempt.ResponseBody = string(res.Body)
		result.HTTPStatus = res.StatusCode
		result.ResponseTimeMs = res.Duration.Milliseconds()
		result.Success = res.Success()
		if !res.Success() {
			attempt.ErrorMessage = fmt.Sprintf("endpoint returned status %d", res.StatusCode)
			result.Error = attempt.ErrorMessage
		}
	}

	// A test is a single probe: it lands directly in a terminal state.
	d.Attempts = append(d.Attempts, attempt)
	now := e.now()
	d.CompletedAt = &now
	if result.Success {
		d.Status = models.DeliveryDelivered
		e.registry.recordSuccess(ctx, ep.ID)
	} else {
		d.Status = models.DeliveryFailed
	}
	if err := e.store.Update(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "failed to record test delivery", "delivery_id", d.ID, "error", err)
	}

	return result, nil
}

// ListDeliveries returns delivery records newest-first, optionally scoped
// to one endpoint.
func (e *Engine) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]*models.Delivery, error) {
	return e.store.List(ctx, endpointID, limit)
}

// RetryResult is the per-delivery outcome of a RetryFailed sweep.
type RetryResult struct {
	DeliveryID string                `json:"delivery_id"`
	Status     models.DeliveryStatus `json:"status"`
}

// RetryFailedResult summarizes a RetryFailed sweep.
type RetryFailedResult struct {
	RetriedCount int           `json:"retried_count"`
	Results      []RetryResult `json:"results"`
}

// RetryFailed re-attempts every terminally failed delivery, optionally
// scoped to one endpoint. Attempts run synchronously so the caller sees
// final statuses.
func (e *Engine) RetryFailed(ctx context.Context, endpointID string) (*RetryFailedResult, error) {
	failed, err := e.store.Failed(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	result := &RetryFailedResult{Results: make([]RetryResult, 0, len(failed))}
	for _, d := range failed {
		ep, err := e.registry.GetEndpoint(ctx, d.EndpointID)
		if err != nil || ep == nil {
			continue
		}

		e.attempt(ctx, d, ep)
		result.RetriedCount++
		result.Results = append(result.Results, RetryResult{DeliveryID: d.ID, Status: d.Status})
	}
	return result, nil
}
