package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-dispatch/internal/logging"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// Sink receives routed output on behalf of the transport layer: immediate
// events for unbuffered channels and aggregations for windowed ones.
type Sink interface {
	DeliverEvent(ctx context.Context, channelID string, ev *models.RoutedEvent) error
	DeliverAggregation(ctx context.Context, channelID string, agg *models.EventAggregation) error
}

// Aggregator owns one periodic timer and one event buffer per windowed
// channel. When a window fires with a non-empty buffer, the buffer is
// atomically swapped for a fresh one and the swapped-out events become an
// EventAggregation handed to the sink. Swapping, rather than draining in
// place, guarantees no event is double-counted when routing and flushing
// run concurrently.
type Aggregator struct {
	mu        sync.Mutex
	windows   map[string]*window
	sink      Sink
	maxBuffer int
	onFlush   func(channelID string, n int)
	logger    *logging.Logger
}

type window struct {
	channelID string
	interval  time.Duration
	buffer    []models.RoutedEvent
	stop      chan struct{}
	stopped   chan struct{}
}

// NewAggregator creates an aggregator delivering flushed windows to sink.
// maxBuffer bounds each channel's buffer; reaching the bound forces an
// early flush so memory never grows without limit. onFlush, if non-nil, is
// invoked after each flush with the number of events aggregated.
func NewAggregator(sink Sink, maxBuffer int, onFlush func(channelID string, n int), logger *logging.Logger) *Aggregator {
	if maxBuffer <= 0 {
		maxBuffer = 10000
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{
		windows:   make(map[string]*window),
		sink:      sink,
		maxBuffer: maxBuffer,
		onFlush:   onFlush,
		logger:    logger,
	}
}

// Start creates the periodic window for a channel. An existing window for
// the same channel is cancelled first, so changing a channel's window is a
// stop-and-replace.
func (a *Aggregator) Start(channelID string, interval time.Duration) {
	if interval <= 0 {
		return
	}

	a.mu.Lock()
	if old, ok := a.windows[channelID]; ok {
		a.stopWindow(old)
	}
	w := &window{
		channelID: channelID,
		interval:  interval,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	a.windows[channelID] = w
	a.mu.Unlock()

	go a.run(w)
}

// Append buffers a routed event for the channel's next flush. If the buffer
// has reached its bound the window is flushed early instead of growing.
func (a *Aggregator) Append(ctx context.Context, channelID string, ev models.RoutedEvent) bool {
	a.mu.Lock()
	w, ok := a.windows[channelID]
	if !ok {
		a.mu.Unlock()
		return false
	}
	w.buffer = append(w.buffer, ev)
	full := len(w.buffer) >= a.maxBuffer
	a.mu.Unlock()

	if full {
		a.Flush(ctx, channelID)
	}
	return true
}

// Stop cancels the channel's window timer. The buffer is discarded;
// in-flight flushes already dispatched are allowed to complete.
func (a *Aggregator) Stop(channelID string) {
	a.mu.Lock()
	w, ok := a.windows[channelID]
	if ok {
		a.stopWindow(w)
	}
	a.mu.Unlock()
	if ok {
		<-w.stopped
	}
}

// Close cancels every window timer.
func (a *Aggregator) Close() {
	a.mu.Lock()
	stopped := make([]*window, 0, len(a.windows))
	for _, w := range a.windows {
		a.stopWindow(w)
		stopped = append(stopped, w)
	}
	a.mu.Unlock()

	for _, w := range stopped {
		<-w.stopped
	}
}

// stopWindow must be called with a.mu held.
func (a *Aggregator) stopWindow(w *window) {
	close(w.stop)
	delete(a.windows, w.channelID)
}

func (a *Aggregator) run(w *window) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush(context.Background(), w.channelID)
		case <-w.stop:
			return
		}
	}
}

// Flush swaps the channel's buffer and emits an aggregation from the
// swapped-out events. An empty buffer emits nothing.
func (a *Aggregator) Flush(ctx context.Context, channelID string) {
	a.mu.Lock()
	w, ok := a.windows[channelID]
	if !ok || len(w.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	events := w.buffer
	w.buffer = nil
	a.mu.Unlock()

	agg := buildAggregation(channelID, events)

	if a.sink != nil {
		if err := a.sink.DeliverAggregation(ctx, channelID, agg); err != nil {
			a.logger.ErrorContext(ctx, "failed to deliver aggregation",
				"channel_id", channelID, "events", agg.TotalEvents, "error", err)
		}
	}
	if a.onFlush != nil {
		a.onFlush(channelID, agg.TotalEvents)
	}
}

// buildAggregation summarizes the flushed events: severity counts, the
// deduplicated source set, and the first/last event timestamps.
func buildAggregation(channelID string, events []models.RoutedEvent) *models.EventAggregation {
	windowID, _ := uuid.NewV7()

	counts := make(map[models.Severity]int)
	sources := make(map[string]struct{})
	for _, ev := range events {
		counts[ev.Severity]++
		if ev.Source != "" {
			sources[ev.Source] = struct{}{}
		}
	}

	unique := make([]string, 0, len(sources))
	for s := range sources {
		unique = append(unique, s)
	}
	sort.Strings(unique)

	return &models.EventAggregation{
		WindowID:     windowID.String(),
		ChannelID:    channelID,
		Events:       events,
		AggregatedAt: time.Now(),
		TotalEvents:  len(events),
		Summary: models.AggregationSummary{
			SeverityCounts: counts,
			UniqueSources:  unique,
			TimeRange: models.TimeRange{
				Start: events[0].Timestamp,
				End:   events[len(events)-1].Timestamp,
			},
		},
	}
}
