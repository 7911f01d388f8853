// Package recorder implements the append-only event sink. Callers hand off
// records and continue immediately; a background worker performs the store
// appends, spilling events to a local journal while the store is down and
// replaying them once it recovers. Emission is at-least-once; duplicate
// delivery is tolerated downstream.
package recorder

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/broadcast"
	"github.com/user/healthwatch/internal/domain"
)

const appendTimeout = 5 * time.Second

// Recorder is the asynchronous event/result sink.
type Recorder struct {
	logger  *slog.Logger
	history domain.HistoryRepository
	journal domain.EventJournal
	hub     *broadcast.Hub
	metrics *metrics.MonitorMetrics

	events  chan domain.Event
	results chan domain.ProbeResult
	storeUp atomic.Bool
	done    chan struct{}
}

// New creates a recorder with the given buffer size. journal may be nil;
// without one, events are dropped (with a log line) while the store is
// unavailable.
func New(logger *slog.Logger, history domain.HistoryRepository, journal domain.EventJournal, hub *broadcast.Hub, m *metrics.MonitorMetrics, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	r := &Recorder{
		logger:  logger.With("component", "event_recorder"),
		history: history,
		journal: journal,
		hub:     hub,
		metrics: m,
		events:  make(chan domain.Event, bufferSize),
		results: make(chan domain.ProbeResult, bufferSize),
		done:    make(chan struct{}),
	}
	r.storeUp.Store(true)
	return r
}

// Record enqueues one event for persistence and fans it out to live
// subscribers. Never blocks; a full buffer drops only the persistent copy.
func (r *Recorder) Record(event domain.Event) {
	if r.hub != nil {
		r.hub.Publish(broadcast.TopicEvents, string(event.Type), event)
		if event.TargetID != nil {
			r.hub.Publish(broadcast.TargetEventsTopic(*event.TargetID), string(event.Type), event)
		}
	}
	select {
	case r.events <- event:
		r.metrics.EventsRecorded.Inc()
	default:
		r.logger.Warn("event buffer full, dropping event", "type", event.Type)
	}
}

// RecordResult enqueues one probe result for history. Never blocks.
func (r *Recorder) RecordResult(result domain.ProbeResult) {
	select {
	case r.results <- result:
	default:
		r.logger.Warn("result buffer full, dropping probe result", "target_id", result.TargetID)
	}
}

// Run drives the append loop until ctx is cancelled, then drains whatever
// is still buffered.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	retry := time.NewTicker(15 * time.Second)
	defer retry.Stop()

	for {
		select {
		case event := <-r.events:
			r.appendEvent(event)
		case result := <-r.results:
			r.appendResult(result)
		case <-retry.C:
			if !r.storeUp.Load() {
				r.tryReplay()
			}
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

// Done is closed once Run has drained and returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) drain() {
	for {
		select {
		case event := <-r.events:
			r.appendEvent(event)
		case result := <-r.results:
			r.appendResult(result)
		default:
			return
		}
	}
}

func (r *Recorder) appendEvent(event domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := r.history.AppendEvent(ctx, event); err != nil {
		if r.storeUp.CompareAndSwap(true, false) {
			r.logger.Error("history store unavailable, spilling events to journal", "error", err)
		}
		r.spill(ctx, event)
		return
	}

	if r.storeUp.CompareAndSwap(false, true) {
		r.logger.Info("history store recovered")
		r.tryReplay()
	}
}

func (r *Recorder) appendResult(result domain.ProbeResult) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := r.history.AppendResult(ctx, result); err != nil {
		r.logger.Warn("failed to append probe result", "target_id", result.TargetID, "error", err)
	}
}

func (r *Recorder) spill(ctx context.Context, event domain.Event) {
	if r.journal == nil {
		r.logger.Warn("no journal configured, dropping event", "type", event.Type)
		return
	}
	if err := r.journal.Write(ctx, event); err != nil {
		r.logger.Error("failed to journal event", "type", event.Type, "error", err)
		return
	}
	r.metrics.EventsJournalled.Inc()
}

// tryReplay pushes journalled events back into the history store and
// truncates the journal on success.
func (r *Recorder) tryReplay() {
	if r.journal == nil {
		r.storeUp.Store(true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := r.journal.Replay(ctx, func(event domain.Event) error {
		return r.history.AppendEvent(ctx, event)
	})
	if err != nil {
		r.logger.Warn("journal replay failed, will retry", "error", err)
		r.storeUp.Store(false)
		return
	}

	if err := r.journal.Truncate(ctx); err != nil {
		r.logger.Error("failed to truncate journal after replay", "error", err)
	}
	r.storeUp.Store(true)
	r.logger.Info("journal replay completed")
}
