// Package broadcast implements the topic-based fan-out of live updates.
// Delivery is best-effort: publishing never blocks the caller, a topic
// without subscribers is a no-op, and external transport failures are
// logged and swallowed.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/domain"
)

// Global topics. Per-target topics come from TargetTopic / TargetEventsTopic.
const (
	TopicTargets = "targets"
	TopicEvents  = "events"
	TopicAlerts  = "alerts"
)

// TargetTopic is the per-target status/result topic.
func TargetTopic(id uuid.UUID) string {
	return "target:" + id.String()
}

// TargetEventsTopic is the per-target event topic.
func TargetEventsTopic(id uuid.UUID) string {
	return "events:target:" + id.String()
}

// Envelope is the wire form of every fan-out message.
type Envelope struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 64

// Subscription is one subscriber's view of a set of topics. Messages are
// delivered on C; a subscriber that falls behind loses messages rather than
// slowing the publishers.
type Subscription struct {
	C      chan []byte
	topics []string
	hub    *Hub
	once   sync.Once
}

// Close detaches the subscription from the hub and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.C)
	})
}

// Hub fans messages out to in-process subscribers and forwards every
// publish to the optional external sink (the pub/sub transport).
type Hub struct {
	logger  *slog.Logger
	sink    domain.Publisher
	metrics *metrics.MonitorMetrics

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates a hub. sink may be nil when no external transport is
// configured.
func NewHub(logger *slog.Logger, sink domain.Publisher, m *metrics.MonitorMetrics) *Hub {
	return &Hub{
		logger:  logger.With("component", "broadcast_hub"),
		sink:    sink,
		metrics: m,
		subs:    make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for the given topics.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		C:      make(chan []byte, subscriberBuffer),
		topics: topics,
		hub:    h,
	}

	h.mu.Lock()
	for _, topic := range topics {
		set, ok := h.subs[topic]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[topic] = set
		}
		set[sub] = struct{}{}
	}
	h.mu.Unlock()

	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	for _, topic := range sub.topics {
		if set, ok := h.subs[topic]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
	}
	h.mu.Unlock()
}

// Publish marshals an envelope and delivers it to every subscriber of the
// topic, then forwards it to the external sink. Never blocks.
func (h *Hub) Publish(topic, msgType string, data any) {
	envelope := Envelope{
		Type:      msgType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "topic", topic, "type", msgType, "error", err)
		return
	}

	h.metrics.BroadcastsTotal.WithLabelValues(topicClass(topic)).Inc()

	h.mu.RLock()
	for sub := range h.subs[topic] {
		select {
		case sub.C <- payload:
		default:
			// Slow subscriber; drop rather than stall the publisher.
			h.metrics.BroadcastsDropped.Inc()
		}
	}
	h.mu.RUnlock()

	if h.sink != nil {
		go h.forward(topic, payload)
	}
}

// forward pushes a message to the external transport with a short deadline.
func (h *Hub) forward(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.sink.Publish(ctx, topic, payload); err != nil {
		h.logger.Warn("external publish failed", "topic", topic, "error", err)
	}
}

// SubscriberCount reports how many subscriptions a topic currently has.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// topicClass collapses per-target topics into a bounded metric label.
func topicClass(topic string) string {
	switch topic {
	case TopicTargets, TopicEvents, TopicAlerts:
		return topic
	}
	if len(topic) >= 7 && topic[:7] == "events:" {
		return "events:target"
	}
	return "target"
}
