package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/broadcast"
)

func newWSFixture(t *testing.T) (*broadcast.Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := broadcast.NewHub(logger, nil, metrics.New(prometheus.NewRegistry()))
	ws := NewWSHandler(logger, hub)

	server := httptest.NewServer(http.HandlerFunc(ws.Stream))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) broadcast.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var envelope broadcast.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return envelope
}

func waitForSubscriber(t *testing.T, hub *broadcast.Hub, topic string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(topic) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on topic %s", topic)
}

func TestWSHandler_Stream(t *testing.T) {
	t.Run("Default Topics", func(t *testing.T) {
		hub, server := newWSFixture(t)
		conn := dial(t, server, "")
		waitForSubscriber(t, hub, broadcast.TopicAlerts)

		hub.Publish(broadcast.TopicAlerts, "alert_triggered", map[string]string{"rule": "api down"})

		envelope := readEnvelope(t, conn)
		if envelope.Type != "alert_triggered" {
			t.Errorf("expected alert_triggered, got %q", envelope.Type)
		}
		if envelope.Topic != broadcast.TopicAlerts {
			t.Errorf("expected alerts topic, got %q", envelope.Topic)
		}
	})

	t.Run("Explicit Topic Filter", func(t *testing.T) {
		hub, server := newWSFixture(t)
		conn := dial(t, server, "?topics=events")
		waitForSubscriber(t, hub, broadcast.TopicEvents)

		if hub.SubscriberCount(broadcast.TopicAlerts) != 0 {
			t.Error("expected no alerts subscription with explicit filter")
		}

		hub.Publish(broadcast.TopicEvents, "event", nil)
		envelope := readEnvelope(t, conn)
		if envelope.Topic != broadcast.TopicEvents {
			t.Errorf("expected events topic, got %q", envelope.Topic)
		}
	})

	t.Run("Disconnect Removes Subscription", func(t *testing.T) {
		hub, server := newWSFixture(t)
		conn := dial(t, server, "?topics=targets")
		waitForSubscriber(t, hub, broadcast.TopicTargets)

		conn.Close()

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if hub.SubscriberCount(broadcast.TopicTargets) == 0 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Error("expected subscription removed after disconnect")
	})
}

func TestParseTopics(t *testing.T) {
	defaults := []string{broadcast.TopicTargets, broadcast.TopicEvents, broadcast.TopicAlerts}

	cases := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"Empty Defaults", "", defaults},
		{"Whitespace Only Defaults", " , ", defaults},
		{"Single Topic", "alerts", []string{"alerts"}},
		{"Multiple With Spaces", "targets, events", []string{"targets", "events"}},
		{"Per Target Topic", "target:123", []string{"target:123"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseTopics(tc.raw)
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("expected %v, got %v", tc.expected, got)
					break
				}
			}
		})
	}
}
