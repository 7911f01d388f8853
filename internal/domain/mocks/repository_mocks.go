package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
)

// MockTargetRepository is a mock implementation of domain.TargetRepository.
type MockTargetRepository struct {
	mu      sync.Mutex
	Targets []domain.MonitoredTarget
	FindErr error
}

func (m *MockTargetRepository) FindAllEnabled(ctx context.Context) ([]domain.MonitoredTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	out := make([]domain.MonitoredTarget, 0, len(m.Targets))
	for _, t := range m.Targets {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockTargetRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.MonitoredTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for _, t := range m.Targets {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// MockAlertRuleRepository is a mock implementation of domain.AlertRuleRepository.
type MockAlertRuleRepository struct {
	mu      sync.Mutex
	Rules   []domain.AlertRule
	FindErr error
}

func (m *MockAlertRuleRepository) FindEnabledByTarget(ctx context.Context, targetID uuid.UUID) ([]domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	var out []domain.AlertRule
	for _, r := range m.Rules {
		if r.Enabled && r.TargetID == targetID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockAlertRuleRepository) FindRuleByID(ctx context.Context, id uuid.UUID) (*domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for _, r := range m.Rules {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// MockHistoryRepository is a mock implementation of domain.HistoryRepository.
type MockHistoryRepository struct {
	mu             sync.Mutex
	Results        []domain.ProbeResult
	Events         []domain.Event
	Instances      map[uuid.UUID]domain.AlertInstance
	OpenInstances  []domain.AlertInstance
	LastTriggers   map[uuid.UUID]time.Time
	AppendErr      error
	SaveErr        error
	LoadErr        error
}

func (m *MockHistoryRepository) AppendResult(ctx context.Context, result domain.ProbeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Results = append(m.Results, result)
	return nil
}

func (m *MockHistoryRepository) AppendEvent(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockHistoryRepository) SaveInstance(ctx context.Context, instance *domain.AlertInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.Instances == nil {
		m.Instances = make(map[uuid.UUID]domain.AlertInstance)
	}
	m.Instances[instance.ID] = *instance
	return nil
}

func (m *MockHistoryRepository) LoadOpenInstances(ctx context.Context) ([]domain.AlertInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.OpenInstances, nil
}

func (m *MockHistoryRepository) LoadLastTrigger(ctx context.Context, ruleID uuid.UUID) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if at, ok := m.LastTriggers[ruleID]; ok {
		return &at, nil
	}
	return nil, nil
}

// SetAppendErr swaps the injected append failure, for tests that simulate
// a store outage and recovery.
func (m *MockHistoryRepository) SetAppendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendErr = err
}

// SavedInstances returns a snapshot of every stored instance.
func (m *MockHistoryRepository) SavedInstances() []domain.AlertInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AlertInstance, 0, len(m.Instances))
	for _, i := range m.Instances {
		out = append(out, i)
	}
	return out
}

// EventCount returns the number of appended events of the given type.
func (m *MockHistoryRepository) EventCount(typ domain.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// PublishedMessage is one captured publish call.
type PublishedMessage struct {
	Topic   string
	Message []byte
}

// MockPublisher is a mock implementation of domain.Publisher.
type MockPublisher struct {
	mu         sync.Mutex
	Published  []PublishedMessage
	PublishErr error
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, PublishedMessage{Topic: topic, Message: message})
	return nil
}

// TopicCount returns the number of messages published to a topic.
func (m *MockPublisher) TopicCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.Published {
		if p.Topic == topic {
			n++
		}
	}
	return n
}

// Notification is one captured notify call.
type Notification struct {
	Rule     domain.AlertRule
	Instance domain.AlertInstance
	Message  string
}

// MockNotifier is a mock implementation of domain.Notifier.
type MockNotifier struct {
	mu            sync.Mutex
	Notifications []Notification
	NotifyErr     error
}

func (m *MockNotifier) Notify(ctx context.Context, rule *domain.AlertRule, instance *domain.AlertInstance, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.Notifications = append(m.Notifications, Notification{Rule: *rule, Instance: *instance, Message: message})
	return nil
}

// Count returns the number of captured notifications.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notifications)
}

// MockInspector is a mock implementation of domain.ContainerInspector.
type MockInspector struct {
	mu         sync.Mutex
	Containers map[string]domain.ContainerState
	InspectErr error
	Down       bool
}

func (m *MockInspector) Inspect(ctx context.Context, nameOrID string) (*domain.ContainerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InspectErr != nil {
		return nil, m.InspectErr
	}
	if state, ok := m.Containers[nameOrID]; ok {
		cp := state
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockInspector) Available(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Down
}

// MockJournal is a mock implementation of domain.EventJournal.
type MockJournal struct {
	mu        sync.Mutex
	Events    []domain.Event
	WriteErr  error
	Truncated bool
}

func (m *MockJournal) Write(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockJournal) Replay(ctx context.Context, handler func(event domain.Event) error) error {
	m.mu.Lock()
	events := make([]domain.Event, len(m.Events))
	copy(events, m.Events)
	m.mu.Unlock()
	for _, e := range events {
		if err := handler(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockJournal) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
	m.Truncated = true
	return nil
}

// WasTruncated reports whether Truncate has been called.
func (m *MockJournal) WasTruncated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Truncated
}

// Len returns the number of journalled events.
func (m *MockJournal) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}
