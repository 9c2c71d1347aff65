package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/visitor-management/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url, nats.Name("visitor-management"), nats.Timeout(3*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(wrap(msg.Subject, msg.Data))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(wrap(msg.Subject, msg.Data))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

func wrap(subject string, data []byte) *Message {
	return &Message{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
}

// LocalEventBus delivers events in-process. It backs single-node deployments
// with NATS disabled, and tests. Each handler runs on its own goroutine so a
// slow subscriber never holds up the publisher.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(msg *Message)
	inflight sync.WaitGroup
}

func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{handlers: make(map[string][]func(msg *Message))}
}

func (l *LocalEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	l.mu.RLock()
	handlers := append([]func(msg *Message){}, l.handlers[subject]...)
	l.inflight.Add(len(handlers))
	l.mu.RUnlock()

	logger.DebugContext(ctx, "Publishing local event", "subject", subject, "subscribers", len(handlers))
	for _, h := range handlers {
		go func(h func(msg *Message), msg *Message) {
			defer l.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Local event handler panicked", "subject", subject, "panic", r)
				}
			}()
			h(msg)
		}(h, wrap(subject, payload))
	}
	return nil
}

func (l *LocalEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[subject] = append(l.handlers[subject], handler)
	return nil
}

// QueueSubscribe behaves like Subscribe: there is only one local consumer group.
func (l *LocalEventBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return l.Subscribe(subject, handler)
}

// Wait blocks until every handler started by Publish has returned.
func (l *LocalEventBus) Wait() {
	l.inflight.Wait()
}

// Close drops all subscriptions and waits for in-flight handlers.
func (l *LocalEventBus) Close() error {
	l.mu.Lock()
	l.handlers = make(map[string][]func(msg *Message))
	l.mu.Unlock()
	l.inflight.Wait()
	return nil
}

// Event subjects
const (
	VisitPreRegistered = "visit.pre_registered"
	VisitCheckedIn     = "visit.checked_in"
	VisitCheckedOut    = "visit.checked_out"
	VisitCanceled      = "visit.canceled"
)

// VisitEvent is the payload for every visit.* subject.
type VisitEvent struct {
	VisitID      string     `json:"visit_id"`
	VisitorID    string     `json:"visitor_id"`
	VisitorName  string     `json:"visitor_name"`
	VisitorEmail string     `json:"visitor_email"`
	Company      string     `json:"company,omitempty"`
	HostID       string     `json:"host_id"`
	LocationID   string     `json:"location_id"`
	Status       string     `json:"status"`
	Source       string     `json:"source"` // staff, kiosk
	ScheduledAt  time.Time  `json:"scheduled_at"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}
