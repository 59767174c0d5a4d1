// Package publisher propagates tracking mutations to a Kafka topic.
//
// Publication is best effort: failures are logged and never reach the caller
// whose mutation produced the event. When disabled, every publish is a logged
// no-op that touches no network.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types published by the tracking service.
const (
	ContentTrackingCreated    = "CONTENT_TRACKING_CREATED"
	ContentTrackingUpdated    = "CONTENT_TRACKING_UPDATED"
	ContentTrackingDeleted    = "CONTENT_TRACKING_DELETED"
	AssessmentTrackingCreated = "ASSESSMENT_TRACKING_CREATED"
	AssessmentTrackingDeleted = "ASSESSMENT_TRACKING_DELETED"
)

// ErrNotStarted is returned by Publish before Start has created the writer.
var ErrNotStarted = errors.New("publisher not started")

// Event is one mutation to propagate. EntityField names the envelope key
// that carries EntityID, e.g. "contentTrackingId".
type Event struct {
	Type        string
	EntityField string
	EntityID    string
	TenantID    string
	Data        interface{}
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TopicAdmin provisions the target topic.
type TopicAdmin interface {
	EnsureTopic(ctx context.Context, topic string) error
}

// Config holds broker settings.
type Config struct {
	Enabled        bool
	Brokers        []string
	Topic          string
	ClientID       string
	PublishTimeout time.Duration
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithWriter replaces the kafka writer created by Start.
func WithWriter(w MessageWriter) Option {
	return func(p *Publisher) { p.writer = w }
}

// WithTopicAdmin replaces the kafka topic admin.
func WithTopicAdmin(a TopicAdmin) Option {
	return func(p *Publisher) { p.admin = a }
}

// Publisher owns the broker client lifecycle: Start connects and provisions
// the topic, Stop drains in-flight publishes and disconnects.
type Publisher struct {
	cfg    Config
	writer MessageWriter
	admin  TopicAdmin
	now    func() time.Time

	mu         sync.Mutex
	started    bool
	ownsWriter bool
	topicReady atomic.Bool
	inFlight   sync.WaitGroup
}

func New(cfg Config, opts ...Option) *Publisher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	p := &Publisher{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.admin == nil {
		p.admin = &kafkaAdmin{brokers: cfg.Brokers, clientID: cfg.ClientID}
	}
	return p
}

// Enabled reports whether publishing is switched on.
func (p *Publisher) Enabled() bool {
	return p.cfg.Enabled
}

// TopicReady reports whether the topic has been provisioned.
func (p *Publisher) TopicReady() bool {
	return p.topicReady.Load()
}

// Start provisions the topic and creates the writer. A provisioning failure
// is logged and left for EnsureTopic to retry; it does not fail startup.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		log.Println("[publisher] disabled, events will not be sent to kafka")
		return nil
	}
	if len(p.cfg.Brokers) == 0 || p.cfg.Topic == "" {
		return fmt.Errorf("publisher enabled without brokers or topic")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	if err := p.EnsureTopic(ctx); err != nil {
		log.Printf("[publisher] topic %s not provisioned yet: %v", p.cfg.Topic, err)
	}

	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:                   kafka.TCP(p.cfg.Brokers...),
			Topic:                  p.cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: false,
			WriteTimeout:           p.cfg.PublishTimeout,
			Transport:              &kafka.Transport{ClientID: p.cfg.ClientID},
		}
		p.ownsWriter = true
	}
	p.started = true
	log.Printf("[publisher] connected to %v, topic %s", p.cfg.Brokers, p.cfg.Topic)
	return nil
}

// EnsureTopic creates the topic if it does not exist yet. It is a no-op once
// the topic is known to exist or when publishing is disabled.
func (p *Publisher) EnsureTopic(ctx context.Context) error {
	if !p.cfg.Enabled || p.topicReady.Load() {
		return nil
	}
	if err := p.admin.EnsureTopic(ctx, p.cfg.Topic); err != nil {
		return err
	}
	p.topicReady.Store(true)
	log.Printf("[publisher] topic %s is ready", p.cfg.Topic)
	return nil
}

// Stop waits for in-flight publishes and closes the writer. A writer created
// by Start is dropped so the next Start builds a fresh one.
func (p *Publisher) Stop() error {
	p.inFlight.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	if p.ownsWriter {
		p.writer = nil
		p.ownsWriter = false
	}
	if err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	log.Println("[publisher] disconnected")
	return nil
}

// Publish sends ev synchronously, keyed by the entity id.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if !p.cfg.Enabled {
		log.Printf("[publisher] disabled, skipping %s for %s=%s", ev.Type, ev.EntityField, ev.EntityID)
		return nil
	}

	p.mu.Lock()
	writer, started := p.writer, p.started
	p.mu.Unlock()
	if !started || writer == nil {
		return ErrNotStarted
	}

	value, err := p.envelope(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Type)},
			{Key: "tenantid", Value: []byte(ev.TenantID)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	return nil
}

// PublishAsync hands ev to a background goroutine bounded by the publish
// timeout. Failures are logged and swallowed.
func (p *Publisher) PublishAsync(ev Event) {
	if !p.cfg.Enabled {
		log.Printf("[publisher] disabled, skipping %s for %s=%s", ev.Type, ev.EntityField, ev.EntityID)
		return
	}

	p.inFlight.Add(1)
	go func() {
		defer p.inFlight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, ev); err != nil {
			log.Printf("[publisher] failed to publish %s for %s=%s: %v", ev.Type, ev.EntityField, ev.EntityID, err)
			return
		}
		log.Printf("[publisher] published %s for %s=%s", ev.Type, ev.EntityField, ev.EntityID)
	}()
}

// envelope renders {eventType, timestamp, <entityField>: id, data}.
func (p *Publisher) envelope(ev Event) ([]byte, error) {
	field := ev.EntityField
	if field == "" {
		field = "entityId"
	}
	return json.Marshal(map[string]interface{}{
		"eventType": ev.Type,
		"timestamp": p.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		field:       ev.EntityID,
		"data":      ev.Data,
	})
}
