package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"potatoauth/internal/metrics"
)

// DirectNotifier renders and sends every email before returning.
type DirectNotifier struct {
	renderer *Renderer
	sender   Sender
	metrics  *metrics.Metrics
}

// NewDirectNotifier creates a new DirectNotifier. m may be nil.
func NewDirectNotifier(renderer *Renderer, sender Sender, m *metrics.Metrics) *DirectNotifier {
	return &DirectNotifier{renderer: renderer, sender: sender, metrics: m}
}

// Send renders template with vars and delivers it to recipient.
func (n *DirectNotifier) Send(ctx context.Context, template, recipient string, vars map[string]interface{}) error {
	msg, err := n.renderer.Render(template, recipient, vars)
	if err != nil {
		n.metrics.ObserveEmail(template, err)
		return err
	}
	err = n.sender.Deliver(ctx, msg)
	n.metrics.ObserveEmail(template, err)
	return err
}

// Job is the queued form of an email.
type Job struct {
	Template  string                 `json:"template"`
	Recipient string                 `json:"recipient"`
	Vars      map[string]interface{} `json:"vars"`
}

// Publisher puts a message on a queue.
type Publisher interface {
	Publish(queue string, body []byte) error
}

// QueueNotifier hands emails to a Worker through a message queue.
// Send succeeds once the broker has accepted the job.
type QueueNotifier struct {
	publisher Publisher
	queue     string
}

// NewQueueNotifier creates a new QueueNotifier.
func NewQueueNotifier(publisher Publisher, queue string) *QueueNotifier {
	return &QueueNotifier{publisher: publisher, queue: queue}
}

// Send publishes an email job.
func (n *QueueNotifier) Send(_ context.Context, template, recipient string, vars map[string]interface{}) error {
	body, err := json.Marshal(Job{Template: template, Recipient: recipient, Vars: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}
	if err := n.publisher.Publish(n.queue, body); err != nil {
		return err
	}
	log.Printf("Queued %s email", template)
	return nil
}
