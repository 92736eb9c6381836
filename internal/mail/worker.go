package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"potatoauth/pkg/rabbitmq"

	"github.com/streadway/amqp"
)

// deliveryTimeout bounds a single queued delivery.
const deliveryTimeout = 30 * time.Second

// Consumer registers a handler for a queue.
type Consumer interface {
	Consume(queue string, handler rabbitmq.Handler) error
}

// Worker sends the emails queued by QueueNotifier.
type Worker struct {
	notifier *DirectNotifier
}

// NewWorker creates a new Worker.
func NewWorker(notifier *DirectNotifier) *Worker {
	return &Worker{notifier: notifier}
}

// Start consumes queue in the background.
func (w *Worker) Start(consumer Consumer, queue string) error {
	return consumer.Consume(queue, w.Handle)
}

// Handle sends the email carried by msg. Malformed jobs are logged and dropped.
func (w *Worker) Handle(msg amqp.Delivery) error {
	var job Job
	// Numbers stay json.Number so templates print them as sent.
	dec := json.NewDecoder(bytes.NewReader(msg.Body))
	dec.UseNumber()
	if err := dec.Decode(&job); err != nil {
		log.Printf("Dropping malformed email job %d: %v", msg.DeliveryTag, err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := w.notifier.Send(ctx, job.Template, job.Recipient, job.Vars); err != nil {
		return fmt.Errorf("failed to deliver %s email: %w", job.Template, err)
	}
	log.Printf("Delivered %s email", job.Template)
	return nil
}
