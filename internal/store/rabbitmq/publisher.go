package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// JobMessage is the body of every analytics refresh delivery.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// Queues are the names derived from the main queue.
type Queues struct {
	Main  string
	Retry string
	DLQ   string
}

func QueueNames(queue string) Queues {
	return Queues{Main: queue, Retry: queue + ".retry", DLQ: queue + ".dlq"}
}

// DeclareTopology declares the main queue plus its retry and dead-letter queues.
// Publisher and worker call it with the same name so either may start first.
func DeclareTopology(ch *amqp.Channel, queue string) (Queues, error) {
	q := QueueNames(queue)

	if _, err := ch.QueueDeclare(q.DLQ, true, false, false, false, nil); err != nil {
		return q, err
	}

	// retry: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(q.Retry, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.Main,
	}); err != nil {
		return q, err
	}

	// main: dead-letter to DLQ on reject/nack(requeue=false)
	if _, err := ch.QueueDeclare(q.Main, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.DLQ,
	}); err != nil {
		return q, err
	}
	return q, nil
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	return p.publish(ctx, p.queue, jobID, nil)
}

// PublishRetry parks a job on the retry queue; it returns to the main queue
// after delay.
func (p *Publisher) PublishRetry(ctx context.Context, jobID string, delay time.Duration, attempt int) error {
	return p.publish(ctx, QueueNames(p.queue).Retry, jobID, &retryMeta{delay: delay, attempt: attempt})
}

type retryMeta struct {
	delay   time.Duration
	attempt int
}

func (p *Publisher) publish(ctx context.Context, routingKey, jobID string, retry *retryMeta) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if retry != nil {
		msg.Expiration = formatMillis(retry.delay)
		msg.Headers = amqp.Table{"x-attempt": int32(retry.attempt)}
	}

	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		msg,
	)
}
