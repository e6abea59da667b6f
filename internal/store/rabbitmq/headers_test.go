package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestQueueNames(t *testing.T) {
	q := QueueNames("analytics_jobs")
	if q.Main != "analytics_jobs" || q.Retry != "analytics_jobs.retry" || q.DLQ != "analytics_jobs.dlq" {
		t.Fatalf("unexpected queue names: %+v", q)
	}
}

func TestAttemptAndExpiration(t *testing.T) {
	if got := Attempt(nil); got != 0 {
		t.Fatalf("expected 0 attempts for a fresh delivery, got %d", got)
	}
	if got := Attempt(amqp.Table{"x-attempt": int32(2)}); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := formatMillis(1500 * time.Millisecond); got != "1500" {
		t.Fatalf("unexpected expiration %q", got)
	}
	if got := formatMillis(0); got != "1" {
		t.Fatalf("expected a 1ms floor, got %q", got)
	}
}
