package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/congo-pay/billpay/internal/logging"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func TestAMQPNotifierRoutesByKind(t *testing.T) {
	ch := &recordingChannel{}
	n := NewAMQPNotifier(ch, "billpay.transactions")
	msg := Message{
		Kind:            KindTransactionNeedsReview,
		AccountID:       "acct-1",
		Reference:       "ref-1",
		TransactionKind: "airtime",
		Amount:          500,
		OccurredAt:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.exchange != "billpay.transactions" || ch.key != "transaction.needs_review" {
		t.Fatalf("unexpected route %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.MessageId != "ref-1:transaction.needs_review" {
		t.Fatalf("unexpected publishing %+v", ch.msg)
	}
	var decoded Message
	if err := json.Unmarshal(ch.msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Reference != "ref-1" || decoded.Amount != 500 {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	ok := &recordingChannel{}
	m := Multi{
		NewLoggerNotifier(logging.Discard()),
		NewAMQPNotifier(&recordingChannel{err: boom}, "x"),
		NewAMQPNotifier(ok, "x"),
		nil,
	}
	err := m.Send(context.Background(), Message{Kind: KindTransactionFailed, Reference: "ref-2"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if ok.key != KindTransactionFailed {
		t.Fatal("a failing notifier must not stop the others")
	}
}
