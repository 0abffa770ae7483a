package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// KindTransactionSuccess is sent when a transaction completes.
	KindTransactionSuccess = "transaction.success"
	// KindTransactionFailed is sent when a transaction ends failed, refunded or not.
	KindTransactionFailed = "transaction.failed"
	// KindTransactionNeedsReview is sent when an outcome needs an operator.
	KindTransactionNeedsReview = "transaction.needs_review"
)

// Message describes a transaction event.
type Message struct {
	Kind            string    `json:"kind"`
	AccountID       string    `json:"account_id"`
	Reference       string    `json:"reference"`
	TransactionKind string    `json:"transaction_kind"`
	Amount          int64     `json:"amount"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if message.Kind == KindTransactionNeedsReview {
		level = slog.LevelWarn
	}
	n.logger.Log(context.Background(), level, "notification",
		slog.String("kind", message.Kind),
		slog.String("account_id", message.AccountID),
		slog.String("reference", message.Reference),
		slog.String("transaction_kind", message.TransactionKind),
		slog.Int64("amount", message.Amount),
		slog.String("reason", message.Reason),
	)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Send delivers to all notifiers even when one fails.
func (m Multi) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
