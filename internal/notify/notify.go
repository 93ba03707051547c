// Package notify hands terminal state changes to the notification
// collaborator. Delivery is best effort: nothing here can fail a settlement.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Event string

const (
	EventDepositApproved     Event = "deposit.approved"
	EventDepositRejected     Event = "deposit.rejected"
	EventWithdrawalCompleted Event = "withdrawal.completed"
	EventWithdrawalRejected  Event = "withdrawal.rejected"
)

type Args struct {
	Event      Event     `json:"event"`
	UserID     uuid.UUID `json:"user_id"`
	RequestID  uuid.UUID `json:"request_id"`
	Status     string    `json:"status"`
	Amount     string    `json:"amount"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (Args) Kind() string { return "wallet_notification" }

// EnqueueFunc schedules delivery of args. Provided by main as a closure over
// river.Client.Insert.
type EnqueueFunc func(ctx context.Context, args Args) error

type Notifier struct {
	enqueue EnqueueFunc
	logger  *slog.Logger
	timeout time.Duration
}

func NewNotifier(enqueue EnqueueFunc, logger *slog.Logger) *Notifier {
	return &Notifier{
		enqueue: enqueue,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Notify enqueues args and only logs on failure. It detaches from the
// caller's cancellation so a closed HTTP request does not drop the event.
func (n *Notifier) Notify(ctx context.Context, args Args) {
	if n == nil || n.enqueue == nil {
		return
	}
	if args.OccurredAt.IsZero() {
		args.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.enqueue(ctx, args); err != nil {
		n.logger.Warn("Failed to enqueue notification",
			slog.String("event", string(args.Event)),
			slog.String("request_id", args.RequestID.String()),
			slog.Any("err", err),
		)
	}
}
