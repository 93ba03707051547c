package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

var _ river.JobArgs = Args{}

type Dispatcher interface {
	Dispatch(ctx context.Context, args Args) error
}

type Worker struct {
	river.WorkerDefaults[Args]
	dispatcher Dispatcher
}

func NewWorker(d Dispatcher) *Worker {
	return &Worker{dispatcher: d}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[Args]) error {
	return w.dispatcher.Dispatch(ctx, job.Args)
}

// LogDispatcher is used when no webhook is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, args Args) error {
	d.logger.Info("Notification",
		slog.String("event", string(args.Event)),
		slog.String("user_id", args.UserID.String()),
		slog.String("request_id", args.RequestID.String()),
		slog.String("status", args.Status),
		slog.String("amount", args.Amount),
	)
	return nil
}

// WebhookDispatcher posts the event as JSON to the notification service.
type WebhookDispatcher struct {
	url        string
	httpClient *http.Client
}

func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, args Args) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling notification webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
