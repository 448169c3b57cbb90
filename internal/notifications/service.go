package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"publishd/internal/config"
	"publishd/internal/media"
)

const userAgent = "Publishd/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyPublished(ctx context.Context, rec media.Record) error
	NotifyWaitingForUpload(ctx context.Context, rec media.Record) error
	NotifyError(ctx context.Context, rec media.Record, code media.ErrorCode) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completions: cfg.Notifications.Completions,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completions bool
	errors      bool
}

func (n *ntfyService) NotifyPublished(ctx context.Context, rec media.Record) error {
	if !n.completions {
		return nil
	}
	data := payload{
		title:    "Publishd - Complete",
		message:  fmt.Sprintf("Ready to watch: %s (%s)", strings.TrimSpace(rec.Title), rec.State),
		tags:     []string{"publishd", "package", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWaitingForUpload(ctx context.Context, rec media.Record) error {
	if !n.completions {
		return nil
	}
	data := payload{
		title:   "Publishd - Waiting",
		message: fmt.Sprintf("No platform configured for %s\nRun: publishd upload %s <platform>", strings.TrimSpace(rec.Title), rec.ID),
		tags:    []string{"publishd", "package", "waiting"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, rec media.Record, code media.ErrorCode) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Publication failed")
	if title := strings.TrimSpace(rec.Title); title != "" {
		builder.WriteString(" for ")
		builder.WriteString(title)
	}
	builder.WriteString(": ")
	if rec.ErrorMessage != "" {
		builder.WriteString(strings.TrimSpace(rec.ErrorMessage))
	} else {
		builder.WriteString(code.String())
	}

	data := payload{
		title:    "Publishd - Error",
		message:  builder.String(),
		tags:     []string{"publishd", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Publishd - Test",
		message:  "Notification system test",
		tags:     []string{"publishd", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPublished(context.Context, media.Record) error              { return nil }
func (noopService) NotifyWaitingForUpload(context.Context, media.Record) error       { return nil }
func (noopService) NotifyError(context.Context, media.Record, media.ErrorCode) error { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
