package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
)

const userAgent = "homebox-scan/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifySubmissionCompleted(ctx context.Context, location string, created, partial, failed int) error
	NotifySessionExpired(ctx context.Context, location string, pending int) error
	NotifyError(ctx context.Context, err error, context string) error
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
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		submission: cfg.Notifications.Submission,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	submission bool
	errors     bool
}

func (n *ntfyService) NotifySubmissionCompleted(ctx context.Context, location string, created, partial, failed int) error {
	if !n.submission {
		return nil
	}
	location = strings.TrimSpace(location)
	if location == "" {
		location = "inventory"
	}

	var title, message string
	switch {
	case partial == 0 && failed == 0:
		title = "Homebox Scan - Items Added"
		message = fmt.Sprintf("Created %d %s in %s", created, plural(created, "item", "items"), location)
	default:
		title = "Homebox Scan - Items Added (with errors)"
		message = fmt.Sprintf("Created %d in %s, %d missing photos or details, %d failed", created, location, partial, failed)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"homebox", "submission", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionExpired(ctx context.Context, location string, pending int) error {
	if !n.errors {
		return nil
	}
	location = strings.TrimSpace(location)
	message := fmt.Sprintf("Homebox login expired with %d %s not submitted", pending, plural(pending, "item", "items"))
	if location != "" {
		message += fmt.Sprintf(" (%s)", location)
	}
	message += "\nLog in again and resume the session"

	data := payload{
		title:    "Homebox Scan - Login Expired",
		message:  message,
		tags:     []string{"homebox", "auth", "expired"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Homebox Scan - Error",
		message:  builder.String(),
		tags:     []string{"homebox", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Homebox Scan - Test",
		message:  "Notification system test",
		tags:     []string{"homebox", "test"},
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

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

type noopService struct{}

func (noopService) NotifySubmissionCompleted(context.Context, string, int, int, int) error { return nil }
func (noopService) NotifySessionExpired(context.Context, string, int) error                { return nil }
func (noopService) NotifyError(context.Context, error, string) error                       { return nil }
func (noopService) TestNotification(context.Context) error                                 { return nil }

// NewNoop returns a Service that discards every notification.
func NewNoop() Service { return noopService{} }
