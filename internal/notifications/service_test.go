package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"publishd/internal/config"
	"publishd/internal/media"
)

func newTestConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Completions = true
	cfg.Notifications.Errors = true
	return &cfg
}

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	svc := NewService(newTestConfig(""))
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop TestNotification returned error: %v", err)
	}
}

func TestNotifyPublishedSendsHeadersAndBody(t *testing.T) {
	var gotTitle, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer server.Close()

	svc := NewService(newTestConfig(server.URL))
	rec := media.Record{ID: "pkg-1", Title: "Spring Lecture", State: media.StateReady}
	if err := svc.NotifyPublished(context.Background(), rec); err != nil {
		t.Fatalf("NotifyPublished returned error: %v", err)
	}
	if gotTitle != "Publishd - Complete" {
		t.Fatalf("unexpected title header %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Fatalf("expected high priority, got %q", gotPriority)
	}
	if !strings.Contains(gotBody, "Spring Lecture") {
		t.Fatalf("expected body to mention the package title, got %q", gotBody)
	}
}

func TestNotifyErrorRespectsToggle(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Notifications.Errors = false
	svc := NewService(cfg)

	rec := media.Record{ID: "pkg-2", Title: "Broken", State: media.StateError, ErrorMessage: "extract failed"}
	if err := svc.NotifyError(context.Background(), rec, media.ErrCodeExtract); err != nil {
		t.Fatalf("NotifyError returned error: %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected no request when error notifications are off, got %d", requests)
	}
}

func TestSendReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	svc := NewService(newTestConfig(server.URL))
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx ntfy response")
	}
}
