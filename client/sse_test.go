package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"boardsync/domain"
	"boardsync/internal/boardtest"
)

type captureHandler struct {
	mu     sync.Mutex
	events []domain.Event
}

func (h *captureHandler) HandleEvent(ev domain.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *captureHandler) all() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.events...)
}

func waitForEvents(t *testing.T, h *captureHandler, n int, timeout time.Duration) []domain.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if events := h.all(); len(events) >= n {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(h.all()))
	return nil
}

func TestSubscriberDeliversEvents(t *testing.T) {
	svc := boardtest.New("", testLogger())
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	handler := &captureHandler{}
	sub := NewSubscriber(srv.URL+"/stream", nil, handler, testLogger())
	sub.retryDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = sub.Run(ctx)
		close(done)
	}()

	// Give the stream a moment to attach before publishing.
	time.Sleep(100 * time.Millisecond)
	data, err := sonic.Marshal(domain.Task{ID: "t1", StatusID: "doing"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	svc.PublishEvent(domain.Event{Type: domain.TaskUpdated, TaskID: "t1", Data: data})

	events := waitForEvents(t, handler, 1, 2*time.Second)
	if events[0].Type != domain.TaskUpdated || events[0].TaskID != "t1" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	task, ok := events[0].TaskPayload()
	if !ok || task.StatusID != "doing" {
		t.Fatalf("payload lost in transit: %+v ok=%v", task, ok)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSubscriberSkipsMalformedPayloads(t *testing.T) {
	svc := boardtest.New("", testLogger())
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	handler := &captureHandler{}
	sub := NewSubscriber(srv.URL+"/stream", nil, handler, testLogger())
	sub.retryDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	svc.PublishRaw([]byte("{not json"))
	svc.PublishEvent(domain.Event{Type: domain.TaskUpdated, TaskID: "t2"})

	events := waitForEvents(t, handler, 1, 2*time.Second)
	if events[0].TaskID != "t2" {
		t.Fatalf("malformed payload must be skipped, got %+v", events[0])
	}
}

func TestSubscriberReconnects(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			// First connection drops immediately.
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {\"type\":\"task.updated\",\"taskId\":\"t1\"}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	handler := &captureHandler{}
	sub := NewSubscriber(srv.URL, nil, handler, testLogger())
	sub.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	events := waitForEvents(t, handler, 1, 2*time.Second)
	if events[0].TaskID != "t1" {
		t.Fatalf("unexpected event after reconnect: %+v", events[0])
	}
	if attempts.Load() < 2 {
		t.Fatalf("expected a reconnect, got %d attempts", attempts.Load())
	}
}

func TestSubscriberSendsTokenBothWays(t *testing.T) {
	gotQuery := make(chan string, 1)
	gotHeader := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotQuery <- r.URL.Query().Get("token"):
			gotHeader <- r.Header.Get("Authorization")
		default:
		}
		http.Error(w, "done", http.StatusInternalServerError)
	}))
	defer srv.Close()

	handler := &captureHandler{}
	sub := NewSubscriber(srv.URL+"/stream?board=b1", StaticToken("tok en"), handler, testLogger())
	sub.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	select {
	case q := <-gotQuery:
		if q != "tok en" {
			t.Fatalf("token must be query escaped and decoded back, got %q", q)
		}
		if h := <-gotHeader; h != "Bearer tok en" {
			t.Fatalf("unexpected auth header: %q", h)
		}
	case <-ctx.Done():
		t.Fatal("no connection attempt observed")
	}
}
