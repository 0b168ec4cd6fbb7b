package client

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// EventHandler consumes push events; the board engine implements it.
type EventHandler interface {
	HandleEvent(ev domain.Event)
}

// Subscriber maintains a server-sent-events connection to the board's push
// stream and feeds decoded events to the handler, reconnecting with a flat
// delay when the stream drops.
type Subscriber struct {
	streamURL  string
	tokens     TokenSource
	handler    EventHandler
	logger     *log.Logger
	http       *http.Client
	retryDelay time.Duration
}

// NewSubscriber creates a subscriber for the given stream URL.
func NewSubscriber(streamURL string, tokens TokenSource, handler EventHandler, logger *log.Logger) *Subscriber {
	if handler == nil {
		panic("client.NewSubscriber: event handler is required")
	}
	if logger == nil {
		panic("client.NewSubscriber: logger is required")
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Subscriber{
		streamURL:  streamURL,
		tokens:     tokens,
		handler:    handler,
		logger:     logger,
		http:       &http.Client{},
		retryDelay: time.Second,
	}
}

// Run blocks until the context is cancelled, reconnecting after stream
// failures.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		err := s.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Errorf("event stream closed: %v, reconnecting", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Subscriber) stream(ctx context.Context) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}

	// The token also travels as a query parameter because EventSource
	// clients cannot set request headers.
	target := s.streamURL
	if token != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "token=" + url.QueryEscape(token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && len(data) > 0 {
				s.dispatch(data)
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) > 0 {
				s.dispatch(data)
				data = nil
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " ")...)
		}
		// Comment and id lines are ignored.
	}
}

func (s *Subscriber) dispatch(data []byte) {
	var ev domain.Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		s.logger.Errorf("unable to parse push event: %v", err)
		return
	}
	s.handler.HandleEvent(ev)
}
