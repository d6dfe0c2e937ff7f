package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"courier-ai/internal/domain"
)

// InboundHandler processes a message arriving from the bridge. The sender
// JID doubles as the session key so replies land in the right conversation.
type InboundHandler func(ctx context.Context, msg domain.InboundMessage)

// Listener ingests inbound messages from the bridge. It prefers the
// websocket event stream and falls back to HTTP polling when the stream
// cannot be established.
type Listener struct {
	baseURL      string
	pollInterval time.Duration
	handler      InboundHandler
	logger       *slog.Logger

	httpClient *http.Client
}

// NewListener builds a listener. handler is invoked once per new message.
func NewListener(apiURL string, pollInterval time.Duration, handler InboundHandler, logger *slog.Logger) *Listener {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Listener{
		baseURL:      strings.TrimRight(apiURL, "/"),
		pollInterval: pollInterval,
		handler:      handler,
		logger:       logger,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Run blocks until ctx is cancelled, reconnecting as needed. Each websocket
// failure triggers one polling sweep before the next connect attempt, so
// messages keep flowing while the stream is down. lastSeen advances with
// every delivery, stream or poll, so a dropped stream never replays
// messages already handled.
func (l *Listener) Run(ctx context.Context) {
	lastSeen := time.Now().Unix()

	for {
		ts, err := l.streamEvents(ctx)
		if ts > lastSeen {
			lastSeen = ts
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("bridge event stream failed, polling", "err", err)
			if ts, err := l.pollOnce(ctx, lastSeen); err == nil {
				lastSeen = ts
			}
		}

		select {
		case <-time.After(l.pollInterval):
		case <-ctx.Done():
			return
		}
	}
}

type wsEvent struct {
	Type      string  `json:"type"`
	From      string  `json:"from"`
	Body      string  `json:"body"`
	Timestamp float64 `json:"timestamp"`
}

// streamEvents connects to the bridge websocket and dispatches message
// events until the connection drops. Returns the newest timestamp
// dispatched so the caller can skip those messages when it falls back to
// polling.
func (l *Listener) streamEvents(ctx context.Context) (int64, error) {
	wsURL := strings.Replace(l.baseURL, "http", "ws", 1) + "/events"

	var newest int64
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return newest, fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Info("bridge event stream connected", "url", wsURL)

	for {
		var ev wsEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return newest, fmt.Errorf("read event: %w", err)
		}
		if ev.Type != "message" {
			continue
		}
		l.handler(ctx, domain.InboundMessage{
			Sender:    ev.From,
			Body:      ev.Body,
			Timestamp: int64(ev.Timestamp),
		})
		if ts := int64(ev.Timestamp); ts > newest {
			newest = ts
		}
	}
}

// pollOnce fetches messages newer than since and dispatches them.
// Returns the newest timestamp seen.
func (l *Listener) pollOnce(ctx context.Context, since int64) (int64, error) {
	url := fmt.Sprintf("%s/api/messages?since=%d", l.baseURL, since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return since, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return since, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return since, fmt.Errorf("bridge returned %d", resp.StatusCode)
	}

	var msgs []domain.InboundMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return since, fmt.Errorf("decode messages: %w", err)
	}

	newest := since
	for _, msg := range msgs {
		if msg.Timestamp <= since {
			continue
		}
		l.handler(ctx, msg)
		if msg.Timestamp > newest {
			newest = msg.Timestamp
		}
	}
	return newest, nil
}
