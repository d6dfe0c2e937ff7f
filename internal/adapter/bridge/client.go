// Package bridge talks to the WhatsApp bridge process: contact lookup,
// message delivery, liveness checks, and inbound event ingestion.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
	"courier-ai/internal/infra/tracer"
)

// Contact is a bridge address book entry. Phone is the JID user part.
type Contact struct {
	Name  string `json:"name"`
	JID   string `json:"jid"`
	Phone string `json:"phone"`
}

// SendReceipt reports a completed delivery.
type SendReceipt struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
}

// Client is an HTTP client for the bridge REST API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	contactTimeout time.Duration
	sendTimeout    time.Duration
	statusTimeout  time.Duration
	contactLimit   int
	logger         *slog.Logger

	// liveness cache: the bridge is probed at most once per cacheTTL
	mu          sync.Mutex
	cacheTTL    time.Duration
	lastChecked time.Time
	lastAlive   bool
	hasResult   bool
}

// NewClient builds a bridge client from config.
func NewClient(cfg config.BridgeConfig, logger *slog.Logger) *Client {
	limit := cfg.ContactLimit
	if limit <= 0 {
		limit = 5
	}
	ttl := cfg.StatusCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.APIURL, "/"),
		httpClient:     &http.Client{},
		contactTimeout: cfg.ContactTimeout,
		sendTimeout:    cfg.SendTimeout,
		statusTimeout:  cfg.StatusTimeout,
		contactLimit:   limit,
		cacheTTL:       ttl,
		logger:         logger,
	}
}

// Contacts fetches the full address book.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contactTimeout)
	defer cancel()

	var raw []struct {
		Name string `json:"name"`
		JID  string `json:"jid"`
	}
	if err := c.getJSON(ctx, "/api/contacts", &raw); err != nil {
		return nil, fmt.Errorf("%w: contacts: %v", domain.ErrBridgeUnavailable, err)
	}

	out := make([]Contact, 0, len(raw))
	for _, r := range raw {
		phone := r.JID
		if idx := strings.Index(r.JID, "@"); idx >= 0 {
			phone = r.JID[:idx]
		}
		out = append(out, Contact{Name: r.Name, JID: r.JID, Phone: phone})
	}
	return out, nil
}

// SearchContacts returns contacts whose name or JID contains query,
// case-insensitive, capped at limit. A limit <= 0 falls back to the
// configured default.
func (c *Client) SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error) {
	ctx, span := tracer.StartSpan(ctx, "bridge.search_contacts",
		tracer.StringAttr("bridge.query", query))
	defer span.End()

	if limit <= 0 {
		limit = c.contactLimit
	}

	contacts, err := c.Contacts(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	matched := make([]Contact, 0, limit)
	for _, ct := range contacts {
		if strings.Contains(strings.ToLower(ct.Name), needle) ||
			strings.Contains(strings.ToLower(ct.JID), needle) {
			matched = append(matched, ct)
			if len(matched) == limit {
				break
			}
		}
	}

	span.SetAttributes(tracer.IntAttr("bridge.matches", len(matched)))
	tracer.SetOK(span)
	return matched, nil
}

// Send delivers a message. A recipient starting with a digit is treated as
// a phone number and normalized; anything else must already be a JID.
func (c *Client) Send(ctx context.Context, recipient, message string) (*SendReceipt, error) {
	ctx, span := tracer.StartSpan(ctx, "bridge.send")
	defer span.End()

	if recipient == "" {
		return nil, fmt.Errorf("%w: empty recipient", domain.ErrInvalidArguments)
	}
	if recipient[0] >= '0' && recipient[0] <= '9' {
		normalized, err := NormalizePhone(recipient)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		recipient = normalized
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: send: %v", domain.ErrBridgeUnavailable, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: send returned %d", domain.ErrBridgeUnavailable, resp.StatusCode)
		tracer.RecordError(span, err)
		return nil, err
	}

	c.logger.Info("message sent", "recipient", recipient)
	tracer.SetOK(span)
	return &SendReceipt{
		Success:   true,
		Message:   "Mensaje enviado a " + recipient,
		Recipient: recipient,
		Status:    "sent",
	}, nil
}

// Alive probes the bridge /status endpoint. Results are cached so repeated
// checks within the cache window hit memory, not the bridge.
func (c *Client) Alive(ctx context.Context) bool {
	c.mu.Lock()
	if c.hasResult && time.Since(c.lastChecked) < c.cacheTTL {
		alive := c.lastAlive
		c.mu.Unlock()
		return alive
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	alive := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err == nil {
		resp, err := c.httpClient.Do(req)
		if err == nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			alive = resp.StatusCode == http.StatusOK
		}
	}

	c.mu.Lock()
	c.lastAlive = alive
	c.lastChecked = time.Now()
	c.hasResult = true
	c.mu.Unlock()
	return alive
}

// InvalidateStatus drops the cached liveness result. Called after the
// supervisor starts or stops the bridge process.
func (c *Client) InvalidateStatus() {
	c.mu.Lock()
	c.hasResult = false
	c.mu.Unlock()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBridgeBody)).Decode(out)
}

const maxBridgeBody = 4 * 1024 * 1024 // 4 MB

// NormalizePhone strips non-digits and coerces the number into the 521
// country+mobile prefix the bridge expects. Numbers outside 12-13 digits
// after normalization are rejected.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	if !strings.HasPrefix(clean, "521") {
		switch {
		case strings.HasPrefix(clean, "52"):
			clean = "521" + clean[2:]
		case strings.HasPrefix(clean, "1"):
			clean = "521" + clean[1:]
		default:
			clean = "521" + clean
		}
	}

	if len(clean) < 12 || len(clean) > 13 {
		return "", fmt.Errorf("%w: invalid phone number format: %q", domain.ErrInvalidArguments, raw)
	}
	return clean, nil
}
