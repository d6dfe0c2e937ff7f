package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"5215512345678", "5215512345678", false},
		{"525512345678", "5215512345678", false},
		{"15512345678", "5215512345678", false},
		{"5512345678", "5215512345678", false},
		{"55 1234 5678", "5215512345678", false},
		{"+52 1 55 1234 5678", "5215512345678", false},
		{"123", "", true},
		{"52155123456789012", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizePhone(%q) = %q, want error", tt.in, got)
			} else if !errors.Is(err, domain.ErrInvalidArguments) {
				t.Errorf("NormalizePhone(%q) error = %v, want ErrInvalidArguments", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizePhone(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newClient(t *testing.T, handler http.HandlerFunc, cacheTTL time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.BridgeConfig{
		APIURL:         srv.URL,
		ContactTimeout: 2 * time.Second,
		SendTimeout:    2 * time.Second,
		StatusTimeout:  time.Second,
		StatusCacheTTL: cacheTTL,
		ContactLimit:   2,
	}, testLogger())
}

func TestSearchContactsAppliesLimit(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"name":"Ana Uno","jid":"1@x"},
			{"name":"Ana Dos","jid":"2@x"},
			{"name":"Ana Tres","jid":"3@x"},
			{"name":"Beto","jid":"4@x"}
		]`))
	}, 5*time.Second)

	// limit 0 falls back to the configured default of 2
	got, err := c.SearchContacts(context.Background(), "ana", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d contacts, want configured limit 2", len(got))
	}
	if got[0].Phone != "1" {
		t.Errorf("phone not derived from jid: %q", got[0].Phone)
	}

	// a caller-supplied limit overrides the default
	got, err = c.SearchContacts(context.Background(), "ana", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d contacts, want caller limit 3", len(got))
	}
	got, err = c.SearchContacts(context.Background(), "ana", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d contacts, want caller limit 1", len(got))
	}
}

func TestSearchContactsMatchesJID(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"Ana","jid":"5215512345678@s.whatsapp.net"}]`))
	}, 5*time.Second)

	got, err := c.SearchContacts(context.Background(), "5512345678", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("number query should match jid, got %d results", len(got))
	}
}

func TestAliveCachesWithinWindow(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		}
	}, time.Hour)

	for _i := 0; _i < 5; _i++ {
		if !c.Alive(context.Background()) {
			t.Fatal("bridge should be reported alive")
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("status endpoint hit %d times, want 1 (cached)", got)
	}

	c.InvalidateStatus()
	c.Alive(context.Background())
	if got := hits.Load(); got != 2 {
		t.Fatalf("status endpoint hit %d times after invalidation, want 2", got)
	}
}

func TestAliveStalenessForcesRefresh(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}, 10*time.Millisecond)

	c.Alive(context.Background())
	time.Sleep(20 * time.Millisecond)
	c.Alive(context.Background())

	if got := hits.Load(); got != 2 {
		t.Fatalf("stale cache should force a fresh probe, hits = %d", got)
	}
}

func TestAliveDownBridge(t *testing.T) {
	c := NewClient(config.BridgeConfig{
		APIURL:         "http://127.0.0.1:1", // nothing listens here
		StatusTimeout:  200 * time.Millisecond,
		StatusCacheTTL: time.Hour,
		ContactTimeout: time.Second,
		SendTimeout:    time.Second,
	}, testLogger())

	if c.Alive(context.Background()) {
		t.Fatal("unreachable bridge reported alive")
	}
}

func TestSendNormalizesNumericRecipient(t *testing.T) {
	var gotRecipient string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/send" {
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			gotRecipient = body["recipient"]
			w.Write([]byte(`{"success":true}`))
		}
	}, 5*time.Second)

	receipt, err := c.Send(context.Background(), "5512345678", "hola")
	if err != nil {
		t.Fatal(err)
	}
	if gotRecipient != "5215512345678" {
		t.Errorf("recipient on the wire = %q, want normalized number", gotRecipient)
	}
	if !receipt.Success || receipt.Status != "sent" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
}

func TestSendRejectsBadNumber(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("bridge must not be called for an invalid number")
	}, 5*time.Second)

	_, err := c.Send(context.Background(), "123", "hola")
	if !errors.Is(err, domain.ErrInvalidArguments) {
		t.Fatalf("got %v, want ErrInvalidArguments", err)
	}
}
