package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-ai/internal/adapter/bridge"
	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
)

// newBridgeFixture serves a fixed contact list and records sends.
func newBridgeFixture(t *testing.T, contacts string) (*bridge.Client, *[]map[string]string) {
	t.Helper()
	var sends []map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/contacts":
			w.Write([]byte(contacts))
		case "/api/send":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			sends = append(sends, body)
			w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client := bridge.NewClient(config.BridgeConfig{
		APIURL:         srv.URL,
		ContactTimeout: 2 * time.Second,
		SendTimeout:    2 * time.Second,
		StatusTimeout:  time.Second,
		StatusCacheTTL: 5 * time.Second,
		ContactLimit:   5,
	}, testLogger())
	return client, &sends
}

func TestSendMessageSingleMatchSendsImmediately(t *testing.T) {
	client, sends := newBridgeFixture(t, `[
		{"name":"Ana Garcia","jid":"5215511111111@s.whatsapp.net"},
		{"name":"Beto","jid":"5215522222222@s.whatsapp.net"}
	]`)
	tool := NewSendMessageTool(client, testLogger())

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"recipient":"ana","message":"hola desde el test"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	require.NotNil(t, result.Resolution)
	assert.Equal(t, domain.ResolutionSingle, result.Resolution.State)
	assert.Equal(t, "Mensaje enviado a Ana Garcia", result.Resolution.Reply)

	// a JID starts with a digit, so it is normalized to the bare number
	require.Len(t, *sends, 1)
	assert.Equal(t, "5215511111111", (*sends)[0]["recipient"])
	assert.Equal(t, "hola desde el test", (*sends)[0]["message"])
}

func TestSendMessageMultiMatchDisambiguates(t *testing.T) {
	client, sends := newBridgeFixture(t, `[
		{"name":"Ana Garcia","jid":"5215511111111@s.whatsapp.net"},
		{"name":"Ana Lopez","jid":"5215522222222@s.whatsapp.net"}
	]`)
	tool := NewSendMessageTool(client, testLogger())

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"recipient":"ana","message":"hola"}`))
	require.NoError(t, err)

	require.NotNil(t, result.Resolution)
	assert.Equal(t, domain.ResolutionMultiple, result.Resolution.State)
	assert.Contains(t, result.Resolution.Reply, "Ana Garcia (5215511111111)")
	assert.Contains(t, result.Resolution.Reply, "Ana Lopez (5215522222222)")
	assert.Empty(t, *sends, "no message may be sent on an ambiguous match")

	var payload struct {
		MultipleContacts bool `json:"multiple_contacts"`
		Options          []struct {
			Name string `json:"name"`
		} `json:"options"`
		OriginalMessage string `json:"original_message"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.True(t, payload.MultipleContacts)
	assert.Len(t, payload.Options, 2)
	assert.Equal(t, "hola", payload.OriginalMessage)
}

func TestSendMessageNoMatch(t *testing.T) {
	client, sends := newBridgeFixture(t, `[
		{"name":"Beto","jid":"5215522222222@s.whatsapp.net"}
	]`)
	tool := NewSendMessageTool(client, testLogger())

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"recipient":"carlos","message":"hola"}`))
	require.NoError(t, err)

	require.NotNil(t, result.Resolution)
	assert.Equal(t, domain.ResolutionNone, result.Resolution.State)
	assert.Equal(t, "No encontré ese contacto en la lista", result.Resolution.Reply)
	assert.Empty(t, *sends)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, false, payload["success"])
}

func TestContactSearchTool(t *testing.T) {
	client, _ := newBridgeFixture(t, `[
		{"name":"Ana Garcia","jid":"5215511111111@s.whatsapp.net"},
		{"name":"Beto","jid":"5215522222222@s.whatsapp.net"}
	]`)
	tool := NewContactSearchTool(client, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"beto"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	var contacts []bridge.Contact
	require.NoError(t, json.Unmarshal([]byte(result.Content), &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "Beto", contacts[0].Name)
	assert.Equal(t, "5215522222222", contacts[0].Phone)
}

func TestContactSearchToolHonorsLimit(t *testing.T) {
	client, _ := newBridgeFixture(t, `[
		{"name":"Ana Uno","jid":"5215511111111@s.whatsapp.net"},
		{"name":"Ana Dos","jid":"5215522222222@s.whatsapp.net"},
		{"name":"Ana Tres","jid":"5215533333333@s.whatsapp.net"}
	]`)
	tool := NewContactSearchTool(client, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"ana","limit":2}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	var contacts []bridge.Contact
	require.NoError(t, json.Unmarshal([]byte(result.Content), &contacts))
	assert.Len(t, contacts, 2)
}
