// Package gateway exposes the orchestration loop over HTTP.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oklog/ulid/v2"

	"courier-ai/internal/adapter/bridge"
	"courier-ai/internal/domain"
	"courier-ai/internal/usecase"
)

// maxBodyBytes caps request body size.
const maxBodyBytes = 1 << 20 // 1 MB

// Handler serves the gateway API. The auxiliary contact and send endpoints
// go through the same registered tools as in-loop dispatch.
type Handler struct {
	orch   *usecase.Orchestrator
	tools  domain.ToolExecutor
	bridge *bridge.Client
	logger *slog.Logger
}

// NewHandler builds the API handler. bridge may be nil when messaging is
// disabled; the health endpoint then omits bridge status.
func NewHandler(orch *usecase.Orchestrator, tools domain.ToolExecutor, bridgeClient *bridge.Client, logger *slog.Logger) *Handler {
	return &Handler{orch: orch, tools: tools, bridge: bridgeClient, logger: logger}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/turn", requireMethod(http.MethodPost, h.handleTurn))
	mux.HandleFunc("/api/v1/health", requireMethod(http.MethodGet, h.handleHealth))
	mux.HandleFunc("/api/v1/contacts/search", requireMethod(http.MethodPost, h.handleContactSearch))
	mux.HandleFunc("/api/v1/messages/send", requireMethod(http.MethodPost, h.handleSend))
}

// requireMethod rejects requests whose method does not match, mirroring the
// method-pattern routing of the Go 1.22+ ServeMux (GET also admits HEAD).
func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

type turnRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id"`
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Input == "" {
		h.writeError(w, domain.NewDomainError("handleTurn", domain.ErrMissingInput, "input is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = ulid.Make().String()
	}

	result, err := h.orch.HandleTurn(r.Context(), req.SessionID, req.Input)
	if err != nil {
		h.logger.Error("turn failed", "session", req.SessionID, "error", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status string `json:"status"`
	Bridge string `json:"bridge,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.bridge != nil {
		if h.bridge.Alive(r.Context()) {
			resp.Bridge = "up"
		} else {
			resp.Bridge = "down"
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type contactSearchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) handleContactSearch(w http.ResponseWriter, r *http.Request) {
	var req contactSearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		h.writeError(w, domain.NewDomainError("handleContactSearch", domain.ErrMissingInput, "query is required"))
		return
	}
	h.invokeTool(w, r, "search_contacts", req)
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Recipient == "" || req.Message == "" {
		h.writeError(w, domain.NewDomainError("handleSend", domain.ErrMissingInput, "recipient and message are required"))
		return
	}
	h.invokeTool(w, r, "send_message", req)
}

// invokeTool runs a registered tool outside the chat loop. The response is
// the tool's own output, so behavior matches in-loop dispatch exactly.
func (h *Handler) invokeTool(w http.ResponseWriter, r *http.Request, name string, params any) {
	t, err := h.tools.Get(name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	raw, err := json.Marshal(params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := t.Execute(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.IsError {
		h.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": result.Content,
			"code":  domain.CodeToolFailure,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if json.Valid([]byte(result.Content)) {
		w.Write([]byte(result.Content))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"result": result.Content})
}

// decode reads a JSON body with a size cap. Writes a 400 and returns false
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid JSON body",
			"code":  domain.CodeMissingInput,
		})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", "error", err)
	}
}

// writeError maps a domain error to an HTTP status and structured envelope.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	status := statusFor(err)
	h.writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  code,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingInput),
		errors.Is(err, domain.ErrInvalidArguments),
		errors.Is(err, domain.ErrToolNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstream),
		errors.Is(err, domain.ErrBridgeUnavailable),
		errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
