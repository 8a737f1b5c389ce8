package conversation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

const defaultSessionID = "default"

// Handler exposes the conversation loop over HTTP. Chat streams the model's
// reply as Server-Sent Events.
type Handler struct {
	orchestrator *Orchestrator
	sessions     SessionStore
	limits       HandlerLimits
	logger       *logging.Logger
}

// HandlerLimits are the request and session caps enforced around each turn.
type HandlerLimits struct {
	MaxInputLength        int
	MaxMessagesPerSession int
	MaxSessions           int
}

func NewHandler(orchestrator *Orchestrator, sessions SessionStore, limits HandlerLimits, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if limits.MaxInputLength <= 0 {
		limits.MaxInputLength = 1000
	}
	if limits.MaxMessagesPerSession <= 0 {
		limits.MaxMessagesPerSession = 50
	}
	if limits.MaxSessions <= 0 {
		limits.MaxSessions = 100
	}
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		limits:       limits,
		logger:       logger,
	}
}

// sseEvent is the wire shape of one streamed frame.
type sseEvent struct {
	Content string          `json:"content,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Chat handles POST /chat. Input arrives as query parameters to mirror the
// upstream client contract; the response is an SSE stream of content, tool,
// and error frames.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userInput := strings.TrimSpace(r.URL.Query().Get("user_input"))
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	if userInput == "" {
		writeError(w, http.StatusBadRequest, "user_input must not be empty")
		return
	}
	if len(userInput) > h.limits.MaxInputLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("user_input exceeds maximum length of %d characters", h.limits.MaxInputLength))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Session maintenance happens before the user message lands so the new
	// message itself is never evicted or trimmed away.
	if err := h.sessions.EvictOverCapacity(ctx, h.limits.MaxSessions); err != nil {
		h.logger.Error("session eviction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	if _, err := h.sessions.GetOrCreate(ctx, sessionID); err != nil {
		h.logger.Error("session create failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	if err := h.sessions.Trim(ctx, sessionID, h.limits.MaxMessagesPerSession); err != nil {
		h.logger.Error("session trim failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	if err := h.sessions.Append(ctx, sessionID, Message{Role: RoleUser, Content: userInput}); err != nil {
		h.logger.Error("append user message failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev Event) error {
		frame := sseEvent{Content: ev.Content, Tool: ev.Tool, Args: ev.Args, Error: ev.Err}
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.orchestrator.RunTurn(ctx, sessionID, emit); err != nil {
		// Headers are already out; the error frame emitted by the
		// orchestrator is all the client will see.
		h.logger.Error("turn failed", "session_id", sessionID, "error", err)
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pharmacy-assistant",
	})
}

// Sessions handles GET /sessions and lists active session ids.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.sessions.List(r.Context())
	if err != nil {
		h.logger.Error("session list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_sessions": ids})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
