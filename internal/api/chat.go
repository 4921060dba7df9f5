package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koopa0/lakitu/internal/chat"
	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/security"
	"github.com/koopa0/lakitu/internal/stream"
)

// maxRequestBytes caps the inbound chat body at 1MB.
const maxRequestBytes = 1 << 20

// chatHandler serves the synchronous and streaming chat endpoints.
type chatHandler struct {
	agent  *chat.Agent
	guard  *security.PromptValidator
	logger log.Logger
}

// chatRequest is the shared body of both chat endpoints.
type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

// chatResponse is the synchronous endpoint's reply.
type chatResponse struct {
	Text      string         `json:"text"`
	Steps     int            `json:"steps"`
	ToolCalls []toolCallView `json:"toolCalls,omitempty"`
}

// toolCallView summarizes one tool invocation for the sync response.
type toolCallView struct {
	CallID  string `json:"callId"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// decodeRequest parses and validates the chat body. On failure it has
// already written the error response and returns false.
func (h *chatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds 1MB", h.logger)
			return chatRequest{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return chatRequest{}, false
	}
	h.auditPrompt(r, req.Messages)
	return req, true
}

// auditPrompt runs injection heuristics over the newest user message.
// Detections are logged for review, never blocked: the patterns are
// too noisy to reject on, and the tool layer enforces its own limits.
func (h *chatHandler) auditPrompt(r *http.Request, msgs []chat.Message) {
	if h.guard == nil || len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleUser {
		return
	}
	if result := h.guard.Validate(last.Content); !result.Safe {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Warn("prompt injection patterns detected",
			"patterns", result.Patterns,
			"ip", r.RemoteAddr,
			"request_id", requestID,
		)
	}
}

// runErrorStatus maps history validation failures to an HTTP error.
func runErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrNoMessages):
		return http.StatusBadRequest, "missing_messages"
	case errors.Is(err, chat.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, chat.ErrEmptyContent):
		return http.StatusBadRequest, "empty_content"
	case errors.Is(err, chat.ErrLastNotUser):
		return http.StatusBadRequest, "invalid_history"
	default:
		return http.StatusBadRequest, "invalid_request"
	}
}

// send handles POST /api/chat: it drains the round server-side and
// replies once with the final result.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	events, err := h.agent.Run(r.Context(), req.Messages)
	if err != nil {
		status, code := runErrorStatus(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}

	var resp chatResponse
	calls := map[string]int{} // callId -> index in resp.ToolCalls
	for ev := range events {
		switch ev.Type {
		case chat.EventToolCallRequested:
			calls[ev.Call.CallID] = len(resp.ToolCalls)
			resp.ToolCalls = append(resp.ToolCalls, toolCallView{
				CallID: ev.Call.CallID,
				Name:   ev.Call.Name,
				Status: "pending",
			})
		case chat.EventToolResultAvailable:
			if i, ok := calls[ev.Result.CallID]; ok {
				resp.ToolCalls[i].Status = ev.Result.Result.Status
				if ev.Result.Result.Error != nil {
					resp.ToolCalls[i].Message = ev.Result.Result.Error.Message
				}
			}
		case chat.EventTurnFinished:
			resp.Text = ev.Finish.Text
			resp.Steps = ev.Finish.Steps
		case chat.EventError:
			if ev.Err.Canceled {
				// Client is gone; nothing useful to write.
				return
			}
			writeError(w, http.StatusBadGateway, "round_failed", ev.Err.Message, h.logger)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// streamChat handles POST /api/chat/stream: the orchestrator's events
// are replayed verbatim as SSE.
func (h *chatHandler) streamChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	events, err := h.agent.Run(ctx, req.Messages)
	if err != nil {
		_ = sw.WriteError(err.Error())
		return
	}

	disconnected := false
	for ev := range events {
		if disconnected {
			continue // Drain so the producer can close the channel
		}
		if err := sw.WriteEvent(ctx, ev); err != nil {
			h.logger.Info("client disconnected mid-stream", "error", err)
			disconnected = true
		}
	}
}
