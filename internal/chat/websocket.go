// Package chat provides the WebSocket transport for dialogue sessions.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/whizzbang/audience-builder/internal/dialogue"
	"github.com/whizzbang/audience-builder/internal/domain"
	"github.com/whizzbang/audience-builder/internal/session"
)

const internalErrorText = "Something went wrong on our side. Please reconnect and try again."

// Handler upgrades connections and runs one sequential turn loop per
// session. The read loop is the only goroutine stepping a session's machine,
// which gives session affinity by construction.
type Handler struct {
	registry      *session.Registry
	machine       *dialogue.Machine
	log           ConversationLogger
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket chat handler.
func NewHandler(registry *session.Registry, machine *dialogue.Machine, log ConversationLogger, allowedOrigin string, isDev bool) *Handler {
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Handler{
		registry:      registry,
		machine:       machine,
		log:           log,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// inboundFrame is the JSON shape of structured client frames. Anything that
// fails to decode as one is treated as a plain-text conversation turn.
type inboundFrame struct {
	Type       string                    `json:"type"`
	Categories []domain.SelectedCategory `json:"categories"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sess := h.registry.Create()
	defer h.registry.Delete(sess.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("Chat session connected", "session_id", sess.ID, "ip", r.RemoteAddr)

	// First outbound frame announces the session identifier.
	if err := ws.Write(ctx, websocket.MessageText, []byte("THREAD_ID:"+sess.ID)); err != nil {
		slog.Warn("Failed to send thread id", "session_id", sess.ID, "error", err)
		return
	}

	// Greeting turn: the machine fires before any user input.
	state, delivered := h.runTurn(ctx, ws, sess.ID, sess.State)
	if !delivered {
		return
	}
	h.registry.Update(sess.ID, state)

	for !state.Terminal() {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Info("Chat session disconnected", "session_id", sess.ID)
			} else {
				slog.Warn("WebSocket read error", "session_id", sess.ID, "error", err)
			}
			return
		}

		// Structured frames are answered out-of-band, without stepping the
		// machine or advancing the current node.
		if frame, ok := decodeSelection(data); ok {
			ack, next := dialogue.ComposeSelectionAck(state, frame.Categories)
			if err := h.writeFrame(ctx, ws, ack); err != nil {
				slog.Warn("Failed to send selection ack", "session_id", sess.ID, "error", err)
				return
			}
			state = next
			h.registry.Update(sess.ID, state)
			h.log.Log(ConversationLogEvent{
				SessionID:  sess.ID,
				Direction:  "inbound",
				EventType:  "audience_selection",
				Node:       string(state.CurrentNode),
				ContentRaw: string(data),
			})
			continue
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}

		h.log.Log(ConversationLogEvent{
			SessionID:  sess.ID,
			Direction:  "inbound",
			EventType:  "user_message",
			Node:       string(state.CurrentNode),
			ContentRaw: text,
		})

		state = state.AppendMessage(domain.RoleUser, text)
		var ok bool
		state, ok = h.runTurn(ctx, ws, sess.ID, state)
		if !ok {
			return
		}
		h.registry.Update(sess.ID, state)
	}

	slog.Info("Chat session complete", "session_id", sess.ID)
}

// runTurn steps the machine for one turn and delivers the turn's final
// assistant message, if any. It returns false when the session must close
// because of an unrecoverable error or a dead connection; in the error case
// a best-effort error frame is written first (the session closes whether or
// not that write succeeds).
func (h *Handler) runTurn(ctx context.Context, ws *websocket.Conn, sessionID string, state domain.State) (domain.State, bool) {
	before := len(state.History)

	next, err := h.machine.RunTurn(ctx, state)
	if err != nil {
		slog.Error("Turn failed, closing session", "session_id", sessionID, "node", state.CurrentNode, "error", err)
		if writeErr := ws.Write(ctx, websocket.MessageText, []byte(internalErrorText)); writeErr != nil {
			slog.Debug("Failed to send error frame", "session_id", sessionID, "error", writeErr)
		}
		return state, false
	}
	state = next

	msg, emitted := lastAssistantSince(state, before)
	if !emitted {
		// Silent self-loop turn; nothing goes out.
		return state, true
	}

	frame, composed := dialogue.Compose(state, msg)
	if err := h.writeFrame(ctx, ws, frame); err != nil {
		slog.Warn("Failed to deliver frame", "session_id", sessionID, "error", err)
		return state, false
	}

	h.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Direction:  "outbound",
		EventType:  "assistant_message",
		Node:       string(composed.CurrentNode),
		ContentRaw: msg.Content,
		Meta:       map[string]any{"frame_type": string(frame.Type)},
	})
	return composed, true
}

// lastAssistantSince returns the turn's final assistant message. Intermediate
// messages appended while the run loop advanced through nodes stay in the
// history but are not transmitted.
func lastAssistantSince(s domain.State, before int) (domain.Message, bool) {
	for i := len(s.History) - 1; i >= before; i-- {
		if s.History[i].Role == domain.RoleAssistant {
			return s.History[i], true
		}
	}
	return domain.Message{}, false
}

// writeFrame sends plain text frames as raw text and structured frames as
// JSON.
func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, frame dialogue.Frame) error {
	if frame.Type == dialogue.FrameText {
		return ws.Write(ctx, websocket.MessageText, []byte(frame.Text))
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func decodeSelection(data []byte) (inboundFrame, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return inboundFrame{}, false
	}
	if frame.Type != "audience_selection" {
		return inboundFrame{}, false
	}
	return frame, true
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
