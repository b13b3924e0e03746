// ABOUTME: SSE transport pairing a long-lived event stream with POSTed requests.
// ABOUTME: Responses travel down the stream; POSTs to /messages get 202 receipts.

package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// handleSSE opens the event stream. The first frame names the endpoint the
// client must POST its requests to; response envelopes follow as message
// events in the order their requests arrived.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sess := s.sessions.create()
	defer func() {
		s.sessions.remove(sess.id)
		s.logger.Info("SSE client disconnected", "session_id", sess.id)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.id)
	flusher.Flush()

	s.logger.Info("SSE client connected", "session_id", sess.id)

	for {
		resp, ok := sess.receive(r.Context(), s.keepalive)
		if !ok {
			if r.Context().Err() != nil {
				return
			}
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		}

		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("failed to marshal SSE data", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleMessages accepts requests from SSE clients. The HTTP reply is only
// a receipt; the response envelope is queued on the session's stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if _, ok := s.sessions.get(sessionID); !ok {
		rpcErr := &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "Invalid or missing session_id"}
		s.writeJSON(w, http.StatusBadRequest, errorEnvelope(nil, rpcErr))
		return
	}

	body, rpcErr := s.readBody(r)
	if rpcErr != nil {
		s.deliver(sessionID, errorEnvelope(nil, rpcErr))
		s.accept(w)
		return
	}

	req, rpcErr := parseRequest(body)
	if rpcErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		s.deliver(sessionID, errorEnvelope(id, rpcErr))
		s.accept(w)
		return
	}

	if resp := s.dispatch(r.Context(), req); resp != nil {
		s.deliver(sessionID, resp)
	}
	s.accept(w)
}

// deliver queues an envelope for an SSE session. The stream may have closed
// while the request was executing; the envelope is dropped in that case.
func (s *Server) deliver(sessionID string, resp *JSONRPCResponse) {
	if !s.sessions.send(sessionID, resp) {
		s.logger.Debug("dropping envelope for closed session", "session_id", sessionID)
	}
}

// accept acknowledges a /messages POST without carrying the response.
func (s *Server) accept(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
