// ABOUTME: SSE session tracking for the MCP event-stream transport.
// ABOUTME: Each session queues response envelopes until its stream drains them.

package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sseKeepaliveInterval is how long a stream sits idle before a comment
// frame goes out to hold the connection open.
const sseKeepaliveInterval = 30 * time.Second

// session is one connected SSE client. Envelopes produced by POSTs to
// /messages queue here until the stream writer picks them up.
type session struct {
	id     string
	mu     sync.Mutex
	queue  []*JSONRPCResponse
	notify chan struct{}
}

// send appends an envelope to the mailbox and wakes the stream writer.
func (s *session) send(resp *JSONRPCResponse) {
	s.mu.Lock()
	s.queue = append(s.queue, resp)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// receive returns the next queued envelope in arrival order, waiting up to
// timeout. It returns false when the wait times out or ctx is done.
func (s *session) receive(ctx context.Context, timeout time.Duration) (*JSONRPCResponse, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			resp := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return resp, true
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-timer.C:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// sessionHub manages active SSE sessions (in-memory).
type sessionHub struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionHub() *sessionHub {
	return &sessionHub{sessions: make(map[string]*session)}
}

func (h *sessionHub) create() *session {
	sess := &session{
		id:     uuid.New().String(),
		notify: make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	return sess
}

func (h *sessionHub) get(id string) (*session, bool) {
	h.mu.RLock()
	sess, ok := h.sessions[id]
	h.mu.RUnlock()
	return sess, ok
}

// send queues resp for the session with the given id. It reports false for
// unknown ids, including sessions torn down while a request was in flight.
func (h *sessionHub) send(id string, resp *JSONRPCResponse) bool {
	sess, ok := h.get(id)
	if !ok {
		return false
	}
	sess.send(resp)
	return true
}

func (h *sessionHub) remove(id string) bool {
	h.mu.Lock()
	_, existed := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	return existed
}

func (h *sessionHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
