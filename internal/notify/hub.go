package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub fans redis channel messages out to the staff sessions connected to this
// process. Joining sessions get the full notification backlog replayed first,
// so a reconnect never loses events for good.
type Hub struct {
	store Store
	log   *zap.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

type Session struct {
	ch chan []byte
}

// Events delivers backlog and live payloads. The channel closes when the
// session is dropped.
func (s *Session) Events() <-chan []byte { return s.ch }

func NewHub(store Store, log *zap.Logger) *Hub {
	return &Hub{store: store, log: log, sessions: make(map[*Session]struct{})}
}

// Join registers a session and replays the retained backlog into it.
func (h *Hub) Join(ctx context.Context) (*Session, error) {
	backlog, err := h.store.List(ctx, MaxRetained)
	if err != nil {
		return nil, err
	}

	s := &Session{ch: make(chan []byte, MaxRetained+32)}
	for i := len(backlog) - 1; i >= 0; i-- { // oldest first
		b, err := json.Marshal(Event{Event: "notification", Data: backlog[i]})
		if err != nil {
			continue
		}
		s.ch <- b
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	return s, nil
}

func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		close(s.ch)
	}
	h.mu.Unlock()
}

// Run relays redis pub/sub messages to every local session until ctx ends.
// Sessions that cannot keep up are dropped; they recover via backlog replay.
func (h *Hub) Run(ctx context.Context, msgs <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				delete(h.sessions, s)
				close(s.ch)
			}
			h.mu.Unlock()
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			h.broadcast([]byte(m.Payload))
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		select {
		case s.ch <- payload:
		default:
			h.log.Warn("dropping slow notification session")
			delete(h.sessions, s)
			close(s.ch)
		}
	}
}
