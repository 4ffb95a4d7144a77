package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/craftline/orderdesk/internal/notify"
)

type NotificationsHandler struct {
	Svc *notify.Service
	Hub *notify.Hub
}

func (h *NotificationsHandler) Register(r *chi.Mux) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/stream", h.stream) // long-lived, no request timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/", h.list)
			r.Get("/unread-count", h.unreadCount)
			r.Post("/read-all", h.markAllRead)
			r.Post("/{id}/read", h.markRead)
			r.Delete("/", h.deleteAll)
			r.Delete("/older-than", h.deleteOlderThan)
			r.Delete("/{id}", h.delete)
		})
	})
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Svc.List(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", ns)
}

// stream is the staff session endpoint: backlog replay, then live events over
// server-sent events until the client goes away.
func (h *NotificationsHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "streaming unsupported"})
		return
	}

	sess, err := h.Hub.Join(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	defer h.Hub.Leave(sess)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-sess.Events():
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *NotificationsHandler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.UnreadCount(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]int{"unread": n})
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "notification marked read", nil)
}

func (h *NotificationsHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.MarkAllRead(r.Context()); err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "all notifications marked read", nil)
}

func (h *NotificationsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "notification deleted", nil)
}

func (h *NotificationsHandler) deleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteAll(r.Context()); err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "notifications cleared", nil)
}

func (h *NotificationsHandler) deleteOlderThan(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days < 1 {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "days must be a positive integer"})
		return
	}
	n, err := h.Svc.DeleteOlderThan(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "old notifications deleted", map[string]int64{"deleted": n})
}
