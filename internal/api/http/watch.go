package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	auth "github.com/exam-forge/examforge-engine/internal/auth/middleware"
	"github.com/exam-forge/examforge-engine/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer; the socket carries no secrets
	// beyond what the authenticated REST surface already exposes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WatchProgressHandler streams snapshot updates for the caller's session over
// a websocket. Observers see the latest write; intermediate writes may be
// coalesced away. The subscription ends when the client disconnects.
func WatchProgressHandler(store progress.Watcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")

		updates, stop, err := store.Watch(r.Context(), userID, testID)
		if err != nil {
			http.Error(w, "watch unavailable", http.StatusServiceUnavailable)
			return
		}
		defer stop()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain reads so close frames and pings are processed.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if err := conn.WriteJSON(snap); err != nil {
					slog.Debug("progress watch write failed", "test_id", testID, "error", err)
					return
				}
			}
		}
	}
}
