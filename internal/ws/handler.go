// Package ws upgrades join requests to websockets and hands them to the
// lobby's listener.
package ws

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/hub"
	"github.com/DoyleJ11/lobbysync/internal/wsslot"
)

// Handler serves /ws?code=XXXXXX. The connection is attached to the lobby's
// lowest waiting slot and held open until that slot lets go of it.
func Handler(h *hub.Hub, originPatterns []string, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *hub.Lobby, 1)
		h.Inbox() <- hub.GetLobby{Code: code, Reply: reply}
		lb := <-reply
		if lb == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		if lb.Listener.Waiting() == 0 {
			http.Error(w, "lobby full", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev, e.g. "localhost:*".
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}

		done, err := lb.Listener.Offer(conn)
		if err != nil {
			// A slot filled between the check and the upgrade.
			status := websocket.StatusInternalError
			if errors.Is(err, wsslot.ErrNoSlot) {
				status = websocket.StatusTryAgainLater
			}
			conn.Close(status, "lobby full")
			return
		}
		log.Debug("connection attached", zap.String("code", code), zap.String("remote", r.RemoteAddr))
		<-done
	}
}
