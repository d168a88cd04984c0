package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/hub"
	"github.com/DoyleJ11/lobbysync/internal/ws"
)

type Options struct {
	// PublicURL is the websocket base clients reach this server at.
	PublicURL      string
	OriginPatterns []string
	Log            *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, opts.OriginPatterns, log))
	r.Route("/lobbies", func(r chi.Router) {
		r.Post("/", CreateLobby(h, opts.PublicURL, log))
		r.Get("/", ListLobbies(h))
		r.Get("/{code}", GetLobby(h))
		r.Get("/{code}/qr", LobbyQR(h, opts.PublicURL))
		r.Delete("/{code}", CloseLobby(h))
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
