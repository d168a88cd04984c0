package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/hub"
)

const maxCodeAttempts = 8

var validate = validator.New()

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createLobbyRequest struct {
	Name       string `json:"name" validate:"omitempty,max=64"`
	OwnerName  string `json:"owner" validate:"omitempty,max=32"`
	MaxPlayers int    `json:"maxPlayers" validate:"omitempty,min=2,max=32"`
}

type createLobbyResponse struct {
	Code    string `json:"code"`
	JoinURL string `json:"joinUrl"`
}

func CreateLobby(h *hub.Hub, publicURL string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		opts := hub.Options{Name: req.Name, OwnerName: req.OwnerName, MaxPlayers: req.MaxPlayers}
		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan hub.Result, 1)
			h.Inbox() <- hub.CreateLobby{Code: code, Options: opts, Reply: reply}
			res := <-reply
			if errors.Is(res.Err, hub.ErrLobbyExists) {
				log.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}
			if res.Err != nil {
				log.Warn("create lobby", zap.Error(res.Err))
				http.Error(w, "failed to create lobby", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusCreated, createLobbyResponse{Code: code, JoinURL: JoinURL(publicURL, code)})
			return
		}
		http.Error(w, "failed to create lobby", http.StatusServiceUnavailable)
	}
}

type lobbySummary struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Created string `json:"created"`
}

func ListLobbies(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []*hub.Lobby, 1)
		h.Inbox() <- hub.ListLobbies{Reply: reply}
		lobbies := <-reply
		out := make([]lobbySummary, 0, len(lobbies))
		for _, lb := range lobbies {
			out = append(out, lobbySummary{Code: lb.Code, Name: lb.Name, Created: lb.Created.UTC().Format("2006-01-02T15:04:05Z")})
		}
		slices.SortFunc(out, func(a, b lobbySummary) int { return strings.Compare(a.Code, b.Code) })
		writeJSON(w, http.StatusOK, out)
	}
}

type playerStatus struct {
	Slot   int           `json:"slot"`
	Name   string        `json:"name"`
	Status engine.Status `json:"status"`
	Color  uint32        `json:"color"`
	Votes  []string      `json:"votes"`
}

type countdownStatus struct {
	Number   int                    `json:"number"`
	Mode     string                 `json:"mode"`
	Status   engine.CountdownStatus `json:"status"`
	Included []int                  `json:"included"`
	DelayMS  int64                  `json:"delayMs"`
	Attempt  int                    `json:"attempt"`
}

type lobbyStatus struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Owner      string            `json:"owner"`
	MaxPlayers int               `json:"maxPlayers"`
	Modes      []string          `json:"modes"`
	Players    []playerStatus    `json:"players"`
	Countdowns []countdownStatus `json:"countdowns"`
}

func GetLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := lookup(h, chi.URLParam(r, "code"))
		if lb == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		v, err := lb.Coordinator.View(r.Context())
		if err != nil {
			http.Error(w, "lobby closed", http.StatusGone)
			return
		}

		st := lobbyStatus{
			Code:       lb.Code,
			Name:       v.Lobby.Name,
			Owner:      v.Lobby.OwnerName,
			MaxPlayers: v.Lobby.MaxPlayers,
			Players:    []playerStatus{},
			Countdowns: []countdownStatus{},
		}
		for _, m := range v.Lobby.Modes {
			st.Modes = append(st.Modes, m.Name)
		}
		for _, slot := range v.Lobby.Present() {
			p := v.Lobby.Players[slot]
			ps := playerStatus{Slot: slot, Name: p.Name, Status: p.Status, Color: uint32(p.Color), Votes: []string{}}
			for _, m := range v.Lobby.Modes {
				if p.Votes[m.Name] {
					ps.Votes = append(ps.Votes, m.Name)
				}
			}
			st.Players = append(st.Players, ps)
		}
		for _, c := range v.Lobby.SortedCountdowns() {
			st.Countdowns = append(st.Countdowns, countdownStatus{
				Number:   c.Number,
				Mode:     c.Mode,
				Status:   c.Status,
				Included: c.Included(),
				DelayMS:  c.Delay.Milliseconds(),
				Attempt:  c.Attempt,
			})
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// LobbyQR serves a PNG QR code of the lobby's join URL.
func LobbyQR(h *hub.Hub, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if lookup(h, code) == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		png, err := qrcode.Encode(JoinURL(publicURL, code), qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render qr code", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

func CloseLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if lookup(h, code) == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		h.Inbox() <- hub.RemoveLobby{Code: code}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// JoinURL is the websocket address clients dial for the lobby.
func JoinURL(publicURL, code string) string {
	return strings.TrimRight(publicURL, "/") + "/ws?code=" + url.QueryEscape(code)
}

func lookup(h *hub.Hub, code string) *hub.Lobby {
	reply := make(chan *hub.Lobby, 1)
	h.Inbox() <- hub.GetLobby{Code: code, Reply: reply}
	return <-reply
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
