// Package hub keeps the lobbies this process hosts, keyed by join code.
package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/host"
	"github.com/DoyleJ11/lobbysync/internal/wsslot"
)

var ErrLobbyExists = errors.New("lobby code already in use")

// Lobby is one hosted lobby: its coordinator and the listener its network
// slots take connections from.
type Lobby struct {
	Code        string
	Name        string
	Created     time.Time
	Coordinator *host.Coordinator
	Listener    *wsslot.Listener
}

type Options struct {
	Name       string
	OwnerName  string
	MaxPlayers int
}

// Factory builds and starts the lobby registered under code.
type Factory func(ctx context.Context, code string, opts Options) (*Lobby, error)

type HubMsg interface{ isHubMsg() }

type Result struct {
	Lobby *Lobby
	Err   error
}

type CreateLobby struct {
	Code    string
	Options Options
	Reply   chan Result
}

type GetLobby struct {
	Code  string
	Reply chan *Lobby
}

type ListLobbies struct {
	Reply chan []*Lobby
}

// RemoveLobby stops and forgets a lobby. The hub also sends it to itself once
// a coordinator stops on its own.
type RemoveLobby struct {
	Code string
}

// ShutdownHub stops every lobby. Done closes once all coordinators exited.
type ShutdownHub struct {
	Forever bool
	Done    chan struct{}
}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (ListLobbies) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*Lobby
	factory Factory
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*Lobby),
		factory: factory,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.stopAll(false)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if _, ok := h.lobbies[msg.Code]; ok {
					msg.Reply <- Result{Err: ErrLobbyExists}
					break
				}
				// Lobbies outlive the hub's context so Stop can still notify clients.
				lb, err := h.factory(context.WithoutCancel(h.ctx), msg.Code, msg.Options)
				if err != nil {
					msg.Reply <- Result{Err: err}
					break
				}
				h.lobbies[msg.Code] = lb
				go h.watch(lb)
				h.log.Info("lobby created", zap.String("code", lb.Code), zap.String("name", lb.Name))
				msg.Reply <- Result{Lobby: lb}

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case ListLobbies:
				out := make([]*Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					out = append(out, lb)
				}
				msg.Reply <- out

			case RemoveLobby:
				if lb, ok := h.lobbies[msg.Code]; ok {
					delete(h.lobbies, msg.Code)
					lb.Coordinator.Stop(false)
					h.log.Info("lobby removed", zap.String("code", msg.Code))
				}

			case ShutdownHub:
				done := h.stopAll(msg.Forever)
				go func() {
					<-done
					close(msg.Done)
				}()
				h.cancel()
				return
			}
		}
	}
}

// watch closes a stopped coordinator's listener and reports it to the hub.
func (h *Hub) watch(lb *Lobby) {
	<-lb.Coordinator.Done()
	if err := lb.Listener.Close(); err != nil {
		h.log.Warn("closing listener", zap.String("code", lb.Code), zap.Error(err))
	}
	select {
	case h.inbox <- RemoveLobby{Code: lb.Code}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) stopAll(forever bool) <-chan struct{} {
	lobbies := make([]*Lobby, 0, len(h.lobbies))
	for _, lb := range h.lobbies {
		lb.Coordinator.Stop(forever)
		lobbies = append(lobbies, lb)
	}
	clear(h.lobbies)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, lb := range lobbies {
			<-lb.Coordinator.Done()
		}
	}()
	return done
}
