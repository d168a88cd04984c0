package wsslot

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

const dialTimeout = 10 * time.Second

// DialSlot is a client's slot: Connect dials url in the background and
// reports CONNECTED or FAILED through the handler.
type DialSlot struct {
	url string
	h   transport.Handler
	log *zap.Logger

	mu   sync.Mutex
	gen  int
	link *link
}

func NewDialSlot(url string, h transport.Handler, log *zap.Logger) *DialSlot {
	if log == nil {
		log = zap.NewNop()
	}
	return &DialSlot{url: url, h: h, log: log.With(zap.String("url", url))}
}

func (s *DialSlot) Connect() error {
	s.mu.Lock()
	if s.link != nil {
		s.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	go s.dial(gen)
	return nil
}

func (s *DialSlot) dial(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, s.url, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		if err == nil {
			ws.CloseNow()
		}
		return
	}
	if err != nil {
		s.log.Debug("dial failed", zap.Error(err))
		s.h(transport.Event{Type: transport.EventStatus, Status: transport.StatusFailed})
		return
	}
	l := newLink(ws, s.log)
	s.link = l
	s.h(transport.Event{Type: transport.EventStatus, Status: transport.StatusConnected})
	l.start(s.h, func() {
		s.mu.Lock()
		if s.link == l {
			s.link = nil
		}
		s.mu.Unlock()
	})
}

func (s *DialSlot) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.link != nil {
		s.link.close()
		s.link = nil
	}
	return nil
}

func (s *DialSlot) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

func (s *DialSlot) Send(m protocol.Message) error {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return transport.ErrNotConnected
	}
	return l.send(m)
}
