package wsslot

import (
	"errors"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

var ErrNoSlot = errors.New("no slot is waiting for a connection")

// Listener hands accepted websockets to the host's slots. A slot accepts a
// connection only between its Connect and the next Disconnect.
type Listener struct {
	mu    sync.Mutex
	slots map[int]*ListenSlot
	log   *zap.Logger
}

func NewListener(log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{slots: map[int]*ListenSlot{}, log: log}
}

// Slot creates the slot for index. It has the shape of a host.SlotFactory.
func (ln *Listener) Slot(index int, h transport.Handler) transport.Slot {
	s := &ListenSlot{index: index, h: h, log: ln.log.With(zap.Int("slot", index))}
	ln.mu.Lock()
	ln.slots[index] = s
	ln.mu.Unlock()
	return s
}

// Offer attaches ws to the lowest waiting slot. The returned channel closes
// once the connection is over, whichever side ended it.
func (ln *Listener) Offer(ws *websocket.Conn) (<-chan struct{}, error) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	var best *ListenSlot
	for _, s := range ln.slots {
		if s.waiting() && (best == nil || s.index < best.index) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNoSlot
	}
	return best.attach(ws), nil
}

// Waiting counts slots ready to take a connection.
func (ln *Listener) Waiting() int {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	n := 0
	for _, s := range ln.slots {
		if s.waiting() {
			n++
		}
	}
	return n
}

func (ln *Listener) Close() error {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	var err error
	for _, s := range ln.slots {
		err = multierr.Append(err, s.Disconnect())
	}
	return err
}

type ListenSlot struct {
	index int
	h     transport.Handler
	log   *zap.Logger

	mu      sync.Mutex
	wanting bool
	link    *link
}

func (s *ListenSlot) waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wanting && s.link == nil
}

func (s *ListenSlot) attach(ws *websocket.Conn) <-chan struct{} {
	l := newLink(ws, s.log)
	s.mu.Lock()
	s.wanting = false
	s.link = l
	s.mu.Unlock()

	s.h(transport.Event{Type: transport.EventStatus, Status: transport.StatusConnected})
	l.start(s.h, func() {
		s.mu.Lock()
		if s.link == l {
			s.link = nil
		}
		s.mu.Unlock()
	})
	return l.done
}

func (s *ListenSlot) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wanting || s.link != nil {
		return transport.ErrAlreadyConnected
	}
	s.wanting = true
	return nil
}

func (s *ListenSlot) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wanting = false
	if s.link != nil {
		s.link.close()
		s.link = nil
	}
	return nil
}

func (s *ListenSlot) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

func (s *ListenSlot) Send(m protocol.Message) error {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return transport.ErrNotConnected
	}
	return l.send(m)
}
