package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/DoyleJ11/lobbysync/internal/mailbox"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

// Pipe connects two in-process slot ends. Messages cross through the wire
// codec, so anything that survives a Pipe survives the network.
type Pipe struct {
	mu   sync.Mutex
	ends [2]*PipeEnd
}

func NewPipe() *Pipe { return &Pipe{} }

// End binds side (0 or 1) to h and returns it. Each end delivers its events
// from its own goroutine, in order.
func (p *Pipe) End(side int, h Handler) *PipeEnd {
	ctx, cancel := context.WithCancel(context.Background())
	e := &PipeEnd{pipe: p, side: side, inbox: mailbox.New[Event](), cancel: cancel}
	p.mu.Lock()
	p.ends[side] = e
	p.mu.Unlock()
	go e.deliver(ctx, h)
	return e
}

type PipeEnd struct {
	pipe      *Pipe
	side      int
	inbox     *mailbox.Mailbox[Event]
	cancel    context.CancelFunc
	wanting   bool
	connected bool
}

func (e *PipeEnd) peer() *PipeEnd { return e.pipe.ends[1-e.side] }

func (e *PipeEnd) Connect() error {
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	if e.connected || e.wanting {
		return ErrAlreadyConnected
	}
	e.wanting = true
	if p := e.peer(); p != nil && p.wanting {
		for _, end := range []*PipeEnd{e, p} {
			end.wanting = false
			end.connected = true
			end.inbox.Post(Event{Type: EventStatus, Status: StatusConnected})
		}
	}
	return nil
}

func (e *PipeEnd) Disconnect() error {
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	was := e.connected
	e.connected = false
	e.wanting = false
	if p := e.peer(); was && p != nil && p.connected {
		p.connected = false
		p.inbox.Post(Event{Type: EventStatus, Status: StatusPeerDisconnected})
		p.inbox.Post(Event{Type: EventDoneReceiving})
	}
	return nil
}

func (e *PipeEnd) IsConnected() bool {
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	return e.connected
}

func (e *PipeEnd) Send(m protocol.Message) error {
	env, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	decoded, err := protocol.Decode(env)

	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	if !e.connected {
		return ErrNotConnected
	}
	p := e.peer()
	if err != nil {
		p.inbox.Post(Event{Type: EventMessage, Err: fmt.Errorf("decode %s: %w", env.Type, err)})
		return nil
	}
	p.inbox.Post(Event{Type: EventMessage, Message: decoded})
	return nil
}

// Break simulates a broken stream: both ends see BROKEN then DONE_RECEIVING.
func (e *PipeEnd) Break() {
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	for _, end := range []*PipeEnd{e, e.peer()} {
		if end == nil || !end.connected {
			continue
		}
		end.connected = false
		end.inbox.Post(Event{Type: EventStatus, Status: StatusBroken})
		end.inbox.Post(Event{Type: EventDoneReceiving})
	}
}

// Fail rejects a pending Connect on this end with FAILED.
func (e *PipeEnd) Fail() {
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	if !e.wanting {
		return
	}
	e.wanting = false
	e.inbox.Post(Event{Type: EventStatus, Status: StatusFailed})
}

// Close stops the delivery goroutine.
func (e *PipeEnd) Close() {
	e.cancel()
	e.inbox.Close()
}

func (e *PipeEnd) deliver(ctx context.Context, h Handler) {
	for {
		ev, err := e.inbox.Next(ctx)
		if err != nil {
			return
		}
		h(ev)
	}
}
