// Package wsslot carries lobby protocol envelopes over WebSockets and exposes
// them as transport slots.
package wsslot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/mailbox"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

const writeTimeout = 5 * time.Second

// link pumps one websocket. Events go to h until the connection ends; a
// locally closed link emits nothing further. The outbox is unbounded; a peer
// that stops reading is cut off by the write timeout.
type link struct {
	ws     *websocket.Conn
	out    *mailbox.Mailbox[outgoing]
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *zap.Logger

	local atomic.Bool
}

// outgoing is one queued envelope, or the goodbye that ends the write loop
// after everything queued before it.
type outgoing struct {
	env protocol.Envelope
	bye bool
}

func newLink(ws *websocket.Conn, log *zap.Logger) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		ws:      ws,
		out:    mailbox.New[outgoing](),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
}

func (l *link) start(h transport.Handler, ended func()) {
	go l.writeLoop()
	go func() {
		defer close(l.done)
		defer ended()
		l.readLoop(h)
	}()
}

func (l *link) readLoop(h transport.Handler) {
	for {
		var env protocol.Envelope
		if err := wsjson.Read(l.ctx, l.ws, &env); err != nil {
			l.cancel()
			if l.local.Load() {
				return
			}
			st := transport.StatusBroken
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				st = transport.StatusPeerDisconnected
			}
			l.log.Debug("websocket ended", zap.Stringer("status", st), zap.Error(err))
			h(transport.Event{Type: transport.EventStatus, Status: st})
			h(transport.Event{Type: transport.EventDoneReceiving})
			return
		}
		m, err := protocol.Decode(env)
		if err != nil {
			h(transport.Event{Type: transport.EventMessage, Err: fmt.Errorf("decode %s: %w", env.Type, err)})
			continue
		}
		h(transport.Event{Type: transport.EventMessage, Message: m})
	}
}

func (l *link) writeLoop() {
	defer l.out.Close()
	for {
		o, err := l.out.Next(l.ctx)
		if err != nil {
			return
		}
		if o.bye {
			l.ws.Close(websocket.StatusNormalClosure, "")
			l.cancel()
			return
		}
		if !l.write(o.env) {
			return
		}
	}
}

func (l *link) write(env protocol.Envelope) bool {
	ctx, cancel := context.WithTimeout(l.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, l.ws, env); err != nil {
		if !errors.Is(err, context.Canceled) {
			l.log.Debug("websocket write", zap.Error(err))
		}
		l.ws.CloseNow()
		return false
	}
	return true
}

func (l *link) send(m protocol.Message) error {
	env, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if l.local.Load() || !l.out.Post(outgoing{env: env}) {
		return transport.ErrNotConnected
	}
	return nil
}

// close shuts the link down from our side once queued sends are written.
func (l *link) close() {
	if l.local.Swap(true) {
		return
	}
	l.out.Post(outgoing{bye: true})
}
