package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

type fakeDelegate struct {
	mu         sync.Mutex
	priorities []int64
	drawn      int
	failures   []int

	becameHost chan struct{}
	welcomed   chan int
	hosts      chan string
	kicked     chan string
	closing    chan bool
	texts      chan string
	launched   chan protocol.Message
	handedOff  chan transport.Slot
}

func newDelegate() *fakeDelegate {
	return &fakeDelegate{
		becameHost: make(chan struct{}, 4),
		welcomed:   make(chan int, 16),
		hosts:      make(chan string, 16),
		kicked:     make(chan string, 4),
		closing:    make(chan bool, 4),
		texts:      make(chan string, 16),
		launched:   make(chan protocol.Message, 4),
		handedOff:  make(chan transport.Slot, 4),
	}
}

func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (d *fakeDelegate) ReconnectDelay(failures int, downtime time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, failures)
	return 10 * time.Millisecond
}

func (d *fakeDelegate) HostPriority() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.priorities) == 0 {
		return 0
	}
	v := d.priorities[min(d.drawn, len(d.priorities)-1)]
	d.drawn++
	return v
}

func (d *fakeDelegate) Drawn() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawn
}

func (d *fakeDelegate) Failures() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.failures...)
}

func (d *fakeDelegate) ShouldBecomeHost()                             { notify(d.becameHost, struct{}{}) }
func (d *fakeDelegate) ConnectionStatusChanged(connected bool)        {}
func (d *fakeDelegate) Welcomed(lobby engine.Lobby, slot int)         { notify(d.welcomed, slot) }
func (d *fakeDelegate) HostIdentified(slot int, name string)          { notify(d.hosts, name) }
func (d *fakeDelegate) Kicked(reason string)                          { notify(d.kicked, reason) }
func (d *fakeDelegate) ServerClosing(forever bool)                    { notify(d.closing, forever) }
func (d *fakeDelegate) TextMessage(slot int, text string)             { notify(d.texts, text) }
func (d *fakeDelegate) Launched(m protocol.Message)                   { notify(d.launched, m) }
func (d *fakeDelegate) StoppedWithOpenConnection(conn transport.Slot) { notify(d.handedOff, conn) }

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %T", *new(T))
		var zero T
		return zero
	}
}

func testConfig(name string) Config {
	return Config{Name: name, Color: 7, Nonce: "nonce-" + name, DisconnectGrace: 20 * time.Millisecond}
}

// rawHost plays the host side of a pipe by hand.
type rawHost struct {
	t      *testing.T
	end    *transport.PipeEnd
	events chan transport.Event
}

func newPair(t *testing.T, cfg Config, d *fakeDelegate) (*Negotiator, *rawHost) {
	t.Helper()
	pipe := transport.NewPipe()
	h := &rawHost{t: t, events: make(chan transport.Event, 256)}
	h.end = pipe.End(0, func(ev transport.Event) { h.events <- ev })
	t.Cleanup(h.end.Close)

	n := New(context.Background(), cfg, d, func(handler transport.Handler) transport.Slot {
		end := pipe.End(1, handler)
		t.Cleanup(end.Close)
		return end
	}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		n.StopNow()
		<-n.Done()
	})
	return n, h
}

func (h *rawHost) next() transport.Event {
	h.t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for a slot event")
		return transport.Event{}
	}
}

func (h *rawHost) connect() {
	h.t.Helper()
	require.NoError(h.t, h.end.Connect())
	ev := h.next()
	require.Equal(h.t, transport.EventStatus, ev.Type)
	require.Equal(h.t, transport.StatusConnected, ev.Status)
}

func (h *rawHost) recv() protocol.Message {
	h.t.Helper()
	ev := h.next()
	require.Equal(h.t, transport.EventMessage, ev.Type, "got %+v", ev)
	require.NoError(h.t, ev.Err)
	return ev.Message
}

func (h *rawHost) send(msgs ...protocol.Message) {
	h.t.Helper()
	for _, m := range msgs {
		require.NoError(h.t, h.end.Send(m))
	}
}

func expect[M protocol.Message](h *rawHost) M {
	h.t.Helper()
	m := h.recv()
	got, ok := m.(M)
	require.True(h.t, ok, "want %T, got %#v", *new(M), m)
	return got
}

// welcome runs a minimal three-slot welcome that puts the client on slot 1.
func (h *rawHost) welcome() {
	h.t.Helper()
	expect[protocol.PreferredColor](h)
	expect[protocol.IAmClient](h)
	h.send(
		protocol.IAmHost{},
		protocol.YouAreClient{},
		protocol.Host{Slot: 0, Name: "Boss"},
		protocol.LobbyStatus{Name: "den", AgeSeconds: 60, Population: 2, MaxPlayers: 3},
		protocol.TotalPlayerSlots{Count: 3},
		protocol.PersonalPlayerSlot{Slot: 1},
		protocol.GameModeList{Modes: []protocol.ModeInfo{{Name: "duel", MinPlayers: 2, MaxPlayers: 2}}},
		protocol.GameModeXML{Mode: "duel", XML: "<duel/>"},
		protocol.PlayerName{Slot: 0, Name: "Boss"},
		protocol.GameModeVotes{Mode: "duel", Slots: []int{0}},
		protocol.PreferredColor{Slot: 0, Color: 5},
		protocol.PreferredColor{Slot: 1, Color: 7},
		protocol.PlayersInLobby{Slots: []int{0, 1}},
		protocol.PlayerStatuses{Statuses: []engine.Status{engine.StatusActive, engine.StatusActive, engine.StatusNotConnected}},
		protocol.WelcomeToServer{},
	)
}
