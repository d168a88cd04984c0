package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

var (
	duel      = engine.GameMode{Name: "duel", MinPlayers: 2, MaxPlayers: 2, XML: "<mode>duel</mode>"}
	skirmish  = engine.GameMode{Name: "skirmish", MinPlayers: 2, MaxPlayers: 4}
	errNoHost = errors.New("no game host available")
)

func testConfig(maxPlayers int) Config {
	return Config{
		LobbyName:          "test lobby",
		OwnerName:          "Host",
		OwnerSlot:          0,
		MaxPlayers:         maxPlayers,
		NegotiationTimeout: time.Minute,
		DisconnectGrace:    20 * time.Millisecond,
		ReconnectDelay:     10 * time.Millisecond,
		CountdownDelay:     time.Minute,
		RetryBackoff:       time.Second,
		BroadcastNonces:    true,
	}
}

type fakeDelegate struct {
	modes []engine.GameMode

	mu         sync.Mutex
	priorities []int64
	drawn      int
	failFirst  bool

	yielded  chan int
	launched chan protocol.Message
	texts    chan string
}

func newDelegate(modes ...engine.GameMode) *fakeDelegate {
	return &fakeDelegate{
		modes:    modes,
		yielded:  make(chan int, 4),
		launched: make(chan protocol.Message, 4),
		texts:    make(chan string, 4),
	}
}

func (d *fakeDelegate) GameModes() []engine.GameMode { return d.modes }

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

func (d *fakeDelegate) DefaultColor(slot int) engine.Color { return engine.Color(slot * 10) }

func (d *fakeDelegate) HostingInfo(req LaunchRequest) (HostingInfo, error) {
	if d.failFirst && req.Attempt == 0 {
		return HostingInfo{}, errNoHost
	}
	return HostingInfo{HostSlot: req.Included[0], SessionNonce: "session", Address: "127.0.0.1:7000"}, nil
}

func (d *fakeDelegate) VerifyAuthToken(mode string, slot int, token string) bool {
	return token != "bad"
}

func (d *fakeDelegate) ShouldBecomeClient(slot int)       { d.yielded <- slot }
func (d *fakeDelegate) Launched(m protocol.Message)       { d.launched <- m }
func (d *fakeDelegate) TextMessage(slot int, text string) { d.texts <- text }

type harness struct {
	t     *testing.T
	coord *Coordinator
	d     *fakeDelegate
	pipes map[int]*transport.Pipe
}

func newHarness(t *testing.T, cfg Config, d *fakeDelegate) *harness {
	t.Helper()
	h := &harness{t: t, d: d, pipes: map[int]*transport.Pipe{}}
	factory := func(index int, handler transport.Handler) transport.Slot {
		p := transport.NewPipe()
		h.pipes[index] = p
		end := p.End(0, handler)
		t.Cleanup(end.Close)
		return end
	}
	coord, err := New(context.Background(), cfg, d, factory, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		coord.StopNow()
		<-coord.Done()
	})
	h.coord = coord
	return h
}

// eventually polls the coordinator's view until cond holds.
func (h *harness) eventually(cond func(View) bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		v, err := h.coord.View(context.Background())
		return err == nil && cond(v)
	}, 2*time.Second, 5*time.Millisecond)
}

// rawClient drives the far end of a slot by hand.
type rawClient struct {
	t      *testing.T
	end    *transport.PipeEnd
	events chan transport.Event
}

func (h *harness) dial(slot int) *rawClient {
	h.t.Helper()
	rc := &rawClient{t: h.t, events: make(chan transport.Event, 256)}
	rc.end = h.pipes[slot].End(1, func(ev transport.Event) { rc.events <- ev })
	h.t.Cleanup(rc.end.Close)
	require.NoError(h.t, rc.end.Connect())
	rc.expectStatus(transport.StatusConnected)
	return rc
}

// join completes negotiation as a client and consumes the welcome.
func (h *harness) join(slot int) *rawClient {
	h.t.Helper()
	rc := h.dial(slot)
	expect[protocol.IAmHost](rc)
	rc.send(protocol.IAmClient{})
	rc.readWelcome()
	return rc
}

func (rc *rawClient) next() transport.Event {
	rc.t.Helper()
	select {
	case ev := <-rc.events:
		return ev
	case <-time.After(2 * time.Second):
		rc.t.Fatal("timed out waiting for a slot event")
		return transport.Event{}
	}
}

func (rc *rawClient) expectStatus(st transport.Status) {
	rc.t.Helper()
	ev := rc.next()
	require.Equal(rc.t, transport.EventStatus, ev.Type, "got %+v", ev)
	require.Equal(rc.t, st, ev.Status)
}

func (rc *rawClient) recv() protocol.Message {
	rc.t.Helper()
	ev := rc.next()
	require.Equal(rc.t, transport.EventMessage, ev.Type, "got %+v", ev)
	require.NoError(rc.t, ev.Err)
	return ev.Message
}

func (rc *rawClient) send(m protocol.Message) {
	rc.t.Helper()
	require.NoError(rc.t, rc.end.Send(m))
}

func (rc *rawClient) readWelcome() []protocol.Message {
	rc.t.Helper()
	var msgs []protocol.Message
	for {
		m := rc.recv()
		msgs = append(msgs, m)
		if _, ok := m.(protocol.WelcomeToServer); ok {
			return msgs
		}
	}
}

func expect[M protocol.Message](rc *rawClient) M {
	rc.t.Helper()
	m := rc.recv()
	got, ok := m.(M)
	require.True(rc.t, ok, "want %T, got %#v", *new(M), m)
	return got
}

// waitFor skips messages until one of type M arrives.
func waitFor[M protocol.Message](rc *rawClient) M {
	rc.t.Helper()
	for {
		if got, ok := rc.recv().(M); ok {
			return got
		}
	}
}

func kinds(msgs []protocol.Message) []protocol.Kind {
	out := make([]protocol.Kind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind()
	}
	return out
}
