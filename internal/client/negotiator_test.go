package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

func TestWelcomeFillsMirror(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()
	h.welcome()

	assert.Equal(t, 1, receive(t, d.welcomed))
	assert.Equal(t, "Boss", receive(t, d.hosts))
	assert.Equal(t, protocol.PlayerName{Slot: 1, Name: "alice"}, expect[protocol.PlayerName](h))
	assert.Equal(t, protocol.PersonalNonce{Slot: 1, Nonce: "nonce-alice"}, expect[protocol.PersonalNonce](h))

	v, err := n.View(t.Context())
	require.NoError(t, err)
	assert.True(t, v.Welcomed)
	assert.Equal(t, 1, v.Slot)
	assert.Equal(t, "den", v.Lobby.Name)
	assert.Equal(t, 0, v.Lobby.OwnerSlot)
	assert.Equal(t, []int{0, 1}, v.Lobby.Present())
	assert.Equal(t, []int{0}, v.Lobby.Voters("duel"))
	assert.Equal(t, "<duel/>", v.Lobby.Modes[0].XML)
	assert.Equal(t, engine.Color(5), v.Lobby.Players[0].Color)
	assert.Equal(t, "alice", v.Lobby.Players[1].Name)
}

func TestMirrorFollowsRuntimeUpdates(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()
	h.welcome()
	expect[protocol.PlayerName](h)
	expect[protocol.PersonalNonce](h)

	h.send(
		protocol.PlayersInLobby{Slots: []int{0, 1, 2}},
		protocol.PlayerName{Slot: 2, Name: "carol"},
		protocol.GameModeVotes{Mode: "duel", Slots: []int{0, 1}},
		protocol.LaunchCountdown{Number: 4, Mode: "duel", Included: []int{0, 1}, Status: engine.CountdownActive, DelayMillis: 1500},
		protocol.Inactive{Slot: 0},
		protocol.LaunchHalted{Number: 4},
		protocol.AuthToken{Mode: "duel", Slot: 2, Token: "t"},
		protocol.TextMessage{Slot: 2, Text: "gl hf"},
	)
	assert.Equal(t, "gl hf", receive(t, d.texts))

	v, err := n.View(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "carol", v.Lobby.Players[2].Name)
	assert.Equal(t, engine.StatusInactive, v.Lobby.Players[0].Status)
	require.Contains(t, v.Lobby.Countdowns, 4)
	cd := v.Lobby.Countdowns[4]
	assert.Equal(t, engine.CountdownHalted, cd.Status)
	assert.Equal(t, 1500*time.Millisecond, cd.Delay)
	assert.Equal(t, []int{0, 1}, cd.Included())
	owner, token, ok := v.Lobby.AuthOwner("duel")
	assert.True(t, ok)
	assert.Equal(t, 2, owner)
	assert.Equal(t, "t", token)

	h.send(protocol.PlayerQuit{Slot: 2}, protocol.LaunchAborted{Number: 4}, protocol.AuthTokenRevoke{Mode: "duel", Slot: 2})
	require.Eventually(t, func() bool {
		v, err := n.View(context.Background())
		if err != nil {
			return false
		}
		_, _, owned := v.Lobby.AuthOwner("duel")
		return len(v.Lobby.Countdowns) == 0 && !v.Lobby.Players[2].InLobby && !owned
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCommandsDroppedBeforeWelcome(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()

	n.Post(Vote{Mode: "duel"})
	_, err := n.View(t.Context())
	require.NoError(t, err)

	h.welcome()
	expect[protocol.PlayerName](h)
	expect[protocol.PersonalNonce](h)

	n.Post(SendText{Text: "marker"})
	assert.Equal(t, protocol.TextMessage{Slot: 1, Text: "marker"}, expect[protocol.TextMessage](h))

	n.Post(Vote{Mode: "duel"})
	n.Post(SetStatus{Status: engine.StatusInactive})
	assert.Equal(t, protocol.Vote{Slot: 1, Mode: "duel"}, expect[protocol.Vote](h))
	assert.Equal(t, protocol.Inactive{Slot: 1}, expect[protocol.Inactive](h))
}

func TestClientClientNegotiationConverges(t *testing.T) {
	pipe := transport.NewPipe()
	factory := func(side int) SlotFactory {
		return func(h transport.Handler) transport.Slot {
			end := pipe.End(side, h)
			t.Cleanup(end.Close)
			return end
		}
	}
	da := newDelegate()
	da.priorities = []int64{50, 70}
	db := newDelegate()
	db.priorities = []int64{50, 30}

	a := New(t.Context(), testConfig("a"), da, factory(0), nil)
	b := New(t.Context(), testConfig("b"), db, factory(1), nil)
	t.Cleanup(func() {
		a.StopNow()
		b.StopNow()
		<-a.Done()
		<-b.Done()
	})

	receive(t, da.becameHost)
	require.Eventually(t, func() bool { return da.Drawn() == 2 && db.Drawn() == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, db.becameHost)

	va, err := a.View(t.Context())
	require.NoError(t, err)
	assert.True(t, va.Yielded)
	vb, err := b.View(t.Context())
	require.NoError(t, err)
	assert.False(t, vb.Yielded)
	assert.False(t, vb.Accepted)
}

func TestHostViolationDropsConnection(t *testing.T) {
	d := newDelegate()
	_, h := newPair(t, testConfig("alice"), d)
	h.connect()
	expect[protocol.PreferredColor](h)
	expect[protocol.IAmClient](h)

	h.send(protocol.Vote{Slot: 0, Mode: "duel"})
	ev := h.next()
	assert.Equal(t, transport.StatusPeerDisconnected, ev.Status)
}

func TestLaunchHandsOffOpenConnection(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()
	h.welcome()

	role := protocol.LaunchAsDirectClient{
		LaunchTarget: protocol.LaunchTarget{Number: 3, Mode: "duel", Included: []int{0, 1}},
		Endpoint:     protocol.Endpoint{SessionNonce: "s", Address: "10.0.0.2:7000"},
	}
	h.send(role)

	assert.Equal(t, role, receive(t, d.launched))
	conn := receive(t, d.handedOff)
	assert.True(t, conn.IsConnected())
	receive(t, n.Done())
	assert.True(t, h.end.IsConnected())
}

func TestLaunchBeforeWelcomeIsViolation(t *testing.T) {
	d := newDelegate()
	_, h := newPair(t, testConfig("alice"), d)
	h.connect()
	expect[protocol.PreferredColor](h)
	expect[protocol.IAmClient](h)
	h.send(protocol.IAmHost{}, protocol.YouAreClient{}, protocol.LaunchAsAbsent{
		LaunchTarget: protocol.LaunchTarget{Number: 1, Mode: "duel", Included: []int{0}},
	})
	ev := h.next()
	assert.Equal(t, transport.StatusPeerDisconnected, ev.Status)
	assert.Empty(t, d.launched)
}

func TestKickThenReconnect(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()
	h.welcome()
	expect[protocol.PlayerName](h)
	expect[protocol.PersonalNonce](h)

	h.send(protocol.Kick{Slot: 1, Reason: "afk"})
	assert.Equal(t, "afk", receive(t, d.kicked))
	require.NoError(t, h.end.Disconnect())

	// the negotiator comes back after its reconnect delay
	h.connect()
	expect[protocol.PreferredColor](h)
	expect[protocol.IAmClient](h)
	assert.Equal(t, []int{1}, d.Failures())

	v, err := n.View(t.Context())
	require.NoError(t, err)
	assert.False(t, v.Welcomed)
}

func TestServerClosingForeverStops(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()
	h.welcome()

	h.send(protocol.ServerClosingForever{})
	assert.True(t, receive(t, d.closing))
	require.NoError(t, h.end.Disconnect())
	receive(t, n.Done())
	assert.Empty(t, d.Failures())
}

func TestStopSendsQuit(t *testing.T) {
	d := newDelegate()
	n, h := newPair(t, testConfig("alice"), d)
	h.connect()
	h.welcome()
	expect[protocol.PlayerName](h)
	expect[protocol.PersonalNonce](h)

	n.Stop()
	assert.Equal(t, protocol.PlayerQuit{Slot: 1}, expect[protocol.PlayerQuit](h))
	assert.Equal(t, transport.StatusPeerDisconnected, h.next().Status)
	receive(t, n.Done())
}
