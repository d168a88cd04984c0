package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

func TestWelcomeSequenceOrder(t *testing.T) {
	h := newHarness(t, testConfig(3), newDelegate(duel, skirmish))

	first := h.join(1)
	first.send(protocol.PlayerName{Slot: 1, Name: "  Alice "})
	first.send(protocol.PersonalNonce{Slot: 1, Nonce: "nonce-1"})
	h.coord.Post(Vote{Mode: "skirmish"})
	h.eventually(func(v View) bool {
		p := v.Lobby.Players[1]
		return p.Name == "Alice" && p.Nonce == "nonce-1" && v.Lobby.Players[0].Votes["skirmish"]
	})

	second := h.dial(2)
	expect[protocol.IAmHost](second)
	second.send(protocol.PreferredColor{Slot: protocol.Unassigned, Color: 0xff0000})
	second.send(protocol.IAmClient{})
	welcome := second.readWelcome()

	assert.Equal(t, []protocol.Kind{
		protocol.KindYouAreClient,
		protocol.KindHost,
		protocol.KindLobbyStatus,
		protocol.KindTotalPlayerSlots,
		protocol.KindPersonalPlayerSlot,
		protocol.KindGameModeList,
		protocol.KindGameModeXML,
		protocol.KindGameModeXML,
		protocol.KindPlayerName,
		protocol.KindPlayerName,
		protocol.KindPersonalNonce,
		protocol.KindGameModeVotes,
		protocol.KindPreferredColor,
		protocol.KindPreferredColor,
		protocol.KindPreferredColor,
		protocol.KindPlayersInLobby,
		protocol.KindPlayerStatuses,
		protocol.KindWelcomeToServer,
	}, kinds(welcome))

	assert.Equal(t, protocol.Host{Slot: 0, Name: "Host"}, welcome[1])
	assert.Equal(t, protocol.PersonalPlayerSlot{Slot: 2}, welcome[4])
	assert.Equal(t, protocol.GameModeXML{Mode: "duel", XML: "<mode>duel</mode>"}, welcome[6])
	assert.Equal(t, protocol.PlayerName{Slot: 1, Name: "Alice"}, welcome[9])
	assert.Equal(t, protocol.GameModeVotes{Mode: "skirmish", Slots: []int{0}}, welcome[11])
	assert.Equal(t, protocol.PreferredColor{Slot: 2, Color: 0xff0000}, welcome[14], "own color comes last")
	assert.Equal(t, protocol.PlayersInLobby{Slots: []int{0, 1, 2}}, welcome[15])

	// the existing client learns about the newcomer
	assert.Equal(t, protocol.PreferredColor{Slot: 2, Color: 0xff0000}, waitFor[protocol.PreferredColor](first))
	assert.Equal(t, protocol.PlayersInLobby{Slots: []int{0, 1, 2}}, expect[protocol.PlayersInLobby](first))
}

func TestUnassignedColorAfterAcceptBelongsToSender(t *testing.T) {
	h := newHarness(t, testConfig(3), newDelegate(duel))
	first := h.join(1)

	// A client that declares itself before sending its color.
	second := h.dial(2)
	expect[protocol.IAmHost](second)
	second.send(protocol.IAmClient{})
	second.readWelcome()
	second.send(protocol.PreferredColor{Slot: protocol.Unassigned, Color: 0x00ff00})

	waitFor[protocol.PlayerStatuses](first)
	assert.Equal(t, protocol.PreferredColor{Slot: 2, Color: 0x00ff00}, expect[protocol.PreferredColor](first))
	h.eventually(func(v View) bool {
		s, ok := v.Slot(2)
		return ok && s.Accepted && v.Lobby.Players[2].Color == 0x00ff00
	})
}

func TestRewelcomeRepeatsSnapshot(t *testing.T) {
	h := newHarness(t, testConfig(2), newDelegate(duel))
	rc := h.dial(1)
	expect[protocol.IAmHost](rc)
	rc.send(protocol.IAmClient{})
	first := rc.readWelcome()

	rc.send(protocol.RewelcomeRequest{})
	second := rc.readWelcome()

	require.Equal(t, kinds(first), kinds(second))
	for i := range first {
		if _, ok := first[i].(protocol.LobbyStatus); ok {
			continue
		}
		assert.Equal(t, first[i], second[i])
	}
}

func TestNegotiationTimeoutDropsSilentPeer(t *testing.T) {
	cfg := testConfig(2)
	cfg.NegotiationTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg, newDelegate(duel))

	rc := h.dial(1)
	expect[protocol.IAmHost](rc)
	rc.expectStatus(transport.StatusPeerDisconnected)
	require.Equal(t, transport.EventDoneReceiving, rc.next().Type)

	// the slot is offered again
	require.NoError(t, rc.end.Connect())
	rc.expectStatus(transport.StatusConnected)
	expect[protocol.IAmHost](rc)
}

func TestNegotiationViolationKicks(t *testing.T) {
	h := newHarness(t, testConfig(2), newDelegate(duel))
	rc := h.dial(1)
	expect[protocol.IAmHost](rc)

	rc.send(protocol.Vote{Slot: 1, Mode: "duel"})
	kick := expect[protocol.Kick](rc)
	assert.Equal(t, 1, kick.Slot)
	rc.expectStatus(transport.StatusPeerDisconnected)

	v, err := h.coord.View(t.Context())
	require.NoError(t, err)
	assert.False(t, v.Lobby.Players[1].InLobby)
}

func TestClientSpeakingForAnotherSlotIsKicked(t *testing.T) {
	h := newHarness(t, testConfig(3), newDelegate(duel))
	bystander := h.join(2)
	rc := h.join(1)

	rc.send(protocol.Vote{Slot: 2, Mode: "duel"})
	waitFor[protocol.Kick](rc)

	assert.Equal(t, protocol.PlayerQuit{Slot: 1}, waitFor[protocol.PlayerQuit](bystander))
	h.eventually(func(v View) bool { return !v.Lobby.Players[1].InLobby && len(v.Lobby.Voters("duel")) == 0 })
}

func TestUnknownModeIsViolation(t *testing.T) {
	h := newHarness(t, testConfig(2), newDelegate(duel))
	rc := h.join(1)
	rc.send(protocol.Vote{Slot: 1, Mode: "chess"})
	waitFor[protocol.Kick](rc)
}

func TestHostPriorityTieDrawsAgain(t *testing.T) {
	d := newDelegate(duel)
	d.priorities = []int64{50, 70}
	h := newHarness(t, testConfig(2), d)

	rc := h.dial(1)
	expect[protocol.IAmHost](rc)
	rc.send(protocol.IAmHost{})
	assert.Equal(t, protocol.HostPriority{Value: 50}, expect[protocol.HostPriority](rc))

	rc.send(protocol.HostPriority{Value: 50})
	assert.Equal(t, protocol.HostPriority{Value: 70}, expect[protocol.HostPriority](rc))

	// outranked: the host waits for us to give in
	rc.send(protocol.HostPriority{Value: 30})
	rc.send(protocol.IAmClient{})
	expect[protocol.YouAreClient](rc)
	assert.Equal(t, 2, d.Drawn())
}

func TestHostPriorityWithoutHostClaimIsViolation(t *testing.T) {
	h := newHarness(t, testConfig(2), newDelegate(duel))
	rc := h.dial(1)
	expect[protocol.IAmHost](rc)
	rc.send(protocol.HostPriority{Value: 5})
	expect[protocol.Kick](rc)
}

func TestOutrankedHostYields(t *testing.T) {
	d := newDelegate(duel)
	d.priorities = []int64{10}
	h := newHarness(t, testConfig(2), d)

	rc := h.dial(1)
	expect[protocol.IAmHost](rc)
	rc.send(protocol.IAmHost{})
	expect[protocol.HostPriority](rc)
	rc.send(protocol.HostPriority{Value: 20})

	select {
	case slot := <-d.yielded:
		assert.Equal(t, 1, slot)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not yield")
	}
	h.eventually(func(v View) bool {
		s, ok := v.Slot(1)
		return ok && s.Yielded && !s.Negotiating
	})
}

func TestTwoCoordinatorsConverge(t *testing.T) {
	pipe := transport.NewPipe()
	factory := func(side int) SlotFactory {
		return func(index int, h transport.Handler) transport.Slot {
			end := pipe.End(side, h)
			t.Cleanup(end.Close)
			return end
		}
	}
	da := newDelegate(duel)
	da.priorities = []int64{50, 70}
	db := newDelegate(duel)
	db.priorities = []int64{50, 30}

	a, err := New(t.Context(), testConfig(2), da, factory(0), nil)
	require.NoError(t, err)
	b, err := New(t.Context(), testConfig(2), db, factory(1), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.StopNow()
		b.StopNow()
		<-a.Done()
		<-b.Done()
	})

	select {
	case slot := <-db.yielded:
		assert.Equal(t, 1, slot)
	case <-time.After(2 * time.Second):
		t.Fatal("lower priority coordinator did not yield")
	}
	assert.Empty(t, da.yielded)
	require.Eventually(t, func() bool { return da.Drawn() == 2 && db.Drawn() == 2 }, time.Second, 5*time.Millisecond)

	va, err := a.View(t.Context())
	require.NoError(t, err)
	s, _ := va.Slot(1)
	assert.True(t, s.Negotiating)
	assert.False(t, s.Yielded)
}

func TestDisconnectDuringCountdownAnnouncesQuitFirst(t *testing.T) {
	h := newHarness(t, testConfig(3), newDelegate(duel))
	stays := h.join(1)
	leaves := h.join(2)

	stays.send(protocol.Vote{Slot: 1, Mode: "duel"})
	leaves.send(protocol.Vote{Slot: 2, Mode: "duel"})
	cd := waitFor[protocol.LaunchCountdown](stays)
	assert.Equal(t, []int{1, 2}, cd.Included)
	assert.Equal(t, engine.CountdownActive, cd.Status)

	require.NoError(t, leaves.end.Disconnect())

	assert.Equal(t, protocol.PlayerQuit{Slot: 2}, waitFor[protocol.PlayerQuit](stays))
	assert.Equal(t, protocol.PlayersInLobby{Slots: []int{0, 1}}, expect[protocol.PlayersInLobby](stays))
	expect[protocol.PlayerStatuses](stays)
	assert.Equal(t, protocol.LaunchAborted{Number: cd.Number}, expect[protocol.LaunchAborted](stays))
	assert.Equal(t, protocol.GameModeVotes{Mode: "duel", Slots: []int{1}}, expect[protocol.GameModeVotes](stays))
}

func TestInactiveMemberHaltsCountdown(t *testing.T) {
	h := newHarness(t, testConfig(3), newDelegate(duel))
	a := h.join(1)
	b := h.join(2)
	a.send(protocol.Vote{Slot: 1, Mode: "duel"})
	b.send(protocol.Vote{Slot: 2, Mode: "duel"})
	cd := waitFor[protocol.LaunchCountdown](a)

	b.send(protocol.Inactive{Slot: 2})
	assert.Equal(t, protocol.Inactive{Slot: 2}, waitFor[protocol.Inactive](a))
	assert.Equal(t, protocol.LaunchHalted{Number: cd.Number}, expect[protocol.LaunchHalted](a))

	b.send(protocol.Active{Slot: 2})
	waitFor[protocol.Active](a)
	resumed := expect[protocol.LaunchCountdown](a)
	assert.Equal(t, cd.Number, resumed.Number)
	assert.Equal(t, engine.CountdownActive, resumed.Status)
}

func TestLaunchHandsOutRoles(t *testing.T) {
	cfg := testConfig(4)
	cfg.CountdownDelay = 30 * time.Millisecond
	d := newDelegate(duel)
	h := newHarness(t, cfg, d)
	gameHost := h.join(1)
	gameClient := h.join(2)
	absent := h.join(3)

	gameHost.send(protocol.Vote{Slot: 1, Mode: "duel"})
	gameClient.send(protocol.Vote{Slot: 2, Mode: "duel"})

	target := protocol.LaunchTarget{Number: 1, Mode: "duel", Included: []int{1, 2}}
	endpoint := protocol.Endpoint{SessionNonce: "session", Address: "127.0.0.1:7000"}
	assert.Equal(t, protocol.LaunchAsDirectHost{LaunchTarget: target, Endpoint: endpoint}, waitFor[protocol.LaunchAsDirectHost](gameHost))
	assert.Equal(t, protocol.LaunchAsDirectClient{LaunchTarget: target, Endpoint: endpoint}, waitFor[protocol.LaunchAsDirectClient](gameClient))
	assert.Equal(t, protocol.LaunchAsAbsent{LaunchTarget: target}, waitFor[protocol.LaunchAsAbsent](absent))

	select {
	case m := <-d.launched:
		assert.Equal(t, protocol.LaunchAsAbsent{LaunchTarget: target}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("owner was not told about the launch")
	}

	h.eventually(func(v View) bool {
		return len(v.Lobby.Countdowns) == 0 && len(v.Lobby.Voters("duel")) == 0 && !v.Lobby.LastLaunch.IsZero()
	})
}

func TestLaunchFailureRetriesWithBackoff(t *testing.T) {
	cfg := testConfig(3)
	cfg.CountdownDelay = 20 * time.Millisecond
	cfg.RetryBackoff = 10 * time.Millisecond
	d := newDelegate(duel)
	d.failFirst = true
	h := newHarness(t, cfg, d)
	a := h.join(1)
	b := h.join(2)

	a.send(protocol.Vote{Slot: 1, Mode: "duel"})
	b.send(protocol.Vote{Slot: 2, Mode: "duel"})

	assert.Equal(t, protocol.LaunchFailed{Number: 1, Mode: "duel"}, waitFor[protocol.LaunchFailed](a))
	assert.Equal(t, protocol.LaunchAborted{Number: 1}, expect[protocol.LaunchAborted](a))
	retry := expect[protocol.LaunchCountdown](a)
	assert.Equal(t, 2, retry.Number)
	assert.Equal(t, 1, retry.Attempt)
	assert.Equal(t, int64(30), retry.DelayMillis)

	launched := waitFor[protocol.LaunchAsDirectHost](a)
	assert.Equal(t, 2, launched.Number)
}

func TestAuthTokenGatesMode(t *testing.T) {
	ranked := engine.GameMode{Name: "ranked", MinPlayers: 2, MaxPlayers: 2, NeedsAuth: true}
	h := newHarness(t, testConfig(3), newDelegate(ranked))
	a := h.join(1)
	b := h.join(2)

	a.send(protocol.Vote{Slot: 1, Mode: "ranked"})
	b.send(protocol.Vote{Slot: 2, Mode: "ranked"})
	h.eventually(func(v View) bool { return len(v.Lobby.Voters("ranked")) == 2 })
	h.eventually(func(v View) bool { return len(v.Lobby.Countdowns) == 0 })

	b.send(protocol.AuthToken{Mode: "ranked", Slot: 2, Token: "bad"})
	a.send(protocol.AuthToken{Mode: "ranked", Slot: 1, Token: "good"})
	assert.Equal(t, protocol.AuthToken{Mode: "ranked", Slot: 1, Token: "good"}, waitFor[protocol.AuthToken](b))
	cd := expect[protocol.LaunchCountdown](b)
	assert.Equal(t, []int{1, 2}, cd.Included)

	a.send(protocol.AuthTokenRevoke{Mode: "ranked", Slot: 1})
	assert.Equal(t, protocol.LaunchAborted{Number: cd.Number}, waitFor[protocol.LaunchAborted](b))
}

func TestOwnerCommands(t *testing.T) {
	d := newDelegate(duel)
	h := newHarness(t, testConfig(3), d)
	a := h.join(1)
	b := h.join(2)

	h.coord.Post(SetName{Name: "Boss"})
	assert.Equal(t, protocol.PlayerName{Slot: 0, Name: "Boss"}, waitFor[protocol.PlayerName](a))
	assert.Equal(t, protocol.Host{Slot: 0, Name: "Boss"}, expect[protocol.Host](a))

	h.coord.Post(SendText{Text: "hello"})
	assert.Equal(t, protocol.TextMessage{Slot: 0, Text: "hello"}, waitFor[protocol.TextMessage](a))

	b.send(protocol.TextMessage{Slot: 2, Text: "hi all"})
	assert.Equal(t, protocol.TextMessage{Slot: 2, Text: "hi all"}, waitFor[protocol.TextMessage](a))
	select {
	case text := <-d.texts:
		assert.Equal(t, "hi all", text)
	case <-time.After(2 * time.Second):
		t.Fatal("owner did not see the chat")
	}

	h.coord.Post(Kick{Slot: 2, Reason: "afk"})
	assert.Equal(t, protocol.Kick{Slot: 2, Reason: "afk"}, waitFor[protocol.Kick](b))
	assert.Equal(t, protocol.PlayerQuit{Slot: 2}, waitFor[protocol.PlayerQuit](a))
}

func TestOwnerVoteStartsCountdown(t *testing.T) {
	h := newHarness(t, testConfig(2), newDelegate(duel))
	a := h.join(1)
	h.coord.Post(Vote{Mode: "duel"})
	a.send(protocol.Vote{Slot: 1, Mode: "duel"})
	cd := waitFor[protocol.LaunchCountdown](a)
	assert.Equal(t, []int{0, 1}, cd.Included)
}

func TestStopForeverNotifiesClients(t *testing.T) {
	h := newHarness(t, testConfig(2), newDelegate(duel))
	rc := h.join(1)

	h.coord.Stop(true)
	expect[protocol.ServerClosingForever](rc)
	rc.expectStatus(transport.StatusPeerDisconnected)
	select {
	case <-h.coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.False(t, h.coord.Post(Vote{Mode: "duel"}))
}
