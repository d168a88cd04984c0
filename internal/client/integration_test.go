package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/host"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

type lanHost struct{}

func (lanHost) GameModes() []engine.GameMode {
	return []engine.GameMode{{Name: "duel", MinPlayers: 2, MaxPlayers: 2}}
}

func (lanHost) HostPriority() int64                      { return 1 }
func (lanHost) DefaultColor(slot int) engine.Color       { return engine.Color(slot) }
func (lanHost) ShouldBecomeClient(int)                   {}
func (lanHost) Launched(protocol.Message)                {}
func (lanHost) TextMessage(int, string)                  {}
func (lanHost) VerifyAuthToken(string, int, string) bool { return true }

func (lanHost) HostingInfo(req host.LaunchRequest) (host.HostingInfo, error) {
	return host.HostingInfo{HostSlot: req.Included[0], SessionNonce: "game-1", Address: "192.168.1.10:7000"}, nil
}

func TestClientsLaunchThroughRealHost(t *testing.T) {
	pipes := map[int]*transport.Pipe{1: transport.NewPipe(), 2: transport.NewPipe()}
	coord, err := host.New(t.Context(), host.Config{
		LobbyName:          "lan",
		OwnerName:          "Owner",
		OwnerSlot:          0,
		MaxPlayers:         3,
		NegotiationTimeout: time.Second,
		DisconnectGrace:    20 * time.Millisecond,
		ReconnectDelay:     10 * time.Millisecond,
		CountdownDelay:     30 * time.Millisecond,
		RetryBackoff:       10 * time.Millisecond,
	}, lanHost{}, func(index int, h transport.Handler) transport.Slot {
		end := pipes[index].End(0, h)
		t.Cleanup(end.Close)
		return end
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		coord.StopNow()
		<-coord.Done()
	})

	join := func(slot int, name string) (*Negotiator, *fakeDelegate) {
		d := newDelegate()
		n := New(t.Context(), testConfig(name), d, func(h transport.Handler) transport.Slot {
			end := pipes[slot].End(1, h)
			t.Cleanup(end.Close)
			return end
		}, zaptest.NewLogger(t))
		t.Cleanup(func() {
			n.StopNow()
			<-n.Done()
		})
		assert.Equal(t, slot, receive(t, d.welcomed))
		return n, d
	}
	alice, da := join(1, "alice")
	bob, db := join(2, "bob")

	require.Eventually(t, func() bool {
		v, err := alice.View(t.Context())
		return err == nil && v.Lobby.Players[2].Name == "bob"
	}, 2*time.Second, 5*time.Millisecond)

	alice.Post(Vote{Mode: "duel"})
	bob.Post(Vote{Mode: "duel"})

	target := protocol.LaunchTarget{Number: 1, Mode: "duel", Included: []int{1, 2}}
	endpoint := protocol.Endpoint{SessionNonce: "game-1", Address: "192.168.1.10:7000"}
	assert.Equal(t, protocol.LaunchAsDirectHost{LaunchTarget: target, Endpoint: endpoint}, receive(t, da.launched))
	assert.Equal(t, protocol.LaunchAsDirectClient{LaunchTarget: target, Endpoint: endpoint}, receive(t, db.launched))
	receive(t, da.handedOff)
	receive(t, db.handedOff)
	receive(t, bob.Done())
}
