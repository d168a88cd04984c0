package host

import (
	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

type SlotView struct {
	Index       int
	Status      transport.Status
	Negotiating bool
	Accepted    bool
	Yielded     bool
	TearingDown bool
}

// View is a point-in-time copy of the coordinator's state.
type View struct {
	Lobby engine.Lobby
	Slots []SlotView
}

func (c *Coordinator) view() View {
	v := View{Lobby: c.lobby.Clone(), Slots: make([]SlotView, 0, len(c.peers))}
	for _, p := range c.peers {
		if p == nil {
			continue
		}
		v.Slots = append(v.Slots, SlotView{
			Index:       p.index,
			Status:      p.status,
			Negotiating: p.negotiating,
			Accepted:    p.accepted,
			Yielded:     p.yielded,
			TearingDown: p.tearingDown,
		})
	}
	return v
}

// Slot returns the view of slot index, if it is a network slot.
func (v View) Slot(index int) (SlotView, bool) {
	for _, s := range v.Slots {
		if s.Index == index {
			return s, true
		}
	}
	return SlotView{}, false
}
