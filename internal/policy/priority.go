// Package policy holds the decisions the lobby core leaves to its delegates:
// host priorities, colors, token checks, launch hosting and reconnect timing.
package policy

import (
	"math/rand/v2"
	"sync"
)

// Priority draws host priorities. Games hosted so far dominate the value so a
// proven host tends to win; the random low bits break ties between equals.
type Priority struct {
	mu     sync.Mutex
	rng    *rand.Rand
	hosted int
}

func NewPriority(hosted int, rng *rand.Rand) *Priority {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Priority{rng: rng, hosted: hosted}
}

func (p *Priority) Draw() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(p.hosted)<<32 | int64(p.rng.Uint32())
}

// Hosted records a game this device hosted.
func (p *Priority) Hosted() {
	p.mu.Lock()
	p.hosted++
	p.mu.Unlock()
}

// Palette hands out default colors by slot.
type Palette []uint32

var DefaultPalette = Palette{0xE6194B, 0x3CB44B, 0xFFE119, 0x4363D8, 0xF58231, 0x911EB4, 0x46F0F0, 0xF032E6}

func (p Palette) For(slot int) uint32 {
	if len(p) == 0 || slot < 0 {
		return 0
	}
	return p[slot%len(p)]
}
