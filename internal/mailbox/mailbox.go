// Package mailbox is the ordered inbox every actor in this module drains from
// its single control goroutine.
//
// Posting never blocks. Delayed events are kept in a min-heap and carry a Key,
// so a state transition can cancel (or replace) a timer it armed earlier
// without scanning the queue. A timer that already fell due but was not yet
// handed out is cancelled too: it is skipped when it reaches the front.
package mailbox

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("mailbox closed")

// Key names a delayed event, e.g. {"negotiation", 3} for slot 3's grace timer.
type Key struct {
	Kind string
	ID   int
}

type Mailbox[E any] struct {
	mu      sync.Mutex
	queue   []entry[E]
	timers  timerHeap[E]
	pending map[Key]*timer[E]
	// armed holds the live sequence number per key, whether the timer is
	// still in the heap or already queued.
	armed  map[Key]uint64
	seq    uint64
	wake   chan struct{}
	closed bool
}

type entry[E any] struct {
	event E
	key   Key
	seq   uint64
	timed bool
}

func New[E any]() *Mailbox[E] {
	return &Mailbox[E]{
		pending: make(map[Key]*timer[E]),
		armed:   make(map[Key]uint64),
		wake:    make(chan struct{}, 1),
	}
}

// Post appends e to the queue. It reports false once the mailbox is closed.
func (m *Mailbox[E]) Post(e E) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, entry[E]{event: e})
	m.mu.Unlock()
	m.signal()
	return true
}

// PostAfter delivers e once d has elapsed. A pending event with the same key
// is replaced.
func (m *Mailbox[E]) PostAfter(key Key, d time.Duration, e E) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if old, ok := m.pending[key]; ok {
		heap.Remove(&m.timers, old.index)
	}
	m.seq++
	t := &timer[E]{key: key, at: time.Now().Add(d), seq: m.seq, event: e}
	heap.Push(&m.timers, t)
	m.pending[key] = t
	m.armed[key] = t.seq
	m.mu.Unlock()
	m.signal()
	return true
}

// Cancel drops the delayed event registered under key, if any.
func (m *Mailbox[E]) Cancel(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.armed[key]; !ok {
		return false
	}
	delete(m.armed, key)
	if t, ok := m.pending[key]; ok {
		heap.Remove(&m.timers, t.index)
		delete(m.pending, key)
	}
	return true
}

// Pending reports whether a delayed event is armed under key.
func (m *Mailbox[E]) Pending(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.armed[key]
	return ok
}

// Next blocks until an event is ready, ctx is done or the mailbox is closed.
// Due timers are moved behind whatever was already queued.
func (m *Mailbox[E]) Next(ctx context.Context) (E, error) {
	var zero E
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return zero, ErrClosed
		}
		now := time.Now()
		for len(m.timers) > 0 && !m.timers[0].at.After(now) {
			t := heap.Pop(&m.timers).(*timer[E])
			delete(m.pending, t.key)
			m.queue = append(m.queue, entry[E]{event: t.event, key: t.key, seq: t.seq, timed: true})
		}
		var e entry[E]
		found := false
		for len(m.queue) > 0 && !found {
			e = m.queue[0]
			m.queue[0] = entry[E]{}
			m.queue = m.queue[1:]
			found = !e.timed || m.armed[e.key] == e.seq
		}
		if found {
			if e.timed {
				delete(m.armed, e.key)
			}
			m.mu.Unlock()
			return e.event, nil
		}
		var wait <-chan time.Time
		var tm *time.Timer
		if len(m.timers) > 0 {
			tm = time.NewTimer(m.timers[0].at.Sub(now))
			wait = tm.C
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			if tm != nil {
				tm.Stop()
			}
			return zero, ctx.Err()
		case <-m.wake:
		case <-wait:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// Close discards everything queued or scheduled and wakes any waiter.
func (m *Mailbox[E]) Close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.timers = nil
	clear(m.pending)
	clear(m.armed)
	m.mu.Unlock()
	m.signal()
}

func (m *Mailbox[E]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

type timer[E any] struct {
	key   Key
	at    time.Time
	seq   uint64
	event E
	index int
}

type timerHeap[E any] []*timer[E]

func (h timerHeap[E]) Len() int { return len(h) }

func (h timerHeap[E]) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap[E]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap[E]) Push(x any) {
	t := x.(*timer[E])
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap[E]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	t.index = -1
	return t
}
