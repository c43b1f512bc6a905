package signal

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Compile-time interface checks. The Channel side lives on the bound
// bus returned by For; the bus itself only carries Presence.
var (
	_ Channel  = (*boundBus)(nil)
	_ Presence = (*MemoryBus)(nil)
)

// ErrBusClosed is returned by MemoryBus operations after Close.
var ErrBusClosed = errors.New("signal bus closed")

const subscriberQueueSize = 256

// MemoryBus is an in-process Channel and Presence for one room. Sessions
// sharing the same MemoryBus can negotiate without any network, which is
// how the rtc tests run. Stored messages survive until cleared so that a
// late subscriber still sees them (replay-on-subscribe).
type MemoryBus struct {
	mu       sync.Mutex
	stored   map[string][]Envelope // recipient → messages, arrival order
	subs     map[string]*busSub    // recipient → subscriber
	roster   map[string]Participant
	watchers map[int]*rosterSub
	watchSeq int
	closed   bool
}

type busSub struct {
	queue chan Envelope
	done  chan struct{}
}

type rosterSub struct {
	queue chan []Participant
	done  chan struct{}
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		stored:   make(map[string][]Envelope),
		subs:     make(map[string]*busSub),
		roster:   make(map[string]Participant),
		watchers: make(map[int]*rosterSub),
	}
}

// Close stops all subscriptions and watchers.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.done)
	}
	for _, w := range b.watchers {
		close(w.done)
	}
	b.subs = make(map[string]*busSub)
	b.watchers = make(map[int]*rosterSub)
}

// SendFrom publishes a message with an explicit sender identity. Send on
// the Channel interface is identity-less; sessions use For to bind one.
func (b *MemoryBus) SendFrom(from, to string, msg Message) error {
	env := Envelope{From: from, Msg: msg}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	b.stored[to] = append(b.stored[to], env)
	if sub, ok := b.subs[to]; ok {
		select {
		case sub.queue <- env:
		default:
			// Subscriber hopelessly behind; drop rather than block the
			// sender. At-least-once applies to the stored copy only.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, self string, fn func(Envelope)) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}

	sub := &busSub{
		queue: make(chan Envelope, subscriberQueueSize),
		done:  make(chan struct{}),
	}
	b.subs[self] = sub

	go func() {
		for {
			select {
			case env := <-sub.queue:
				fn(env)
			case <-sub.done:
				return
			}
		}
	}()

	// Replay stored messages before anything new is delivered. The drain
	// goroutine is already running, so a backlog larger than the queue
	// cannot wedge the bus; holding the lock keeps later sends behind
	// the replay.
	for _, env := range b.stored[self] {
		sub.queue <- env
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if current, ok := b.subs[self]; ok && current == sub {
			delete(b.subs, self)
			close(sub.done)
		}
	}
	return cancel, nil
}

func (b *MemoryBus) Clear(_ context.Context, self, from string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.stored[self][:0]
	for _, env := range b.stored[self] {
		if env.From != from {
			kept = append(kept, env)
		}
	}
	if len(kept) == 0 {
		delete(b.stored, self)
	} else {
		b.stored[self] = kept
	}
	return nil
}

func (b *MemoryBus) Join(_ context.Context, p Participant) error {
	return b.upsert(p)
}

func (b *MemoryBus) Update(_ context.Context, p Participant) error {
	return b.upsert(p)
}

func (b *MemoryBus) upsert(p Participant) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.roster[p.ID] = p
	b.broadcastRosterLocked()
	return nil
}

func (b *MemoryBus) Leave(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.roster[id]; !ok {
		return nil
	}
	delete(b.roster, id)
	b.broadcastRosterLocked()
	return nil
}

func (b *MemoryBus) Watch(_ context.Context, fn func([]Participant)) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}

	w := &rosterSub{
		queue: make(chan []Participant, 16),
		done:  make(chan struct{}),
	}
	b.watchSeq++
	id := b.watchSeq
	b.watchers[id] = w
	w.queue <- b.rosterSnapshotLocked()
	b.mu.Unlock()

	go func() {
		for {
			select {
			case roster := <-w.queue:
				fn(roster)
			case <-w.done:
				return
			}
		}
	}()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if current, ok := b.watchers[id]; ok && current == w {
			delete(b.watchers, id)
			close(w.done)
		}
	}
	return cancel, nil
}

func (b *MemoryBus) broadcastRosterLocked() {
	snapshot := b.rosterSnapshotLocked()
	for _, w := range b.watchers {
		select {
		case w.queue <- snapshot:
		default:
		}
	}
}

func (b *MemoryBus) rosterSnapshotLocked() []Participant {
	snapshot := make([]Participant, 0, len(b.roster))
	for _, p := range b.roster {
		snapshot = append(snapshot, p)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// For binds a sender identity to the bus, yielding a Channel whose Send
// attributes messages to that identity.
func (b *MemoryBus) For(self string) Channel {
	return &boundBus{bus: b, self: self}
}

type boundBus struct {
	bus  *MemoryBus
	self string
}

func (c *boundBus) Send(_ context.Context, to string, msg Message) error {
	return c.bus.SendFrom(c.self, to, msg)
}

func (c *boundBus) Subscribe(ctx context.Context, self string, fn func(Envelope)) (func(), error) {
	return c.bus.Subscribe(ctx, self, fn)
}

func (c *boundBus) Clear(ctx context.Context, self, from string) error {
	return c.bus.Clear(ctx, self, from)
}
