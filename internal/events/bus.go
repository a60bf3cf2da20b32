package events

import (
	"io"
	"log"
	"sync"

	"github.com/afurourrego/dungeonflip/internal/chain"
)

// Emitter accepts events from a component after its state change commits.
type Emitter interface {
	Emit(Event)
}

// Sink receives every envelope synchronously, in sequence order.
type Sink interface {
	Publish(Envelope) error
}

// Discard drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Bus stamps events with a sequence number and fans them out. Sinks see
// every event; live subscribers get a buffered channel and are skipped
// when they fall behind.
type Bus struct {
	mu     sync.Mutex
	clock  chain.Clock
	seq    uint64
	sinks  []Sink
	subs   map[int]chan Envelope
	nextID int
	logger *log.Logger
}

// NewBus creates a bus. A nil logger discards sink failures.
func NewBus(clock chain.Clock, logger *log.Logger) *Bus {
	if clock == nil {
		clock = chain.SystemClock{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bus{clock: clock, subs: make(map[int]chan Envelope), logger: logger}
}

// AddSink registers a journal.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	env := Envelope{Seq: b.seq, Type: e.EventType(), Time: b.clock.Now(), Data: e}
	if ts, ok := e.(TokenScoped); ok {
		env.TokenID = ts.Token()
	}
	for _, s := range b.sinks {
		if err := s.Publish(env); err != nil {
			b.logger.Printf("sink publish failed: seq=%d type=%s err=%v", env.Seq, env.Type, err)
		}
	}
	for id, ch := range b.subs {
		select {
		case ch <- env:
		default:
			b.logger.Printf("subscriber lagging, dropped event: sub=%d seq=%d", id, env.Seq)
		}
	}
}

// Subscribe returns a channel of future envelopes and a cancel func that
// closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Envelope, buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Seq returns the last assigned sequence number.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// SetSeq resumes numbering after a restore.
func (b *Bus) SetSeq(seq uint64) {
	b.mu.Lock()
	b.seq = seq
	b.mu.Unlock()
}

// Recorder keeps every emitted event in memory. Tests and the simulator
// use it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// Multi fans one Emit out to several emitters.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}
