package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
)

type memorySink struct {
	got []Envelope
	err error
}

func (m *memorySink) Publish(e Envelope) error {
	m.got = append(m.got, e)
	return m.err
}

func TestBusSequencesAndFansOut(t *testing.T) {
	clock := chain.NewManualClock(time.Unix(1_700_000_000, 0))
	bus := NewBus(clock, nil)
	sink := &memorySink{}
	bus.AddSink(sink)
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Emit(RunStarted{TokenID: 7, Room: 1})
	bus.Emit(WeekAdvanced{OldWeek: 1, NewWeek: 2})

	require.Len(t, sink.got, 2)
	assert.Equal(t, uint64(1), sink.got[0].Seq)
	assert.Equal(t, uint64(7), sink.got[0].TokenID)
	assert.Equal(t, uint64(0), sink.got[1].TokenID)
	assert.Equal(t, TypeWeekAdvanced, sink.got[1].Type)

	first := <-ch
	assert.Equal(t, TypeRunStarted, first.Type)
	assert.Equal(t, clock.Now(), first.Time)
	assert.Equal(t, uint64(2), bus.Seq())
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(nil, nil)
	bus.AddSink(&memorySink{err: errors.New("disk full")})
	ch, cancel := bus.Subscribe(1)
	bus.Emit(RunDied{TokenID: 1})
	bus.Emit(RunDied{TokenID: 2})
	cancel()
	cancel()

	var got []uint64
	for env := range ch {
		got = append(got, env.TokenID)
	}
	assert.Equal(t, []uint64{1}, got)
}

func TestDecodeRoundTrip(t *testing.T) {
	in := CardResolved{TokenID: 3, CardType: dungeon.CardTreasure, Room: 2, HP: 4, Gems: 9}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"card_type":"treasure"`)

	ev, err := Decode(TypeCardResolved, raw)
	require.NoError(t, err)
	assert.Equal(t, &in, ev)

	_, err = Decode("Bogus", raw)
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	Multi{&r, Discard}.Emit(RunPaused{TokenID: 1})
	r.Emit(RunExited{TokenID: 1, Score: 30})
	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(TypeRunExited), 1)
	assert.Equal(t, RunExited{TokenID: 1, Score: 30}, r.Last())
}
