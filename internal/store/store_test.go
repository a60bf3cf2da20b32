package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/rewards"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "dungeon.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJournalAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	envs := []events.Envelope{
		{Seq: 1, Type: events.TypeRunStarted, TokenID: 4, Time: at, Data: events.RunStarted{TokenID: 4, Room: 1}},
		{Seq: 2, Type: events.TypeCardResolved, TokenID: 4, Time: at, Data: events.CardResolved{TokenID: 4, Room: 2, HP: 3}},
		{Seq: 3, Type: events.TypeRunStarted, TokenID: 9, Time: at, Data: events.RunStarted{TokenID: 9, Room: 1}},
		{Seq: 4, Type: events.TypeWeekAdvanced, Time: at, Data: events.WeekAdvanced{OldWeek: 1, NewWeek: 2}},
	}
	for _, env := range envs {
		if err := s.Publish(env); err != nil {
			t.Fatalf("Failed to publish seq %d: %v", env.Seq, err)
		}
	}

	// replays of a stored sequence are ignored
	if err := s.Publish(envs[0]); err != nil {
		t.Fatalf("Duplicate publish should be ignored, got %v", err)
	}

	all, err := s.ListEvents(ctx, EventsQuery{})
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(all))
	}
	if all[0].ID.String() == "" || all[0].Seq != 1 {
		t.Errorf("Unexpected first record: %+v", all[0])
	}

	byToken, err := s.ListEvents(ctx, EventsQuery{TokenID: 4})
	if err != nil {
		t.Fatalf("Failed to list token events: %v", err)
	}
	if len(byToken) != 2 {
		t.Errorf("Expected 2 events for token 4, got %d", len(byToken))
	}

	byType, err := s.ListEvents(ctx, EventsQuery{Type: events.TypeRunStarted, AfterSeq: 1})
	if err != nil {
		t.Fatalf("Failed to list typed events: %v", err)
	}
	if len(byType) != 1 || byType[0].TokenID != 9 {
		t.Errorf("Expected only token 9 RunStarted after seq 1, got %+v", byType)
	}

	ev, err := events.Decode(byToken[1].Type, byToken[1].Data)
	if err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if card := ev.(*events.CardResolved); card.HP != 3 || card.Room != 2 {
		t.Errorf("Decoded payload mismatch: %+v", card)
	}

	last, err := s.LastSeq(ctx)
	if err != nil {
		t.Fatalf("Failed to read last seq: %v", err)
	}
	if last != 4 {
		t.Errorf("Expected last seq 4, got %d", last)
	}
}

func TestLastSeqEmpty(t *testing.T) {
	s := openTestStore(t)
	last, err := s.LastSeq(context.Background())
	if err != nil {
		t.Fatalf("Failed to read last seq: %v", err)
	}
	if last != 0 {
		t.Errorf("Expected 0 on empty journal, got %d", last)
	}
}

func TestWeekHistoryIsImmutable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := chain.MustAddress("0x00000000000000000000000000000000000000a1")
	b := chain.MustAddress("0x00000000000000000000000000000000000000b2")

	h := rewards.WeekHistory{
		WeekNumber:    1,
		TotalPrize:    700,
		Winners:       []chain.Address{a, b, rewards.NoWinner},
		Amounts:       []uint64{490, 210, 0},
		Distributed:   true,
		DistributedAt: time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC),
	}
	if err := s.RecordWeek(ctx, h); err != nil {
		t.Fatalf("Failed to record week: %v", err)
	}
	changed := h
	changed.TotalPrize = 1
	if err := s.RecordWeek(ctx, changed); err != nil {
		t.Fatalf("Second record should be ignored, got %v", err)
	}

	got, ok, err := s.GetWeek(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Failed to load week: ok=%v err=%v", ok, err)
	}
	if got.TotalPrize != 700 || len(got.Winners) != 3 || got.Amounts[1] != 210 || !got.Distributed {
		t.Errorf("Unexpected week: %+v", got)
	}

	_, ok, err = s.GetWeek(ctx, 2)
	if err != nil || ok {
		t.Errorf("Expected missing week 2, ok=%v err=%v", ok, err)
	}

	var buf bytes.Buffer
	if err := s.ExportPayoutsCSV(ctx, &buf); err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header + 2 rows without the sentinel slot, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "1,1,"+string(a)+",490,") {
		t.Errorf("Unexpected first row: %s", lines[1])
	}
}
