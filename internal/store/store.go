// Package store journals ledger events and settled weeks to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/rewards"
)

// --------- Data models ---------

// EventRecord is one journaled event.
type EventRecord struct {
	ID         uuid.UUID       `json:"id"`
	Seq        uint64          `json:"seq"`
	Type       events.Type     `json:"type"`
	TokenID    uint64          `json:"token_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// EventsQuery filters ListEvents. Zero values mean "any".
type EventsQuery struct {
	TokenID  uint64
	Type     events.Type
	AfterSeq uint64
	Limit    int
}

// --------- Store ---------

type Store struct {
	db *sql.DB
}

// New opens/creates a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&cache=shared", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL UNIQUE,
			type TEXT NOT NULL,
			token_id INTEGER NOT NULL DEFAULT 0,
			occurred_at TIMESTAMP NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_token_seq ON events(token_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_seq ON events(type, seq);`,

		`CREATE TABLE IF NOT EXISTS week_history (
			week INTEGER PRIMARY KEY,
			total_prize INTEGER NOT NULL,
			carried_over INTEGER NOT NULL,
			winners TEXT NOT NULL,
			amounts TEXT NOT NULL,
			distributed_at TIMESTAMP NOT NULL
		);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Events ---------

// Publish journals an envelope. It satisfies events.Sink.
func (s *Store) Publish(env events.Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.AppendEvent(ctx, env)
	return err
}

// AppendEvent stores env under a fresh id. Replays of a sequence number
// already stored are ignored.
func (s *Store) AppendEvent(ctx context.Context, env events.Envelope) (uuid.UUID, error) {
	data, err := json.Marshal(env.Data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	id := uuid.New()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events(id, seq, type, token_id, occurred_at, data)
		VALUES(?, ?, ?, ?, ?, ?)`,
		id.String(), int64(env.Seq), string(env.Type), int64(env.TokenID), env.Time.UTC(), string(data))
	if err != nil {
		if isConstraintErr(err) {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return id, nil
}

// ListEvents returns events in ascending sequence order.
func (s *Store) ListEvents(ctx context.Context, q EventsQuery) ([]EventRecord, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	where := []string{"seq > ?"}
	args := []any{int64(q.AfterSeq)}
	if q.TokenID > 0 {
		where = append(where, "token_id = ?")
		args = append(args, int64(q.TokenID))
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, type, token_id, occurred_at, data
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY seq ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			r       EventRecord
			idStr   string
			seq     int64
			typ     string
			tokenID int64
			data    string
		)
		if err := rows.Scan(&idStr, &seq, &typ, &tokenID, &r.OccurredAt, &data); err != nil {
			return nil, err
		}
		r.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		r.Seq = uint64(seq)
		r.Type = events.Type(typ)
		r.TokenID = uint64(tokenID)
		r.Data = json.RawMessage(data)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastSeq returns the highest journaled sequence number, 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq.Int64), nil
}

// --------- Week history ---------

// RecordWeek stores a settled week. History is immutable: a second write
// for the same week is ignored. It satisfies rewards.HistoryRecorder.
func (s *Store) RecordWeek(ctx context.Context, h rewards.WeekHistory) error {
	winners, err := json.Marshal(h.Winners)
	if err != nil {
		return err
	}
	amounts, err := json.Marshal(h.Amounts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO week_history(week, total_prize, carried_over, winners, amounts, distributed_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(week) DO NOTHING`,
		int64(h.WeekNumber), int64(h.TotalPrize), int64(h.CarriedOver), string(winners), string(amounts), h.DistributedAt.UTC())
	return err
}

// GetWeek loads one settled week.
func (s *Store) GetWeek(ctx context.Context, week uint64) (rewards.WeekHistory, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT week, total_prize, carried_over, winners, amounts, distributed_at
		FROM week_history WHERE week=?`, int64(week))
	h, err := scanWeek(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rewards.WeekHistory{}, false, nil
	}
	return h, err == nil, err
}

// ListWeeks returns settled weeks, newest first.
func (s *Store) ListWeeks(ctx context.Context, limit int) ([]rewards.WeekHistory, error) {
	if limit <= 0 || limit > 520 {
		limit = 52
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT week, total_prize, carried_over, winners, amounts, distributed_at
		FROM week_history ORDER BY week DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rewards.WeekHistory
	for rows.Next() {
		h, err := scanWeek(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ExportPayoutsCSV writes one line per paid slot of every settled week.
func (s *Store) ExportPayoutsCSV(ctx context.Context, w io.Writer) error {
	if _, err := io.WriteString(w, "week,rank,winner,amount,distributed_at\n"); err != nil {
		return err
	}
	weeks, err := s.ListWeeks(ctx, 520)
	if err != nil {
		return err
	}
	for i := len(weeks) - 1; i >= 0; i-- {
		h := weeks[i]
		for rank, winner := range h.Winners {
			if rank >= len(h.Amounts) {
				break
			}
			if winner == rewards.NoWinner {
				continue
			}
			line := fmt.Sprintf("%d,%d,%s,%d,%s\n",
				h.WeekNumber, rank+1, winner, h.Amounts[rank], h.DistributedAt.UTC().Format(time.RFC3339))
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// --------- helpers ---------

type scanner interface {
	Scan(dest ...any) error
}

func scanWeek(row scanner) (rewards.WeekHistory, error) {
	var (
		h                     rewards.WeekHistory
		week, total, carried  int64
		winnersJSON, amtsJSON string
	)
	if err := row.Scan(&week, &total, &carried, &winnersJSON, &amtsJSON, &h.DistributedAt); err != nil {
		return h, err
	}
	h.WeekNumber = uint64(week)
	h.TotalPrize = uint64(total)
	h.CarriedOver = uint64(carried)
	h.Distributed = true
	if err := json.Unmarshal([]byte(winnersJSON), &h.Winners); err != nil {
		return h, fmt.Errorf("week %d winners: %w", week, err)
	}
	if err := json.Unmarshal([]byte(amtsJSON), &h.Amounts); err != nil {
		return h, fmt.Errorf("week %d amounts: %w", week, err)
	}
	if h.Winners == nil {
		h.Winners = []chain.Address{}
	}
	return h, nil
}

func isConstraintErr(err error) bool {
	// modernc sqlite returns errors with messages containing "constraint failed"
	// or "UNIQUE constraint failed". Use substring match.
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}
