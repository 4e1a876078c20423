package auditdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"phoenixescrow/core"
	"phoenixescrow/core/types"
	"phoenixescrow/crypto"
)

// Store is an append-only SQLite journal of committed commands, the events
// they emitted and the transfers they executed.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS commands (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            command TEXT NOT NULL,
            auction_id INTEGER NOT NULL,
            caller TEXT NOT NULL,
            code TEXT NOT NULL,
            executed_at INTEGER NOT NULL,
            recorded_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS commands_auction ON commands(auction_id, sequence);`,
		`CREATE TABLE IF NOT EXISTS events (
            command_sequence INTEGER NOT NULL,
            position INTEGER NOT NULL,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            PRIMARY KEY(command_sequence, position)
        );`,
		`CREATE TABLE IF NOT EXISTS transfers (
            command_sequence INTEGER NOT NULL,
            position INTEGER NOT NULL,
            recipient TEXT NOT NULL,
            denom TEXT NOT NULL,
            amount TEXT NOT NULL,
            reason TEXT NOT NULL,
            PRIMARY KEY(command_sequence, position)
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("auditdb: init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements core.Journal.
func (s *Store) Append(ctx context.Context, receipt *core.Receipt) (err error) {
	if receipt == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO commands(command, auction_id, caller, code, executed_at, recorded_at) VALUES(?, ?, ?, ?, ?, ?)`,
		receipt.Command, int64(receipt.AuctionID), crypto.FromRaw(receipt.Caller).String(), receipt.Code,
		receipt.Timestamp, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("auditdb: insert command: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, evt := range receipt.Events {
		if evt == nil {
			continue
		}
		payload, err := json.Marshal(evt.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events(command_sequence, position, type, payload) VALUES(?, ?, ?, ?)`,
			seq, i, evt.Type, string(payload)); err != nil {
			return fmt.Errorf("auditdb: insert event: %w", err)
		}
	}
	for i, t := range receipt.Transfers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transfers(command_sequence, position, recipient, denom, amount, reason) VALUES(?, ?, ?, ?, ?, ?)`,
			seq, i, crypto.FromRaw(t.Recipient).String(), t.Denom, t.Amount.String(), t.Reason); err != nil {
			return fmt.Errorf("auditdb: insert transfer: %w", err)
		}
	}
	return tx.Commit()
}

// Transfer is a journaled payout.
type Transfer struct {
	Recipient string `json:"recipient"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

// Entry is one journaled command.
type Entry struct {
	Sequence   int64          `json:"sequence"`
	Command    string         `json:"command"`
	AuctionID  uint64         `json:"auctionId"`
	Caller     string         `json:"caller"`
	Code       string         `json:"code,omitempty"`
	ExecutedAt int64          `json:"executedAt"`
	Events     []*types.Event `json:"events"`
	Transfers  []Transfer     `json:"transfers"`
}

// AuctionHistory returns every committed command touching auction id in
// commit order.
func (s *Store) AuctionHistory(ctx context.Context, id uint64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, command, auction_id, caller, code, executed_at FROM commands WHERE auction_id = ? ORDER BY sequence`,
		int64(id))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			auctionID int64
		)
		if err := rows.Scan(&e.Sequence, &e.Command, &auctionID, &e.Caller, &e.Code, &e.ExecutedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.AuctionID = uint64(auctionID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range entries {
		evts, err := s.events(ctx, entries[i].Sequence)
		if err != nil {
			return nil, err
		}
		transfers, err := s.transfers(ctx, entries[i].Sequence)
		if err != nil {
			return nil, err
		}
		entries[i].Events, entries[i].Transfers = evts, transfers
	}
	return entries, nil
}

func (s *Store) events(ctx context.Context, seq int64) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, payload FROM events WHERE command_sequence = ? ORDER BY position`, seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*types.Event, 0)
	for rows.Next() {
		var (
			evtType string
			payload string
		)
		if err := rows.Scan(&evtType, &payload); err != nil {
			return nil, err
		}
		evt := &types.Event{Type: evtType}
		if err := json.Unmarshal([]byte(payload), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("auditdb: decode event payload: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *Store) transfers(ctx context.Context, seq int64) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient, denom, amount, reason FROM transfers WHERE command_sequence = ? ORDER BY position`, seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transfer, 0)
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.Recipient, &t.Denom, &t.Amount, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
