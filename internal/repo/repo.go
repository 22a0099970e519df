package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"bountypot/internal/config"
	"bountypot/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- settings ---

func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM settings WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (r Repo) UpsertConfig(ctx context.Context, cfg *config.Config) error {
	return upsertConfig(ctx, r.DB, nil, cfg)
}

func (r Repo) UpsertConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	return upsertConfig(ctx, nil, tx, cfg)
}

func upsertConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO settings(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

// --- rounds ---

const roundColumns = `id,status,opened_at,resolved_at,winner,owner_fee,winner_payout`

func scanRound(scan func(dest ...any) error) (domain.Round, error) {
	var rd domain.Round
	var resolvedAt, winner sql.NullString
	var ownerFee, payout sql.NullInt64
	err := scan(&rd.ID, &rd.Status, &rd.OpenedAt, &resolvedAt, &winner, &ownerFee, &payout)
	if err == sql.ErrNoRows {
		return rd, ErrNotFound
	}
	if err != nil {
		return rd, err
	}
	if resolvedAt.Valid {
		rd.ResolvedAt = &resolvedAt.String
	}
	if winner.Valid {
		rd.Winner = &winner.String
	}
	if ownerFee.Valid {
		rd.OwnerFee = &ownerFee.Int64
	}
	if payout.Valid {
		rd.WinnerPayout = &payout.Int64
	}
	return rd, nil
}

// OpenRound returns the single round with status "open", including its
// derived entry aggregates.
func (r Repo) OpenRound(ctx context.Context) (domain.Round, error) {
	rd, err := scanRound(r.DB.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status='open'`).Scan)
	if err != nil {
		return rd, err
	}
	rd.UniquePlayers, rd.TotalEntries, rd.Pot, err = r.RoundStats(ctx, rd.ID)
	return rd, err
}

func (r Repo) OpenRoundTx(ctx context.Context, tx *sql.Tx) (domain.Round, error) {
	rd, err := scanRound(tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status='open'`).Scan)
	if err != nil {
		return rd, err
	}
	rd.UniquePlayers, rd.TotalEntries, rd.Pot, err = r.roundStats(ctx, tx.QueryRowContext, rd.ID)
	return rd, err
}

func (r Repo) GetRound(ctx context.Context, id int64) (domain.Round, error) {
	rd, err := scanRound(r.DB.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id=?`, id).Scan)
	if err != nil {
		return rd, err
	}
	rd.UniquePlayers, rd.TotalEntries, rd.Pot, err = r.RoundStats(ctx, rd.ID)
	return rd, err
}

func (r Repo) InsertRoundTx(ctx context.Context, tx *sql.Tx, id int64, openedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO rounds(id,status,opened_at) VALUES (?,'open',?)`, id, openedAt)
	return err
}

// ResolveRoundTx records the settlement of a round. The new round is opened
// by a separate InsertRoundTx in the same transaction.
func (r Repo) ResolveRoundTx(ctx context.Context, tx *sql.Tx, id int64, resolvedAt, winner string, ownerFee, winnerPayout int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE rounds SET status='resolved', resolved_at=?, winner=?, owner_fee=?, winner_payout=? WHERE id=? AND status='open'`,
		resolvedAt, winner, ownerFee, winnerPayout, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListRounds(ctx context.Context, limit int) ([]domain.Round, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+roundColumns+` FROM rounds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Round
	for rows.Next() {
		rd, err := scanRound(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rd)
	}
	return res, nil
}

type rowQuerier func(ctx context.Context, query string, args ...any) *sql.Row

func (r Repo) RoundStats(ctx context.Context, roundID int64) (int, int64, int64, error) {
	return r.roundStats(ctx, r.DB.QueryRowContext, roundID)
}

func (r Repo) roundStats(ctx context.Context, queryRow rowQuerier, roundID int64) (unique int, total int64, pot int64, err error) {
	err = queryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(count),0), COALESCE(SUM(value),0) FROM entries WHERE round_id=?`, roundID).
		Scan(&unique, &total, &pot)
	return unique, total, pot, err
}

// --- entries ---

// UpsertEntryTx adds count and value to a player's entry, creating the row
// on first entry. The row's insert order is preserved across later upserts,
// which keeps the weighted draw's flattening deterministic.
func (r Repo) UpsertEntryTx(ctx context.Context, tx *sql.Tx, roundID int64, player string, count, value int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO entries(round_id,player,count,value) VALUES (?,?,?,?)
ON CONFLICT(round_id,player) DO UPDATE SET count=count+excluded.count, value=value+excluded.value`,
		roundID, player, count, value)
	return err
}

func (r Repo) PlayerEntry(ctx context.Context, roundID int64, player string) (domain.Entry, error) {
	e := domain.Entry{RoundID: roundID, Player: player}
	err := r.DB.QueryRowContext(ctx, `SELECT count,value FROM entries WHERE round_id=? AND player=?`, roundID, player).
		Scan(&e.Count, &e.Value)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// ListEntriesTx returns a round's entries in first-entry order.
func (r Repo) ListEntriesTx(ctx context.Context, tx *sql.Tx, roundID int64) ([]domain.Entry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT round_id,player,count,value FROM entries WHERE round_id=? ORDER BY rowid`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.RoundID, &e.Player, &e.Count, &e.Value); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}
