package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bountypot/internal/domain"
	"bountypot/internal/events"
	"bountypot/internal/repo"
	"bountypot/internal/vault"
)

// Enter admits a player's stake into the open round. Whole multiples of the
// minimum fee become entries; any remainder above a whole multiple is kept
// in the pot but grants no extra entry.
func (e Engine) Enter(ctx context.Context, caller string, value int64) (domain.Entry, error) {
	if e.Config == nil {
		return domain.Entry{}, errors.New("config not loaded")
	}
	if err := checkPrincipal(caller); err != nil {
		return domain.Entry{}, err
	}
	paused, err := e.Access.Paused(ctx)
	if err != nil {
		return domain.Entry{}, err
	}
	if paused {
		return domain.Entry{}, ErrPaused
	}
	fee := e.Config.MinEntryFeeUnits()
	if value < fee {
		return domain.Entry{}, fmt.Errorf("%w: minimum entry fee is %s", ErrBelowMinimumFee, e.Config.Lottery.MinEntryFee)
	}
	count := value / fee

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Entry{}, err
	}
	defer tx.Rollback()

	rd, err := e.Repo.OpenRoundTx(ctx, tx)
	if err != nil {
		return domain.Entry{}, err
	}
	if err := e.Repo.UpsertEntryTx(ctx, tx, rd.ID, caller, count, value); err != nil {
		return domain.Entry{}, err
	}
	if err := e.Vault.Transfer(ctx, tx, caller, vault.RoundAccount(rd.ID), value, "lottery entry"); err != nil {
		return domain.Entry{}, err
	}
	if err := e.Events.Append(ctx, tx, "lottery.entered", "round", strconv.FormatInt(rd.ID, 10), caller, events.EventPayload{
		"player": caller,
		"count":  count,
		"value":  value,
		"pot":    rd.Pot + value,
	}); err != nil {
		return domain.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Entry{}, err
	}
	return e.Repo.PlayerEntry(ctx, rd.ID, caller)
}

// CurrentRound returns the open round with its derived aggregates.
func (e Engine) CurrentRound(ctx context.Context) (domain.Round, error) {
	return e.Repo.OpenRound(ctx)
}

// PlayerEntryCount returns the player's entry count in the open round,
// zero if the player has not entered.
func (e Engine) PlayerEntryCount(ctx context.Context, player string) (int64, error) {
	rd, err := e.Repo.OpenRound(ctx)
	if err != nil {
		return 0, err
	}
	entry, err := e.Repo.PlayerEntry(ctx, rd.ID, player)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return entry.Count, nil
}

// TotalEntries returns the sum of all entry counts in the open round.
func (e Engine) TotalEntries(ctx context.Context) (int64, error) {
	rd, err := e.Repo.OpenRound(ctx)
	if err != nil {
		return 0, err
	}
	return rd.TotalEntries, nil
}

// CurrentPot returns the value accumulated in the open round.
func (e Engine) CurrentPot(ctx context.Context) (int64, error) {
	rd, err := e.Repo.OpenRound(ctx)
	if err != nil {
		return 0, err
	}
	return rd.Pot, nil
}

func (e Engine) IsPaused(ctx context.Context) (bool, error) {
	return e.Access.Paused(ctx)
}

// Pause closes the entry gate. Owner-only. Pausing an already-paused
// engine is a no-op; no event is logged for repeats.
func (e Engine) Pause(ctx context.Context, caller string) error {
	return e.setPaused(ctx, caller, true, "lottery.paused")
}

// Unpause reopens the entry gate. Owner-only, idempotent like Pause.
func (e Engine) Unpause(ctx context.Context, caller string) error {
	return e.setPaused(ctx, caller, false, "lottery.unpaused")
}

func (e Engine) setPaused(ctx context.Context, caller string, paused bool, evtType string) error {
	if err := e.Access.RequireOwner(ctx, caller); err != nil {
		return err
	}
	current, err := e.Access.Paused(ctx)
	if err != nil {
		return err
	}
	if current == paused {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Access.SetPausedTx(ctx, tx, paused); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, "control", "", caller, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SelectWinner resolves the open round: draws a winner weighted by entry
// count, splits the pot between winner and owner, and opens the next round.
// The round reset and both payout legs commit together or not at all.
func (e Engine) SelectWinner(ctx context.Context, caller string) (domain.Round, error) {
	if e.Config == nil {
		return domain.Round{}, errors.New("config not loaded")
	}
	if err := e.Access.RequireOwner(ctx, caller); err != nil {
		return domain.Round{}, err
	}
	owner, err := e.Access.Owner(ctx)
	if err != nil {
		return domain.Round{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Round{}, err
	}
	defer tx.Rollback()

	rd, err := e.Repo.OpenRoundTx(ctx, tx)
	if err != nil {
		return domain.Round{}, err
	}
	openedAt, err := time.Parse(time.RFC3339, rd.OpenedAt)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round %d opened_at: %w", rd.ID, err)
	}
	now := e.now().UTC()
	if now.Before(openedAt.Add(e.Config.RoundDuration())) {
		return domain.Round{}, ErrTooEarly
	}
	if rd.UniquePlayers < e.Config.Lottery.MinUniquePlayers {
		return domain.Round{}, fmt.Errorf("%w: need at least %d unique players", ErrInsufficientPlayers, e.Config.Lottery.MinUniquePlayers)
	}

	winner, err := e.drawWinner(ctx, tx, rd)
	if err != nil {
		return domain.Round{}, err
	}
	ownerFee := feeSplit(rd.Pot, e.Config.Lottery.OwnerFeeBps)
	winnerPayout := rd.Pot - ownerFee

	// Round reset first, payouts after: a failed transfer rolls back the
	// reset with it.
	nowStr := now.Format(time.RFC3339)
	if err := e.Repo.ResolveRoundTx(ctx, tx, rd.ID, nowStr, winner, ownerFee, winnerPayout); err != nil {
		return domain.Round{}, err
	}
	if err := e.Repo.InsertRoundTx(ctx, tx, rd.ID+1, nowStr); err != nil {
		return domain.Round{}, err
	}
	pot := vault.RoundAccount(rd.ID)
	if ownerFee > 0 {
		if err := e.Vault.Transfer(ctx, tx, pot, owner, ownerFee, "lottery owner fee"); err != nil {
			return domain.Round{}, err
		}
	}
	if winnerPayout > 0 {
		if err := e.Vault.Transfer(ctx, tx, pot, winner, winnerPayout, "lottery winnings"); err != nil {
			return domain.Round{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "lottery.resolved", "round", strconv.FormatInt(rd.ID, 10), caller, events.EventPayload{
		"round_id":      rd.ID,
		"winner":        winner,
		"owner_fee":     ownerFee,
		"winner_payout": winnerPayout,
	}); err != nil {
		return domain.Round{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Round{}, err
	}
	return e.Repo.GetRound(ctx, rd.ID)
}

// feeSplit computes pot*bps/10000, split so the intermediate product
/// cannot overflow int64 at any pot size. Equal to the naive form: with
// pot = 10000q + r, pot*bps/10000 = q*bps + r*bps/10000.
func feeSplit(pot, bps int64) int64 {
	return pot/10000*bps + pot%10000*bps/10000
}

// drawWinner lays every entry out as a flat sequence in first-entry order
// and picks the player at a uniformly random index, so win probability is
// proportional to entry count.
func (e Engine) drawWinner(ctx context.Context, tx *sql.Tx, rd domain.Round) (string, error) {
	entries, err := e.Repo.ListEntriesTx(ctx, tx, rd.ID)
	if err != nil {
		return "", err
	}
	if rd.TotalEntries <= 0 {
		return "", fmt.Errorf("%w: round has no entries", ErrInsufficientPlayers)
	}
	idx, err := e.Rand.Uniform(uint64(rd.TotalEntries))
	if err != nil {
		return "", fmt.Errorf("draw randomness: %w", err)
	}
	var cursor uint64
	for _, entry := range entries {
		cursor += uint64(entry.Count)
		if idx < cursor {
			return entry.Player, nil
		}
	}
	return "", fmt.Errorf("draw index %d out of range for round %d", idx, rd.ID)
}

// ListRounds returns recent rounds, newest first.
func (e Engine) ListRounds(ctx context.Context, limit int) ([]domain.Round, error) {
	return e.Repo.ListRounds(ctx, limit)
}
