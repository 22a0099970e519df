package engine_test

import (
	"errors"
	"testing"
	"time"

	"bountypot/internal/engine"
	"bountypot/internal/vault"
)

func TestEnterSingleFee(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", fee)

	entry, err := env.Engine.Enter(env.Ctx, "alice", fee)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if entry.Count != 1 {
		t.Fatalf("entry count = %d, want 1", entry.Count)
	}
	if entry.Value != fee {
		t.Fatalf("entry value = %d, want %d", entry.Value, fee)
	}
	if got := env.balance(t, "alice"); got != 0 {
		t.Fatalf("alice balance = %d after entry, want 0", got)
	}
	pot, err := env.Engine.CurrentPot(env.Ctx)
	if err != nil {
		t.Fatalf("pot: %v", err)
	}
	if pot != fee {
		t.Fatalf("pot = %d, want %d", pot, fee)
	}
}

func TestEnterMultipleOfFee(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", 3*fee)

	entry, err := env.Engine.Enter(env.Ctx, "alice", 3*fee)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if entry.Count != 3 {
		t.Fatalf("entry count = %d, want 3", entry.Count)
	}
}

func TestEnterRemainderGrantsNoExtraEntry(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	value := 2*fee + fee/2
	env.fund(t, "alice", value)

	entry, err := env.Engine.Enter(env.Ctx, "alice", value)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if entry.Count != 2 {
		t.Fatalf("entry count = %d, want 2", entry.Count)
	}
	pot, err := env.Engine.CurrentPot(env.Ctx)
	if err != nil {
		t.Fatalf("pot: %v", err)
	}
	if pot != value {
		t.Fatalf("pot = %d, want full stake %d", pot, value)
	}
}

func TestEnterBelowMinimumFee(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", fee)

	_, err := env.Engine.Enter(env.Ctx, "alice", fee-1)
	if !errors.Is(err, engine.ErrBelowMinimumFee) {
		t.Fatalf("enter below fee: %v, want ErrBelowMinimumFee", err)
	}
	if got := env.balance(t, "alice"); got != fee {
		t.Fatalf("alice balance = %d after rejected entry, want %d", got, fee)
	}
	pot, err := env.Engine.CurrentPot(env.Ctx)
	if err != nil {
		t.Fatalf("pot: %v", err)
	}
	if pot != 0 {
		t.Fatalf("pot = %d after rejected entry, want 0", pot)
	}
}

func TestEnterAccumulatesPerPlayer(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", 5*fee)

	if _, err := env.Engine.Enter(env.Ctx, "alice", 2*fee); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	entry, err := env.Engine.Enter(env.Ctx, "alice", 3*fee)
	if err != nil {
		t.Fatalf("second enter: %v", err)
	}
	if entry.Count != 5 {
		t.Fatalf("entry count = %d, want 5", entry.Count)
	}
	rd, err := env.Engine.CurrentRound(env.Ctx)
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if rd.UniquePlayers != 1 {
		t.Fatalf("unique players = %d, want 1", rd.UniquePlayers)
	}
	if rd.TotalEntries != 5 {
		t.Fatalf("total entries = %d, want 5", rd.TotalEntries)
	}
}

func TestEnterInsufficientFundsRollsBack(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", fee-1)

	_, err := env.Engine.Enter(env.Ctx, "alice", fee)
	if !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("enter without funds: %v, want ErrInsufficientFunds", err)
	}
	count, err := env.Engine.PlayerEntryCount(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("entry count: %v", err)
	}
	if count != 0 {
		t.Fatalf("entry count = %d after rolled-back entry, want 0", count)
	}
	pot, err := env.Engine.CurrentPot(env.Ctx)
	if err != nil {
		t.Fatalf("pot: %v", err)
	}
	if pot != 0 {
		t.Fatalf("pot = %d after rolled-back entry, want 0", pot)
	}
}

func TestPlayerEntryCountForNonEntrant(t *testing.T) {
	env := newTestEnv(t)
	count, err := env.Engine.PlayerEntryCount(env.Ctx, "stranger")
	if err != nil {
		t.Fatalf("entry count: %v", err)
	}
	if count != 0 {
		t.Fatalf("entry count = %d for non-entrant, want 0", count)
	}
}

func TestPauseBlocksEntry(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", fee)

	if err := env.Engine.Pause(env.Ctx, owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.Engine.Enter(env.Ctx, "alice", fee); !errors.Is(err, engine.ErrPaused) {
		t.Fatalf("enter while paused: %v, want ErrPaused", err)
	}
	if err := env.Engine.Unpause(env.Ctx, owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := env.Engine.Enter(env.Ctx, "alice", fee); err != nil {
		t.Fatalf("enter after unpause: %v", err)
	}
}

func TestPauseRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Pause(env.Ctx, "mallory"); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("pause by non-owner: %v, want ErrUnauthorized", err)
	}
	paused, err := env.Engine.IsPaused(env.Ctx)
	if err != nil {
		t.Fatalf("paused: %v", err)
	}
	if paused {
		t.Fatal("engine paused after denied pause")
	}
}

func TestPauseIdempotent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Pause(env.Ctx, owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := env.Engine.Pause(env.Ctx, owner); err != nil {
		t.Fatalf("repeat pause: %v", err)
	}
	paused, err := env.Engine.IsPaused(env.Ctx)
	if err != nil {
		t.Fatalf("paused: %v", err)
	}
	if !paused {
		t.Fatal("engine not paused")
	}
}

func TestSelectWinnerRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SelectWinner(env.Ctx, "mallory"); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("draw by non-owner: %v, want ErrUnauthorized", err)
	}
}

func TestSelectWinnerTooEarly(t *testing.T) {
	env := newTestEnv(t)
	seedThreePlayers(t, &env)
	// Now is still the round's opening instant.
	if _, err := env.Engine.SelectWinner(env.Ctx, owner); !errors.Is(err, engine.ErrTooEarly) {
		t.Fatalf("early draw: %v, want ErrTooEarly", err)
	}
	fee := env.Engine.Config.MinEntryFeeUnits()
	rd, err := env.Engine.CurrentRound(env.Ctx)
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if rd.ID != 1 || rd.Status != "open" {
		t.Fatalf("round after denied draw = %d/%s, want 1/open", rd.ID, rd.Status)
	}
	if rd.Pot != 3*fee || rd.TotalEntries != 3 || rd.UniquePlayers != 3 {
		t.Fatalf("round changed by denied draw: pot %d, entries %d, players %d", rd.Pot, rd.TotalEntries, rd.UniquePlayers)
	}
	if rd.Winner != nil || rd.OwnerFee != nil || rd.WinnerPayout != nil {
		t.Fatalf("round carries draw results after denied draw: %+v", rd)
	}
}

func TestSelectWinnerInsufficientPlayers(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	env.fund(t, "alice", fee)
	if _, err := env.Engine.Enter(env.Ctx, "alice", fee); err != nil {
		t.Fatalf("enter: %v", err)
	}
	advance(&env, 25*time.Hour)
	if _, err := env.Engine.SelectWinner(env.Ctx, owner); !errors.Is(err, engine.ErrInsufficientPlayers) {
		t.Fatalf("draw with one player: %v, want ErrInsufficientPlayers", err)
	}
	rd, err := env.Engine.CurrentRound(env.Ctx)
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if rd.ID != 1 || rd.Status != "open" {
		t.Fatalf("round after denied draw = %d/%s, want 1/open", rd.ID, rd.Status)
	}
	if rd.Pot != fee || rd.TotalEntries != 1 || rd.UniquePlayers != 1 {
		t.Fatalf("round changed by denied draw: pot %d, entries %d, players %d", rd.Pot, rd.TotalEntries, rd.UniquePlayers)
	}
	if got := env.balance(t, "alice"); got != 0 {
		t.Fatalf("alice balance = %d after denied draw, want 0", got)
	}
}

func TestSelectWinnerResolvesRound(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	seedThreePlayers(t, &env)
	advance(&env, 25*time.Hour)
	env.Engine.Rand = pickIndex(1) // bob's single entry

	rd, err := env.Engine.SelectWinner(env.Ctx, owner)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if rd.ID != 1 || rd.Status != "resolved" {
		t.Fatalf("resolved round = %d/%s", rd.ID, rd.Status)
	}
	if rd.Winner == nil || *rd.Winner != "bob" {
		t.Fatalf("winner = %v, want bob", rd.Winner)
	}
	pot := 3 * fee
	wantFee := pot * env.Engine.Config.Lottery.OwnerFeeBps / 10000
	wantPayout := pot - wantFee
	if rd.OwnerFee == nil || *rd.OwnerFee != wantFee {
		t.Fatalf("owner fee = %v, want %d", rd.OwnerFee, wantFee)
	}
	if rd.WinnerPayout == nil || *rd.WinnerPayout != wantPayout {
		t.Fatalf("winner payout = %v, want %d", rd.WinnerPayout, wantPayout)
	}
	if got := env.balance(t, "bob"); got != wantPayout {
		t.Fatalf("bob balance = %d, want %d", got, wantPayout)
	}
	if got := env.balance(t, owner); got != wantFee {
		t.Fatalf("owner balance = %d, want %d", got, wantFee)
	}

	next, err := env.Engine.CurrentRound(env.Ctx)
	if err != nil {
		t.Fatalf("next round: %v", err)
	}
	if next.ID != 2 || next.Status != "open" {
		t.Fatalf("next round = %d/%s, want 2/open", next.ID, next.Status)
	}
	if next.Pot != 0 || next.TotalEntries != 0 || next.UniquePlayers != 0 {
		t.Fatalf("next round not empty: pot %d, entries %d, players %d", next.Pot, next.TotalEntries, next.UniquePlayers)
	}
}

func TestSelectWinnerWeightsByEntryCount(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	for _, p := range []string{"alice", "bob", "carol"} {
		env.fund(t, p, 4*fee)
	}
	// alice 3 entries, bob 1, carol 1: indices 0-2 hit alice.
	if _, err := env.Engine.Enter(env.Ctx, "alice", 3*fee); err != nil {
		t.Fatalf("enter alice: %v", err)
	}
	if _, err := env.Engine.Enter(env.Ctx, "bob", fee); err != nil {
		t.Fatalf("enter bob: %v", err)
	}
	if _, err := env.Engine.Enter(env.Ctx, "carol", fee); err != nil {
		t.Fatalf("enter carol: %v", err)
	}
	advance(&env, 25*time.Hour)

	env.Engine.Rand = pickIndex(2)
	rd, err := env.Engine.SelectWinner(env.Ctx, owner)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if rd.Winner == nil || *rd.Winner != "alice" {
		t.Fatalf("winner at index 2 = %v, want alice", rd.Winner)
	}
}

func TestSelectWinnerLastIndex(t *testing.T) {
	env := newTestEnv(t)
	seedThreePlayers(t, &env)
	advance(&env, 25*time.Hour)

	env.Engine.Rand = pickIndex(2)
	rd, err := env.Engine.SelectWinner(env.Ctx, owner)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if rd.Winner == nil || *rd.Winner != "carol" {
		t.Fatalf("winner at last index = %v, want carol", rd.Winner)
	}
}

func TestSelectWinnerHugePot(t *testing.T) {
	env := newTestEnv(t)
	// 9e18 total, large enough that pot*bps would wrap int64.
	stake := int64(3_000_000_000_000_000_000)
	for _, p := range []string{"alice", "bob", "carol"} {
		env.fund(t, p, stake)
		if _, err := env.Engine.Enter(env.Ctx, p, stake); err != nil {
			t.Fatalf("enter %s: %v", p, err)
		}
	}
	advance(&env, 25*time.Hour)
	env.Engine.Rand = pickIndex(0)

	rd, err := env.Engine.SelectWinner(env.Ctx, owner)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	wantFee := int64(900_000_000_000_000_000)
	wantPayout := int64(8_100_000_000_000_000_000)
	if rd.OwnerFee == nil || *rd.OwnerFee != wantFee {
		t.Fatalf("owner fee = %v, want %d", rd.OwnerFee, wantFee)
	}
	if rd.WinnerPayout == nil || *rd.WinnerPayout != wantPayout {
		t.Fatalf("winner payout = %v, want %d", rd.WinnerPayout, wantPayout)
	}
	if got := env.balance(t, "alice"); got != wantPayout {
		t.Fatalf("alice balance = %d, want %d", got, wantPayout)
	}
	if got := env.balance(t, owner); got != wantFee {
		t.Fatalf("owner balance = %d, want %d", got, wantFee)
	}
}

func TestEnterReservedName(t *testing.T) {
	env := newTestEnv(t)
	fee := env.Engine.Config.MinEntryFeeUnits()
	for _, name := range []string{"mint", "round:1", "gig:1"} {
		if _, err := env.Engine.Enter(env.Ctx, name, fee); !errors.Is(err, engine.ErrReservedPrincipal) {
			t.Fatalf("enter as %q: %v, want ErrReservedPrincipal", name, err)
		}
	}
}

func TestListRounds(t *testing.T) {
	env := newTestEnv(t)
	seedThreePlayers(t, &env)
	advance(&env, 25*time.Hour)
	env.Engine.Rand = pickIndex(0)
	if _, err := env.Engine.SelectWinner(env.Ctx, owner); err != nil {
		t.Fatalf("draw: %v", err)
	}
	rounds, err := env.Engine.ListRounds(env.Ctx, 10)
	if err != nil {
		t.Fatalf("list rounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(rounds))
	}
	if rounds[0].ID != 2 || rounds[1].ID != 1 {
		t.Fatalf("rounds listed %d,%d, want newest first", rounds[0].ID, rounds[1].ID)
	}
}

// seedThreePlayers funds alice, bob and carol and enters each with one fee.
func seedThreePlayers(t *testing.T, env *testEnv) {
	t.Helper()
	fee := env.Engine.Config.MinEntryFeeUnits()
	for _, p := range []string{"alice", "bob", "carol"} {
		env.fund(t, p, fee)
		if _, err := env.Engine.Enter(env.Ctx, p, fee); err != nil {
			t.Fatalf("enter %s: %v", p, err)
		}
	}
}

func advance(env *testEnv, d time.Duration) {
	base := env.Engine.Now()
	env.Engine.Now = func() time.Time { return base.Add(d) }
}
