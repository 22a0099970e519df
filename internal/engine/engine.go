package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bountypot/internal/access"
	"bountypot/internal/config"
	"bountypot/internal/events"
	"bountypot/internal/repo"
	"bountypot/internal/rng"
	"bountypot/internal/vault"
)

// Engine runs both custody state machines over a single SQLite ledger.
// Every operation opens one transaction, validates, mutates state, performs
// its fund movements, appends an audit event, and commits; any failure rolls
// the whole operation back.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Vault  vault.Vault
	Access access.Control
	Events events.Writer
	Rand   rng.Source
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Vault:  vault.Vault{DB: db},
		Access: access.Control{DB: db},
		Events: events.Writer{DB: db},
		Rand:   rng.Crypto{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// checkPrincipal rejects empty names and names inside the vault's custody
// namespace (mint, round:N, gig:N). Custody accounts and principal accounts
// share one ledger; admitting a caller under a custody name would hand them
// that account's funds.
func checkPrincipal(principal string) error {
	if principal == "" {
		return errors.New("principal required")
	}
	if vault.Reserved(principal) {
		return fmt.Errorf("%w: %q", ErrReservedPrincipal, principal)
	}
	return nil
}

// Init fixes the owner principal and the lottery parameters, and opens
// round 1. It can run only once per workspace.
func (e Engine) Init(ctx context.Context, owner string) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	if err := checkPrincipal(owner); err != nil {
		return err
	}
	if err := e.Config.Validate(); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := e.now()
	if err := e.Access.Init(ctx, tx, owner, now); err != nil {
		return err
	}
	if err := e.Repo.UpsertConfigTx(ctx, tx, e.Config); err != nil {
		return err
	}
	if err := e.Repo.InsertRoundTx(ctx, tx, 1, now.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "system.initialized", "control", "", owner, events.EventPayload{
		"owner": owner,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Deposit credits a principal's vault account from the mint. Owner-only:
// it stands in for the external value source the engines settle against.
func (e Engine) Deposit(ctx context.Context, caller, to string, amount int64) error {
	if err := e.Access.RequireOwner(ctx, caller); err != nil {
		return err
	}
	if err := checkPrincipal(to); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Vault.Deposit(ctx, tx, to, amount, "owner deposit"); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "ledger.deposited", "account", to, caller, events.EventPayload{
		"to":     to,
		"amount": amount,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Balance returns a principal's free (non-custodied) vault balance.
func (e Engine) Balance(ctx context.Context, principal string) (int64, error) {
	if principal == "" {
		return 0, fmt.Errorf("principal required")
	}
	return e.Vault.Balance(ctx, principal)
}
