package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Control holds the single owner principal and the pause flag. It gates
// owner-only operations and lottery entry admission; marketplace operations
// consult it only for identity checks, never for the pause flag.
type Control struct {
	DB *sql.DB
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrPaused         = errors.New("entries are paused")
	ErrNotInitialized = errors.New("workspace not initialized; run bp init")
)

// Init fixes the owner principal. It fails if the control row already
// exists: the owner is set once at workspace init and never changes.
func (c Control) Init(ctx context.Context, tx *sql.Tx, owner string, now time.Time) error {
	if owner == "" {
		return errors.New("owner principal required")
	}
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM control WHERE id=1`).Scan(&n)
	if err == nil {
		return errors.New("already initialized")
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO control(id,owner,paused,created_at) VALUES (1,?,0,?)`,
		owner, now.UTC().Format(time.RFC3339))
	return err
}

// Owner returns the fixed owner principal.
func (c Control) Owner(ctx context.Context) (string, error) {
	var owner string
	err := c.DB.QueryRowContext(ctx, `SELECT owner FROM control WHERE id=1`).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", ErrNotInitialized
	}
	return owner, err
}

// RequireOwner fails with ErrUnauthorized unless principal is the owner.
func (c Control) RequireOwner(ctx context.Context, principal string) error {
	owner, err := c.Owner(ctx)
	if err != nil {
		return err
	}
	if principal != owner {
		return fmt.Errorf("%w: only the owner may perform this operation", ErrUnauthorized)
	}
	return nil
}

func (c Control) Paused(ctx context.Context) (bool, error) {
	var paused int
	err := c.DB.QueryRowContext(ctx, `SELECT paused FROM control WHERE id=1`).Scan(&paused)
	if err == sql.ErrNoRows {
		return false, ErrNotInitialized
	}
	return paused != 0, err
}

// SetPausedTx flips the admission gate inside the caller's transaction.
func (c Control) SetPausedTx(ctx context.Context, tx *sql.Tx, paused bool) error {
	v := 0
	if paused {
		v = 1
	}
	res, err := tx.ExecContext(ctx, `UPDATE control SET paused=? WHERE id=1`, v)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotInitialized
	}
	return nil
}
