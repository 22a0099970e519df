package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Vault moves value between principal accounts and custody accounts. Every
// movement runs inside the caller's transaction: if the enclosing operation
// fails, the balance change and its receipt roll back with it. The vault
// never calls back into engine code.
type Vault struct {
	DB  *sql.DB
	Now func() time.Time
}

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Mint is the source account for owner deposits.
const Mint = "mint"

const (
	roundPrefix = "round:"
	gigPrefix   = "gig:"
)

// RoundAccount names the custody account holding a round's pot.
func RoundAccount(roundID int64) string {
	return fmt.Sprintf("%s%d", roundPrefix, roundID)
}

// GigAccount names the custody account holding a gig's bounty.
func GigAccount(gigID int64) string {
	return fmt.Sprintf("%s%d", gigPrefix, gigID)
}

// Reserved reports whether name belongs to the vault's internal namespace.
// Custody accounts share the accounts table with principal accounts, so a
// caller must never be admitted under one of these names: a principal
// called "gig:1" would own that gig's escrow.
func Reserved(name string) bool {
	return name == Mint ||
		strings.HasPrefix(name, roundPrefix) ||
		strings.HasPrefix(name, gigPrefix)
}

func (v Vault) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Balance returns the current balance of an account, zero if it has never
// held funds.
func (v Vault) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := v.DB.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE principal=?`, account).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (v Vault) BalanceTx(ctx context.Context, tx *sql.Tx, account string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE principal=?`, account).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

// Transfer moves amount from one account to another within tx. It fails
// with ErrInsufficientFunds if the source does not cover the amount; the
// caller's rollback then leaves all balances untouched.
func (v Vault) Transfer(ctx context.Context, tx *sql.Tx, from, to string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return fmt.Errorf("transfer from %s to itself", from)
	}
	balance, err := v.BalanceTx(ctx, tx, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: account %s holds %d, needs %d", ErrInsufficientFunds, from, balance, amount)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance=balance-? WHERE principal=?`, amount, from); err != nil {
		return err
	}
	if err := v.credit(ctx, tx, to, amount); err != nil {
		return err
	}
	return v.record(ctx, tx, from, to, amount, reason)
}

// Deposit credits an account from the mint. Used by the owner-only ledger
// funding operation; regular fund movement goes through Transfer.
func (v Vault) Deposit(ctx context.Context, tx *sql.Tx, to string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := v.credit(ctx, tx, to, amount); err != nil {
		return err
	}
	return v.record(ctx, tx, Mint, to, amount, reason)
}

func (v Vault) credit(ctx context.Context, tx *sql.Tx, account string, amount int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts(principal,balance) VALUES (?,?)
ON CONFLICT(principal) DO UPDATE SET balance=balance+excluded.balance`, account, amount)
	return err
}

func (v Vault) record(ctx context.Context, tx *sql.Tx, from, to string, amount int64, reason string) error {
	ts := v.now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO transfers(id,ts,from_account,to_account,amount,reason) VALUES (?,?,?,?,?,?)`,
		uuid.New().String(), ts, from, to, amount, reason)
	return err
}

// ListTransfers returns the most recent transfer receipts, newest first.
func (v Vault) ListTransfers(ctx context.Context, limit int) ([]Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := v.DB.QueryContext(ctx, `SELECT id,ts,from_account,to_account,amount,reason FROM transfers ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.ID, &r.TS, &r.From, &r.To, &r.Amount, &r.Reason); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

type Receipt struct {
	ID     string
	TS     string
	From   string
	To     string
	Amount int64
	Reason string
}
