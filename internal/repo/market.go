package repo

import (
	"context"
	"database/sql"

	"bountypot/internal/domain"
)

// --- workers ---

func (r Repo) GetWorker(ctx context.Context, principal string) (domain.Worker, error) {
	return r.getWorker(ctx, r.DB.QueryRowContext, principal)
}

func (r Repo) GetWorkerTx(ctx context.Context, tx *sql.Tx, principal string) (domain.Worker, error) {
	return r.getWorker(ctx, tx.QueryRowContext, principal)
}

func (r Repo) getWorker(ctx context.Context, queryRow rowQuerier, principal string) (domain.Worker, error) {
	w := domain.Worker{Principal: principal}
	err := queryRow(ctx, `SELECT skill,registered_at FROM workers WHERE principal=?`, principal).
		Scan(&w.Skill, &w.RegisteredAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.Registered = true
	return w, nil
}

func (r Repo) InsertWorkerTx(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workers(principal,skill,registered_at) VALUES (?,?,?)`,
		w.Principal, w.Skill, w.RegisteredAt)
	return err
}

func (r Repo) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT principal,skill,registered_at FROM workers ORDER BY registered_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.Principal, &w.Skill, &w.RegisteredAt); err != nil {
			return nil, err
		}
		w.Registered = true
		res = append(res, w)
	}
	return res, nil
}

// --- gigs ---

const gigColumns = `id,employer,description,required_skill,bounty,status,assigned_worker,submission_uri,created_at,paid_at`

func scanGig(scan func(dest ...any) error) (domain.Gig, error) {
	var g domain.Gig
	var assigned, uri, paidAt sql.NullString
	err := scan(&g.ID, &g.Employer, &g.Description, &g.RequiredSkill, &g.Bounty, &g.Status, &assigned, &uri, &g.CreatedAt, &paidAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if assigned.Valid {
		g.AssignedWorker = &assigned.String
	}
	if uri.Valid {
		g.SubmissionURI = &uri.String
	}
	if paidAt.Valid {
		g.PaidAt = &paidAt.String
	}
	return g, nil
}

// InsertGigTx creates a gig and returns its id (previous count + 1).
func (r Repo) InsertGigTx(ctx context.Context, tx *sql.Tx, g domain.Gig) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO gigs(employer,description,required_skill,bounty,status,created_at) VALUES (?,?,?,?,'open',?)`,
		g.Employer, g.Description, g.RequiredSkill, g.Bounty, g.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetGig(ctx context.Context, id int64) (domain.Gig, error) {
	g, err := scanGig(r.DB.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id=?`, id).Scan)
	if err != nil {
		return g, err
	}
	g.Applicants, err = r.ListApplicants(ctx, id)
	return g, err
}

func (r Repo) GetGigTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Gig, error) {
	return scanGig(tx.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id=?`, id).Scan)
}

func (r Repo) ListGigs(ctx context.Context, status string, limit int) ([]domain.Gig, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + gigColumns + ` FROM gigs`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Gig
	for rows.Next() {
		g, err := scanGig(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}

func (r Repo) GigCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM gigs`).Scan(&n)
	return n, err
}

func (r Repo) SetGigStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE gigs SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitGigTx commits the first submitter as the assigned worker.
func (r Repo) SubmitGigTx(ctx context.Context, tx *sql.Tx, id int64, worker, uri string) error {
	res, err := tx.ExecContext(ctx, `UPDATE gigs SET status='submitted', assigned_worker=?, submission_uri=? WHERE id=?`,
		worker, uri, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkGigPaidTx(ctx context.Context, tx *sql.Tx, id int64, paidAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE gigs SET status='paid', paid_at=? WHERE id=? AND status='submitted'`, paidAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- applications ---

func (r Repo) InsertApplicationTx(ctx context.Context, tx *sql.Tx, gigID int64, worker, appliedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO applications(gig_id,worker,applied_at) VALUES (?,?,?)`, gigID, worker, appliedAt)
	return err
}

func (r Repo) HasApplied(ctx context.Context, gigID int64, principal string) (bool, error) {
	return r.hasApplied(ctx, r.DB.QueryRowContext, gigID, principal)
}

func (r Repo) HasAppliedTx(ctx context.Context, tx *sql.Tx, gigID int64, principal string) (bool, error) {
	return r.hasApplied(ctx, tx.QueryRowContext, gigID, principal)
}

func (r Repo) hasApplied(ctx context.Context, queryRow rowQuerier, gigID int64, principal string) (bool, error) {
	var n int
	err := queryRow(ctx, `SELECT 1 FROM applications WHERE gig_id=? AND worker=? LIMIT 1`, gigID, principal).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListApplicants(ctx context.Context, gigID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT worker FROM applications WHERE gig_id=? ORDER BY applied_at`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}
