package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"bountypot/internal/domain"
	"bountypot/internal/events"
	"bountypot/internal/repo"
	"bountypot/internal/vault"
)

// RegisterWorker creates the caller's worker record. Registration is
// permanent; there is no update or removal path.
func (e Engine) RegisterWorker(ctx context.Context, caller, skill string) (domain.Worker, error) {
	if skill == "" {
		return domain.Worker{}, errors.New("skill required")
	}
	if err := checkPrincipal(caller); err != nil {
		return domain.Worker{}, err
	}
	_, err := e.Repo.GetWorker(ctx, caller)
	if err == nil {
		return domain.Worker{}, ErrAlreadyRegistered
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Worker{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()

	w := domain.Worker{
		Principal:    caller,
		Skill:        skill,
		Registered:   true,
		RegisteredAt: e.timestamp(),
	}
	if err := e.Repo.InsertWorkerTx(ctx, tx, w); err != nil {
		return domain.Worker{}, err
	}
	if err := e.Events.Append(ctx, tx, "market.worker.registered", "worker", caller, caller, events.EventPayload{
		"skill": skill,
	}); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	return w, nil
}

// PostGig escrows the bounty from the caller into the gig's custody
// account and opens the gig.
func (e Engine) PostGig(ctx context.Context, caller, description, requiredSkill string, bounty int64) (domain.Gig, error) {
	if bounty <= 0 {
		return domain.Gig{}, ErrZeroBounty
	}
	if err := checkPrincipal(caller); err != nil {
		return domain.Gig{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, err
	}
	defer tx.Rollback()

	g := domain.Gig{
		Employer:      caller,
		Description:   description,
		RequiredSkill: requiredSkill,
		Bounty:        bounty,
		Status:        "open",
		CreatedAt:     e.timestamp(),
	}
	id, err := e.Repo.InsertGigTx(ctx, tx, g)
	if err != nil {
		return domain.Gig{}, err
	}
	if err := e.Vault.Transfer(ctx, tx, caller, vault.GigAccount(id), bounty, "gig bounty escrow"); err != nil {
		return domain.Gig{}, err
	}
	if err := e.Events.Append(ctx, tx, "market.gig.posted", "gig", strconv.FormatInt(id, 10), caller, events.EventPayload{
		"gig_id":   id,
		"employer": caller,
		"bounty":   bounty,
	}); err != nil {
		return domain.Gig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, err
	}
	return e.Repo.GetGig(ctx, id)
}

// ApplyForGig records a registered, skill-matching worker's application.
// The first application advances the gig to "applied"; later applications
// are recorded without a further status change.
func (e Engine) ApplyForGig(ctx context.Context, caller string, gigID int64) (domain.Gig, error) {
	worker, err := e.Repo.GetWorker(ctx, caller)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Gig{}, ErrWorkerNotRegistered
	}
	if err != nil {
		return domain.Gig{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGigTx(ctx, tx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}
	if worker.Skill != g.RequiredSkill {
		return domain.Gig{}, fmt.Errorf("%w: gig requires %q", ErrSkillMismatch, g.RequiredSkill)
	}
	if g.Status != "open" && g.Status != "applied" {
		return domain.Gig{}, fmt.Errorf("%w: gig is %s", ErrInvalidState, g.Status)
	}
	applied, err := e.Repo.HasAppliedTx(ctx, tx, gigID, caller)
	if err != nil {
		return domain.Gig{}, err
	}
	if applied {
		return domain.Gig{}, ErrAlreadyApplied
	}
	if err := e.Repo.InsertApplicationTx(ctx, tx, gigID, caller, e.timestamp()); err != nil {
		return domain.Gig{}, err
	}
	if g.Status == "open" {
		if err := e.Repo.SetGigStatusTx(ctx, tx, gigID, "applied"); err != nil {
			return domain.Gig{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "market.gig.applied", "gig", strconv.FormatInt(gigID, 10), caller, events.EventPayload{
		"gig_id": gigID,
		"worker": caller,
	}); err != nil {
		return domain.Gig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, err
	}
	return e.Repo.GetGig(ctx, gigID)
}

// SubmitWork records a deliverable. The first applicant to submit becomes
// the assigned worker for payment; later submissions are rejected.
func (e Engine) SubmitWork(ctx context.Context, caller string, gigID int64, uri string) (domain.Gig, error) {
	if uri == "" {
		return domain.Gig{}, errors.New("submission uri required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGigTx(ctx, tx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}
	switch g.Status {
	case "submitted":
		return domain.Gig{}, ErrAlreadySubmitted
	case "paid":
		return domain.Gig{}, fmt.Errorf("%w: gig already paid", ErrInvalidState)
	}
	applied, err := e.Repo.HasAppliedTx(ctx, tx, gigID, caller)
	if err != nil {
		return domain.Gig{}, err
	}
	if !applied {
		return domain.Gig{}, fmt.Errorf("%w: only applicants can submit work", ErrUnauthorized)
	}
	if err := e.Repo.SubmitGigTx(ctx, tx, gigID, caller, uri); err != nil {
		return domain.Gig{}, err
	}
	if err := e.Events.Append(ctx, tx, "market.gig.submitted", "gig", strconv.FormatInt(gigID, 10), caller, events.EventPayload{
		"gig_id": gigID,
		"worker": caller,
		"uri":    uri,
	}); err != nil {
		return domain.Gig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, err
	}
	return e.Repo.GetGig(ctx, gigID)
}

// ApproveAndPay releases the escrowed bounty to the assigned worker. The
// gig is marked paid before the release; paid is terminal, so a second
// approval fails without touching balances.
func (e Engine) ApproveAndPay(ctx context.Context, caller string, gigID int64, worker string) (domain.Gig, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGigTx(ctx, tx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}
	if caller != g.Employer {
		return domain.Gig{}, fmt.Errorf("%w: only the employer can approve work", ErrUnauthorized)
	}
	if g.Status != "submitted" {
		return domain.Gig{}, fmt.Errorf("%w: gig is %s", ErrInvalidState, g.Status)
	}
	if g.AssignedWorker == nil || *g.AssignedWorker != worker {
		return domain.Gig{}, fmt.Errorf("%w: %s is not the assigned worker", ErrInvalidState, worker)
	}
	if err := e.Repo.MarkGigPaidTx(ctx, tx, gigID, e.timestamp()); err != nil {
		return domain.Gig{}, err
	}
	if err := e.Vault.Transfer(ctx, tx, vault.GigAccount(gigID), worker, g.Bounty, "gig bounty release"); err != nil {
		return domain.Gig{}, err
	}
	if err := e.Events.Append(ctx, tx, "market.gig.paid", "gig", strconv.FormatInt(gigID, 10), caller, events.EventPayload{
		"gig_id": gigID,
		"worker": worker,
		"amount": g.Bounty,
	}); err != nil {
		return domain.Gig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, err
	}
	return e.Repo.GetGig(ctx, gigID)
}

// --- reads ---

func (e Engine) GetGig(ctx context.Context, gigID int64) (domain.Gig, error) {
	return e.Repo.GetGig(ctx, gigID)
}

func (e Engine) GigCount(ctx context.Context) (int64, error) {
	return e.Repo.GigCount(ctx)
}

func (e Engine) GetWorker(ctx context.Context, principal string) (domain.Worker, error) {
	return e.Repo.GetWorker(ctx, principal)
}

func (e Engine) HasApplied(ctx context.Context, gigID int64, principal string) (bool, error) {
	return e.Repo.HasApplied(ctx, gigID, principal)
}
