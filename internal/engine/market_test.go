package engine_test

import (
	"errors"
	"testing"

	"bountypot/internal/domain"
	"bountypot/internal/engine"
	"bountypot/internal/repo"
	"bountypot/internal/vault"
)

func TestRegisterWorker(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.RegisterWorker(env.Ctx, "wendy", "golang")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if w.Principal != "wendy" || w.Skill != "golang" || !w.Registered {
		t.Fatalf("worker = %+v", w)
	}
	if _, err := env.Engine.RegisterWorker(env.Ctx, "wendy", "rust"); !errors.Is(err, engine.ErrAlreadyRegistered) {
		t.Fatalf("re-register: %v, want ErrAlreadyRegistered", err)
	}
	got, err := env.Engine.GetWorker(env.Ctx, "wendy")
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if got.Skill != "golang" {
		t.Fatalf("skill = %q after failed re-register, want golang", got.Skill)
	}
}

func TestRegisterWorkerRequiresSkill(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterWorker(env.Ctx, "wendy", ""); err == nil {
		t.Fatal("register with empty skill succeeded")
	}
}

func TestPostGigEscrowsBounty(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "emma", 1000)

	g, err := env.Engine.PostGig(env.Ctx, "emma", "build a parser", "golang", 600)
	if err != nil {
		t.Fatalf("post gig: %v", err)
	}
	if g.Status != "open" {
		t.Fatalf("gig status = %q, want open", g.Status)
	}
	if g.Employer != "emma" || g.Bounty != 600 {
		t.Fatalf("gig = %+v", g)
	}
	if got := env.balance(t, "emma"); got != 400 {
		t.Fatalf("emma balance = %d after escrow, want 400", got)
	}
	escrow, err := env.Engine.Vault.Balance(env.Ctx, vault.GigAccount(g.ID))
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow != 600 {
		t.Fatalf("escrow = %d, want 600", escrow)
	}
}

func TestPostGigZeroBounty(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.PostGig(env.Ctx, "emma", "free work", "golang", 0); !errors.Is(err, engine.ErrZeroBounty) {
		t.Fatalf("zero bounty: %v, want ErrZeroBounty", err)
	}
	if _, err := env.Engine.PostGig(env.Ctx, "emma", "negative work", "golang", -5); !errors.Is(err, engine.ErrZeroBounty) {
		t.Fatalf("negative bounty: %v, want ErrZeroBounty", err)
	}
}

func TestPostGigInsufficientFundsRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "emma", 100)
	if _, err := env.Engine.PostGig(env.Ctx, "emma", "big job", "golang", 500); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("post without funds: %v, want ErrInsufficientFunds", err)
	}
	n, err := env.Engine.GigCount(env.Ctx)
	if err != nil {
		t.Fatalf("gig count: %v", err)
	}
	if n != 0 {
		t.Fatalf("gig count = %d after rolled-back post, want 0", n)
	}
	if got := env.balance(t, "emma"); got != 100 {
		t.Fatalf("emma balance = %d, want 100", got)
	}
}

func TestApplyRequiresRegistration(t *testing.T) {
	env := newTestEnv(t)
	g := postGig(t, &env, "emma", "golang", 500)
	if _, err := env.Engine.ApplyForGig(env.Ctx, "stranger", g.ID); !errors.Is(err, engine.ErrWorkerNotRegistered) {
		t.Fatalf("apply unregistered: %v, want ErrWorkerNotRegistered", err)
	}
}

func TestApplySkillMismatch(t *testing.T) {
	env := newTestEnv(t)
	g := postGig(t, &env, "emma", "golang", 500)
	if _, err := env.Engine.RegisterWorker(env.Ctx, "wendy", "rust"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.Engine.ApplyForGig(env.Ctx, "wendy", g.ID); !errors.Is(err, engine.ErrSkillMismatch) {
		t.Fatalf("skill mismatch: %v, want ErrSkillMismatch", err)
	}
}

func TestApplyAdvancesGig(t *testing.T) {
	env := newTestEnv(t)
	g := postGig(t, &env, "emma", "golang", 500)
	registerWorker(t, &env, "wendy", "golang")

	applied, err := env.Engine.ApplyForGig(env.Ctx, "wendy", g.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Status != "applied" {
		t.Fatalf("gig status = %q, want applied", applied.Status)
	}
	if _, err := env.Engine.ApplyForGig(env.Ctx, "wendy", g.ID); !errors.Is(err, engine.ErrAlreadyApplied) {
		t.Fatalf("re-apply: %v, want ErrAlreadyApplied", err)
	}

	// A second worker can still apply; the status stays applied.
	registerWorker(t, &env, "walt", "golang")
	again, err := env.Engine.ApplyForGig(env.Ctx, "walt", g.ID)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if again.Status != "applied" {
		t.Fatalf("gig status = %q after second apply, want applied", again.Status)
	}
	if len(again.Applicants) != 2 {
		t.Fatalf("applicants = %v, want 2", again.Applicants)
	}
}

func TestApplyToMissingGig(t *testing.T) {
	env := newTestEnv(t)
	registerWorker(t, &env, "wendy", "golang")
	if _, err := env.Engine.ApplyForGig(env.Ctx, "wendy", 42); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("apply to missing gig: %v, want ErrNotFound", err)
	}
}

func TestSubmitWork(t *testing.T) {
	env := newTestEnv(t)
	g := appliedGig(t, &env, "emma", "wendy")

	sub, err := env.Engine.SubmitWork(env.Ctx, "wendy", g.ID, "ipfs://deliverable")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != "submitted" {
		t.Fatalf("gig status = %q, want submitted", sub.Status)
	}
	if sub.AssignedWorker == nil || *sub.AssignedWorker != "wendy" {
		t.Fatalf("assigned worker = %v, want wendy", sub.AssignedWorker)
	}
	if sub.SubmissionURI == nil || *sub.SubmissionURI != "ipfs://deliverable" {
		t.Fatalf("submission uri = %v", sub.SubmissionURI)
	}
}

func TestSubmitRequiresApplication(t *testing.T) {
	env := newTestEnv(t)
	g := appliedGig(t, &env, "emma", "wendy")
	registerWorker(t, &env, "walt", "golang")
	if _, err := env.Engine.SubmitWork(env.Ctx, "walt", g.ID, "ipfs://x"); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("submit by non-applicant: %v, want ErrUnauthorized", err)
	}
}

func TestSubmitFirstWins(t *testing.T) {
	env := newTestEnv(t)
	g := appliedGig(t, &env, "emma", "wendy")
	registerWorker(t, &env, "walt", "golang")
	if _, err := env.Engine.ApplyForGig(env.Ctx, "walt", g.ID); err != nil {
		t.Fatalf("apply walt: %v", err)
	}
	if _, err := env.Engine.SubmitWork(env.Ctx, "wendy", g.ID, "ipfs://first"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.SubmitWork(env.Ctx, "walt", g.ID, "ipfs://second"); !errors.Is(err, engine.ErrAlreadySubmitted) {
		t.Fatalf("second submit: %v, want ErrAlreadySubmitted", err)
	}
	got, err := env.Engine.GetGig(env.Ctx, g.ID)
	if err != nil {
		t.Fatalf("get gig: %v", err)
	}
	if got.AssignedWorker == nil || *got.AssignedWorker != "wendy" {
		t.Fatalf("assigned worker = %v, want wendy", got.AssignedWorker)
	}
}

func TestSubmitRequiresURI(t *testing.T) {
	env := newTestEnv(t)
	g := appliedGig(t, &env, "emma", "wendy")
	if _, err := env.Engine.SubmitWork(env.Ctx, "wendy", g.ID, ""); err == nil {
		t.Fatal("submit with empty uri succeeded")
	}
}

func TestApproveAndPay(t *testing.T) {
	env := newTestEnv(t)
	g := submittedGig(t, &env, "emma", "wendy")

	paid, err := env.Engine.ApproveAndPay(env.Ctx, "emma", g.ID, "wendy")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if paid.Status != "paid" {
		t.Fatalf("gig status = %q, want paid", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Fatal("paid_at not set")
	}
	if got := env.balance(t, "wendy"); got != 500 {
		t.Fatalf("wendy balance = %d, want 500", got)
	}
	escrow, err := env.Engine.Vault.Balance(env.Ctx, vault.GigAccount(g.ID))
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow != 0 {
		t.Fatalf("escrow = %d after release, want 0", escrow)
	}
}

func TestApproveRequiresEmployer(t *testing.T) {
	env := newTestEnv(t)
	g := submittedGig(t, &env, "emma", "wendy")
	if _, err := env.Engine.ApproveAndPay(env.Ctx, "wendy", g.ID, "wendy"); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("approve by worker: %v, want ErrUnauthorized", err)
	}
	if got := env.balance(t, "wendy"); got != 0 {
		t.Fatalf("wendy balance = %d after denied approve, want 0", got)
	}
}

func TestApproveBeforeSubmission(t *testing.T) {
	env := newTestEnv(t)
	g := appliedGig(t, &env, "emma", "wendy")
	if _, err := env.Engine.ApproveAndPay(env.Ctx, "emma", g.ID, "wendy"); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("approve before submission: %v, want ErrInvalidState", err)
	}
}

func TestApproveWrongWorker(t *testing.T) {
	env := newTestEnv(t)
	g := submittedGig(t, &env, "emma", "wendy")
	if _, err := env.Engine.ApproveAndPay(env.Ctx, "emma", g.ID, "walt"); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("approve wrong worker: %v, want ErrInvalidState", err)
	}
}

func TestApprovePaidGigIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	g := submittedGig(t, &env, "emma", "wendy")
	if _, err := env.Engine.ApproveAndPay(env.Ctx, "emma", g.ID, "wendy"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.ApproveAndPay(env.Ctx, "emma", g.ID, "wendy"); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("second approve: %v, want ErrInvalidState", err)
	}
	if got := env.balance(t, "wendy"); got != 500 {
		t.Fatalf("wendy balance = %d after double approve, want 500", got)
	}
	if _, err := env.Engine.SubmitWork(env.Ctx, "wendy", g.ID, "ipfs://again"); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("submit to paid gig: %v, want ErrInvalidState", err)
	}
	registerWorker(t, &env, "walt", "golang")
	if _, err := env.Engine.ApplyForGig(env.Ctx, "walt", g.ID); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("apply to paid gig: %v, want ErrInvalidState", err)
	}
}

func TestCustodyAccountsNotAdmittedAsCallers(t *testing.T) {
	env := newTestEnv(t)
	g := submittedGig(t, &env, "emma", "wendy")
	escrowAccount := vault.GigAccount(g.ID)

	// A caller carrying the escrow account's own name must never be let
	// in: it would hold the bounty as spendable balance.
	if _, err := env.Engine.PostGig(env.Ctx, escrowAccount, "drain", "golang", 500); !errors.Is(err, engine.ErrReservedPrincipal) {
		t.Fatalf("post as %q: %v, want ErrReservedPrincipal", escrowAccount, err)
	}
	if _, err := env.Engine.RegisterWorker(env.Ctx, escrowAccount, "golang"); !errors.Is(err, engine.ErrReservedPrincipal) {
		t.Fatalf("register as %q: %v, want ErrReservedPrincipal", escrowAccount, err)
	}
	if err := env.Engine.Deposit(env.Ctx, owner, "mint", 100); !errors.Is(err, engine.ErrReservedPrincipal) {
		t.Fatalf("deposit to mint: %v, want ErrReservedPrincipal", err)
	}
	if err := env.Engine.Deposit(env.Ctx, owner, escrowAccount, 100); !errors.Is(err, engine.ErrReservedPrincipal) {
		t.Fatalf("deposit to %q: %v, want ErrReservedPrincipal", escrowAccount, err)
	}

	escrow, err := env.Engine.Vault.Balance(env.Ctx, escrowAccount)
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow != 500 {
		t.Fatalf("escrow = %d, want 500", escrow)
	}

	// The legitimate path is unaffected.
	if _, err := env.Engine.ApproveAndPay(env.Ctx, "emma", g.ID, "wendy"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := env.balance(t, "wendy"); got != 500 {
		t.Fatalf("wendy balance = %d, want 500", got)
	}
}

// --- helpers ---

func registerWorker(t *testing.T, env *testEnv, principal, skill string) {
	t.Helper()
	if _, err := env.Engine.RegisterWorker(env.Ctx, principal, skill); err != nil {
		t.Fatalf("register %s: %v", principal, err)
	}
}

func postGig(t *testing.T, env *testEnv, employer, skill string, bounty int64) domain.Gig {
	t.Helper()
	env.fund(t, employer, bounty)
	g, err := env.Engine.PostGig(env.Ctx, employer, "test gig", skill, bounty)
	if err != nil {
		t.Fatalf("post gig: %v", err)
	}
	return g
}

func appliedGig(t *testing.T, env *testEnv, employer, worker string) domain.Gig {
	t.Helper()
	g := postGig(t, env, employer, "golang", 500)
	registerWorker(t, env, worker, "golang")
	if _, err := env.Engine.ApplyForGig(env.Ctx, worker, g.ID); err != nil {
		t.Fatalf("apply %s: %v", worker, err)
	}
	return g
}

func submittedGig(t *testing.T, env *testEnv, employer, worker string) domain.Gig {
	t.Helper()
	g := appliedGig(t, env, employer, worker)
	if _, err := env.Engine.SubmitWork(env.Ctx, worker, g.ID, "ipfs://deliverable"); err != nil {
		t.Fatalf("submit %s: %v", worker, err)
	}
	return g
}
