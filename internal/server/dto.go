package server

import (
	"encoding/json"

	"bountypot/internal/domain"
	"bountypot/internal/money"
	"bountypot/internal/vault"
)

// Request payloads. All monetary amounts cross the wire as decimal strings.

type DepositRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount" example:"1.5"`
}

type EnterLotteryRequest struct {
	Value string `json:"value" example:"0.03"`
}

type RegisterWorkerRequest struct {
	Skill string `json:"skill" example:"golang"`
}

type PostGigRequest struct {
	Description   string `json:"description"`
	RequiredSkill string `json:"required_skill"`
	Bounty        string `json:"bounty" example:"0.1"`
}

type SubmitWorkRequest struct {
	SubmissionURI string `json:"submission_uri"`
}

type ApproveGigRequest struct {
	Worker string `json:"worker"`
}

type CreateAPIKeyRequest struct {
	Principal string `json:"principal"`
	Name      string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	Principal string `json:"principal"`
}

// Response payloads

type RoundResponse struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status" enum:"open,resolved"`
	OpenedAt      string  `json:"opened_at" format:"date-time"`
	ResolvedAt    *string `json:"resolved_at,omitempty" format:"date-time"`
	Winner        *string `json:"winner,omitempty"`
	OwnerFee      *string `json:"owner_fee,omitempty"`
	WinnerPayout  *string `json:"winner_payout,omitempty"`
	UniquePlayers int     `json:"unique_players"`
	TotalEntries  int64   `json:"total_entries"`
	Pot           string  `json:"pot"`
}

type EntryResponse struct {
	RoundID int64  `json:"round_id"`
	Player  string `json:"player"`
	Count   int64  `json:"count"`
	Value   string `json:"value"`
}

type LotteryStatusResponse struct {
	Round         RoundResponse `json:"round"`
	Paused        bool          `json:"paused"`
	MinEntryFee   string        `json:"min_entry_fee"`
	RoundDuration string        `json:"round_duration"`
}

type WorkerResponse struct {
	Principal    string `json:"principal"`
	Skill        string `json:"skill"`
	Registered   bool   `json:"registered"`
	RegisteredAt string `json:"registered_at" format:"date-time"`
}

type GigResponse struct {
	ID             int64    `json:"id"`
	Employer       string   `json:"employer"`
	Description    string   `json:"description"`
	RequiredSkill  string   `json:"required_skill"`
	Bounty         string   `json:"bounty"`
	Status         string   `json:"status" enum:"open,applied,submitted,paid"`
	AssignedWorker *string  `json:"assigned_worker,omitempty"`
	SubmissionURI  *string  `json:"submission_uri,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	PaidAt         *string  `json:"paid_at,omitempty" format:"date-time"`
	Applicants     []string `json:"applicants,omitempty"`
}

type BalanceResponse struct {
	Principal string `json:"principal"`
	Balance   string `json:"balance"`
}

type ReceiptResponse struct {
	ID     string `json:"id"`
	TS     string `json:"ts" format:"date-time"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	Principal  string          `json:"principal"`
	Payload    json.RawMessage `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Principal string `json:"principal"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present in the create response.
	Key string `json:"key,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func roundResponse(rd domain.Round) RoundResponse {
	return RoundResponse{
		ID:            rd.ID,
		Status:        rd.Status,
		OpenedAt:      rd.OpenedAt,
		ResolvedAt:    rd.ResolvedAt,
		Winner:        rd.Winner,
		OwnerFee:      formatOptional(rd.OwnerFee),
		WinnerPayout:  formatOptional(rd.WinnerPayout),
		UniquePlayers: rd.UniquePlayers,
		TotalEntries:  rd.TotalEntries,
		Pot:           money.Format(rd.Pot),
	}
}

func entryResponse(en domain.Entry) EntryResponse {
	return EntryResponse{
		RoundID: en.RoundID,
		Player:  en.Player,
		Count:   en.Count,
		Value:   money.Format(en.Value),
	}
}

func workerResponse(w domain.Worker) WorkerResponse {
	return WorkerResponse{
		Principal:    w.Principal,
		Skill:        w.Skill,
		Registered:   w.Registered,
		RegisteredAt: w.RegisteredAt,
	}
}

func gigResponse(g domain.Gig) GigResponse {
	return GigResponse{
		ID:             g.ID,
		Employer:       g.Employer,
		Description:    g.Description,
		RequiredSkill:  g.RequiredSkill,
		Bounty:         money.Format(g.Bounty),
		Status:         g.Status,
		AssignedWorker: g.AssignedWorker,
		SubmissionURI:  g.SubmissionURI,
		CreatedAt:      g.CreatedAt,
		PaidAt:         g.PaidAt,
		Applicants:     g.Applicants,
	}
}

func mapGigs(items []domain.Gig) []GigResponse {
	res := []GigResponse{}
	for _, g := range items {
		res = append(res, gigResponse(g))
	}
	return res
}

func mapWorkers(items []domain.Worker) []WorkerResponse {
	res := []WorkerResponse{}
	for _, w := range items {
		res = append(res, workerResponse(w))
	}
	return res
}

func receiptResponse(r vault.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:     r.ID,
		TS:     r.TS,
		From:   r.From,
		To:     r.To,
		Amount: money.Format(r.Amount),
		Reason: r.Reason,
	}
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Principal:  evt.Principal,
		Payload:    payload,
	}
}

func formatOptional(v *int64) *string {
	if v == nil {
		return nil
	}
	s := money.Format(*v)
	return &s
}
