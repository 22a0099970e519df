package domain

// Round is one lottery cycle. Exactly one round has status "open" at any
// time; resolved rounds keep their settlement columns for auditing.
type Round struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status" enum:"open,resolved"`
	OpenedAt      string  `json:"opened_at" format:"date-time"`
	ResolvedAt    *string `json:"resolved_at,omitempty" format:"date-time"`
	Winner        *string `json:"winner,omitempty"`
	OwnerFee      *int64  `json:"owner_fee,omitempty"`
	WinnerPayout  *int64  `json:"winner_payout,omitempty"`
	UniquePlayers int     `json:"unique_players"`
	TotalEntries  int64   `json:"total_entries"`
	Pot           int64   `json:"pot"`
}

// Entry is a player's accumulated stake in a round. Count grows by one per
// whole multiple of the minimum fee admitted.
type Entry struct {
	RoundID int64  `json:"round_id"`
	Player  string `json:"player"`
	Count   int64  `json:"count"`
	Value   int64  `json:"value"`
}

type Worker struct {
	Principal    string `json:"principal"`
	Skill        string `json:"skill"`
	Registered   bool   `json:"registered"`
	RegisteredAt string `json:"registered_at" format:"date-time"`
}

type Gig struct {
	ID             int64    `json:"id"`
	Employer       string   `json:"employer"`
	Description    string   `json:"description"`
	RequiredSkill  string   `json:"required_skill"`
	Bounty         int64    `json:"bounty"`
	Status         string   `json:"status" enum:"open,applied,submitted,paid"`
	AssignedWorker *string  `json:"assigned_worker,omitempty"`
	SubmissionURI  *string  `json:"submission_uri,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	PaidAt         *string  `json:"paid_at,omitempty" format:"date-time"`
	Applicants     []string `json:"applicants,omitempty"`
}

type Account struct {
	Principal string `json:"principal"`
	Balance   int64  `json:"balance"`
}

// Transfer is a vault movement receipt. Custody accounts use the
// "round:N" / "gig:N" naming; "mint" is the source of owner deposits.
type Transfer struct {
	ID     string `json:"id"`
	TS     string `json:"ts" format:"date-time"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Principal  string `json:"principal"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	Principal string `json:"principal"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
