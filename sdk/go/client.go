package bountypotsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal BountyPot HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Round represents one lottery cycle. Amounts are decimal strings.
type Round struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	OpenedAt      string  `json:"opened_at"`
	ResolvedAt    *string `json:"resolved_at,omitempty"`
	Winner        *string `json:"winner,omitempty"`
	OwnerFee      *string `json:"owner_fee,omitempty"`
	WinnerPayout  *string `json:"winner_payout,omitempty"`
	UniquePlayers int     `json:"unique_players"`
	TotalEntries  int64   `json:"total_entries"`
	Pot           string  `json:"pot"`
}

// Entry is a player's accumulated stake in a round.
type Entry struct {
	RoundID int64  `json:"round_id"`
	Player  string `json:"player"`
	Count   int64  `json:"count"`
	Value   string `json:"value"`
}

// LotteryStatus is the current round plus the fixed parameters.
type LotteryStatus struct {
	Round         Round  `json:"round"`
	Paused        bool   `json:"paused"`
	MinEntryFee   string `json:"min_entry_fee"`
	RoundDuration string `json:"round_duration"`
}

type Worker struct {
	Principal    string `json:"principal"`
	Skill        string `json:"skill"`
	Registered   bool   `json:"registered"`
	RegisteredAt string `json:"registered_at"`
}

type Gig struct {
	ID             int64    `json:"id"`
	Employer       string   `json:"employer"`
	Description    string   `json:"description"`
	RequiredSkill  string   `json:"required_skill"`
	Bounty         string   `json:"bounty"`
	Status         string   `json:"status"`
	AssignedWorker *string  `json:"assigned_worker,omitempty"`
	SubmissionURI  *string  `json:"submission_uri,omitempty"`
	CreatedAt      string   `json:"created_at"`
	PaidAt         *string  `json:"paid_at,omitempty"`
	Applicants     []string `json:"applicants,omitempty"`
}

type Balance struct {
	Principal string `json:"principal"`
	Balance   string `json:"balance"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Principal  string         `json:"principal"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Status returns the current round and pause state.
func (c *Client) Status(ctx context.Context) (LotteryStatus, error) {
	var resp LotteryStatus
	err := c.do(ctx, http.MethodGet, "v0/lottery/status", nil, &resp)
	return resp, err
}

// Enter stakes value (a decimal string) on the current round.
func (c *Client) Enter(ctx context.Context, value string) (Entry, error) {
	var resp Entry
	err := c.do(ctx, http.MethodPost, "v0/lottery/entries", map[string]any{"value": value}, &resp)
	return resp, err
}

// PlayerEntry returns a player's stake in the current round.
func (c *Client) PlayerEntry(ctx context.Context, player string) (Entry, error) {
	var resp Entry
	endpoint := fmt.Sprintf("v0/lottery/entries/%s", url.PathEscape(player))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Draw resolves the current round. Owner only.
func (c *Client) Draw(ctx context.Context) (Round, error) {
	var resp Round
	err := c.do(ctx, http.MethodPost, "v0/lottery/draw", nil, &resp)
	return resp, err
}

// Rounds returns the round history, newest first.
func (c *Client) Rounds(ctx context.Context, limit int) ([]Round, error) {
	var resp []Round
	err := c.do(ctx, http.MethodGet, withLimit("v0/lottery/rounds", limit), nil, &resp)
	return resp, err
}

// Pause halts lottery entries. Owner only.
func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v0/lottery/pause", nil, nil)
}

// Unpause resumes lottery entries. Owner only.
func (c *Client) Unpause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v0/lottery/unpause", nil, nil)
}

// RegisterWorker registers the caller with a skill.
func (c *Client) RegisterWorker(ctx context.Context, skill string) (Worker, error) {
	var resp Worker
	err := c.do(ctx, http.MethodPost, "v0/market/workers", map[string]any{"skill": skill}, &resp)
	return resp, err
}

// PostGig posts a gig; bounty is a decimal string escrowed from the caller.
func (c *Client) PostGig(ctx context.Context, description, requiredSkill, bounty string) (Gig, error) {
	body := map[string]any{
		"description":    description,
		"required_skill": requiredSkill,
		"bounty":         bounty,
	}
	var resp Gig
	err := c.do(ctx, http.MethodPost, "v0/market/gigs", body, &resp)
	return resp, err
}

// Gigs lists gigs, optionally filtered by status.
func (c *Client) Gigs(ctx context.Context, status string, limit int) ([]Gig, error) {
	endpoint := withLimit("v0/market/gigs", limit)
	if status != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%sstatus=%s", endpoint, sep, url.QueryEscape(status))
	}
	var resp []Gig
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Gig fetches a gig by id.
func (c *Client) Gig(ctx context.Context, id int64) (Gig, error) {
	var resp Gig
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/market/gigs/%d", id), nil, &resp)
	return resp, err
}

// Apply applies the caller to a gig.
func (c *Client) Apply(ctx context.Context, gigID int64) (Gig, error) {
	var resp Gig
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/market/gigs/%d/applications", gigID), nil, &resp)
	return resp, err
}

// Submit submits completed work for a gig.
func (c *Client) Submit(ctx context.Context, gigID int64, submissionURI string) (Gig, error) {
	var resp Gig
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/market/gigs/%d/submission", gigID),
		map[string]any{"submission_uri": submissionURI}, &resp)
	return resp, err
}

// Approve approves submitted work and releases the bounty. Employer only.
func (c *Client) Approve(ctx context.Context, gigID int64, worker string) (Gig, error) {
	var resp Gig
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/market/gigs/%d/payment", gigID),
		map[string]any{"worker": worker}, &resp)
	return resp, err
}

// Balance returns an account balance.
func (c *Client) Balance(ctx context.Context, principal string) (Balance, error) {
	var resp Balance
	endpoint := fmt.Sprintf("v0/ledger/balances/%s", url.PathEscape(principal))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Deposit credits a principal's account. Owner only.
func (c *Client) Deposit(ctx context.Context, to, amount string) (Balance, error) {
	var resp Balance
	err := c.do(ctx, http.MethodPost, "v0/ledger/deposits",
		map[string]any{"to": to, "amount": amount}, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, withLimit("v0/events", limit), nil, &resp)
	return resp, err
}

func withLimit(endpoint string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
