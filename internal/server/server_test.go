package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"bountypot/internal/config"
	"bountypot/internal/db"
	"bountypot/internal/engine"
	"bountypot/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := e.Init(context.Background(), "owner"); err != nil {
		t.Fatalf("init: %v", err)
	}
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{AllowLegacyPrincipalHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url, principal string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal", principal)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestLotteryEntryFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/deposits", "owner", map[string]any{
		"to":     "alice",
		"amount": "0.05",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("deposit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/lottery/entries", "alice", map[string]any{
		"value": "0.03",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("enter status %d: %s", res.StatusCode, string(data))
	}
	var entry EntryResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.Count != 3 {
		t.Fatalf("entry count = %d, want 3", entry.Count)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/lottery/status", "alice", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var status LotteryStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Round.Pot != "0.03" {
		t.Fatalf("pot = %q, want 0.03", status.Round.Pot)
	}
	if status.Round.TotalEntries != 3 {
		t.Fatalf("total entries = %d, want 3", status.Round.TotalEntries)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ledger/balances/alice", "alice", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("balance status %d: %s", res.StatusCode, string(data))
	}
	var bal BalanceResponse
	if err := json.Unmarshal(data, &bal); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	if bal.Balance != "0.02" {
		t.Fatalf("balance = %q, want 0.02", bal.Balance)
	}
}

func TestEntryBelowFeeRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/deposits", "owner", map[string]any{
		"to": "alice", "amount": "0.05",
	})
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/lottery/entries", "alice", map[string]any{
		"value": "0.005",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("below-fee entry status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("error code = %q, want bad_request", envelope.Error.Code)
	}
}

func TestDrawForbiddenForNonOwner(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/lottery/draw", "mallory", nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("draw by non-owner status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "forbidden" {
		t.Fatalf("error code = %q, want forbidden", envelope.Error.Code)
	}
}

func TestPauseConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/lottery/pause", "owner", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d: %s", res.StatusCode, string(data))
	}
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/deposits", "owner", map[string]any{
		"to": "alice", "amount": "0.05",
	})
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/lottery/entries", "alice", map[string]any{
		"value": "0.01",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("enter while paused status %d: %s", res.StatusCode, string(data))
	}
}

func TestGigLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/deposits", "owner", map[string]any{
		"to": "emma", "amount": "1",
	})
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/market/gigs", "emma", map[string]any{
		"description":    "write integration tests",
		"required_skill": "golang",
		"bounty":         "0.5",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post gig status %d: %s", res.StatusCode, string(data))
	}
	var gig GigResponse
	if err := json.Unmarshal(data, &gig); err != nil {
		t.Fatalf("unmarshal gig: %v", err)
	}
	if gig.Status != "open" || gig.Bounty != "0.5" {
		t.Fatalf("gig = %+v", gig)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/market/workers", "wendy", map[string]any{
		"skill": "golang",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}

	gigURL := srv.URL + "/v0/market/gigs/" + strconv.FormatInt(gig.ID, 10)
	res, data = doJSON(t, client, http.MethodPost, gigURL+"/applications", "wendy", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, gigURL+"/submission", "wendy", map[string]any{
		"submission_uri": "https://example.com/pr/1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, gigURL+"/payment", "emma", map[string]any{
		"worker": "wendy",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pay status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &gig); err != nil {
		t.Fatalf("unmarshal paid gig: %v", err)
	}
	if gig.Status != "paid" {
		t.Fatalf("gig status = %q, want paid", gig.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ledger/balances/wendy", "wendy", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("balance status %d: %s", res.StatusCode, string(data))
	}
	var bal BalanceResponse
	if err := json.Unmarshal(data, &bal); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	if bal.Balance != "0.5" {
		t.Fatalf("wendy balance = %q, want 0.5", bal.Balance)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/lottery/status", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d, want 200 without auth", res.StatusCode)
	}
}
