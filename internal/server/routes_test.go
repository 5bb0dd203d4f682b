package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"altitude/internal/config"
	"altitude/internal/database"
	"altitude/internal/game"
	"altitude/internal/rates"
	"altitude/internal/wallet"
)

type fakeArchive struct {
	records []database.RoundRecord
}

func (f *fakeArchive) Health() map[string]string { return map[string]string{"status": "up"} }
func (f *fakeArchive) Close() error              { return nil }
func (f *fakeArchive) SaveRound(context.Context, *game.Round) error {
	return nil
}
func (f *fakeArchive) InsertLedgerEntry(context.Context, wallet.LedgerEntry) error {
	return nil
}
func (f *fakeArchive) Append(context.Context, wallet.LedgerEntry) error {
	return nil
}
func (f *fakeArchive) RecentRounds(_ context.Context, limit int) ([]database.RoundRecord, error) {
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

func newTestServer(t *testing.T) *FiberServer {
	t.Helper()

	conf := &config.Config{
		Port:                 8080,
		ReferenceCurrency:    "USD",
		SettlementCurrencies: []string{"BTC", "ETH", "USDT"},
		Game: config.Game{
			WagerWindow:      5 * time.Second,
			MaxRoundDuration: 60 * time.Second,
			TickInterval:     100 * time.Millisecond,
			Cooldown:         time.Second,
			GrowthFactor:     0.01,
			HouseEdge:        0.01,
			MaxCrash:         100,
			MinStake:         1,
			MaxStake:         10000,
		},
	}

	store := game.NewRoundStore()
	balances := wallet.NewMemoryStore()
	engine := game.NewSettlementEngine(store, balances, wallet.NewMemoryLedger(), rates.Static{"BTC": 10000, "ETH": 1000, "USDT": 1}, nil, conf)

	s := &FiberServer{
		App:       fiber.New(),
		conf:      conf,
		db:        &fakeArchive{},
		hub:       game.NewHub(),
		store:     store,
		engine:    engine,
		wallet:    balances,
		generator: game.Generator{HouseEdge: conf.Game.HouseEdge, MaxCrash: conf.Game.MaxCrash},
	}
	s.RegisterFiberRoutes()
	return s
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.App.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	decode(t, resp, &body)
	if body["database"] == nil || body["game"] == nil {
		t.Errorf("health body missing sections: %v", body)
	}
}

func TestRoundStateRoute(t *testing.T) {
	s := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/round", nil)
	resp, _ := s.App.Test(req, -1)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status without round = %d, want 404", resp.StatusCode)
	}

	s.store.CreateRound("R1-1", "secret-seed", 2.5, "commitment")

	resp, _ = s.App.Test(req, -1)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var view map[string]interface{}
	decode(t, resp, &view)
	if view["round_id"] != "R1-1" || view["status"] != "WAITING" {
		t.Errorf("view = %v", view)
	}
	if view["hash"] != "commitment" {
		t.Errorf("hash = %v, want commitment exposed", view["hash"])
	}
	if seed, ok := view["seed"]; ok && seed != "" {
		t.Errorf("seed leaked before crash: %v", seed)
	}
}

func TestWagerRoute(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	s.engine.Deposit(ctx, "alice", 100, "USD")
	s.store.CreateRound("R1-1", "seed", 2.5, "hash")

	resp := postJSON(t, s.App, "/api/v1/round/wager", fiber.Map{
		"participant_id": "alice",
		"stake":          10,
		"currency":       "BTC",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var wager map[string]interface{}
	decode(t, resp, &wager)
	if wager["converted_amount"] != 0.001 {
		t.Errorf("converted_amount = %v, want 0.001", wager["converted_amount"])
	}

	// Broke participants are rejected with a stable error kind.
	resp = postJSON(t, s.App, "/api/v1/round/wager", fiber.Map{
		"participant_id": "bob",
		"stake":          10,
		"currency":       "BTC",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status for broke participant = %d, want 400", resp.StatusCode)
	}
	var failure map[string]interface{}
	decode(t, resp, &failure)
	if failure["error"] != "insufficient_balance" {
		t.Errorf("error kind = %v, want insufficient_balance", failure["error"])
	}
}

func TestWagerRoute_UnsupportedCurrency(t *testing.T) {
	s := newTestServer(t)
	s.store.CreateRound("R1-1", "seed", 2.5, "hash")

	resp := postJSON(t, s.App, "/api/v1/round/wager", fiber.Map{
		"participant_id": "alice",
		"stake":          10,
		"currency":       "DOGE",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWithdrawRoute_NoActiveRound(t *testing.T) {
	s := newTestServer(t)

	resp := postJSON(t, s.App, "/api/v1/round/withdraw", fiber.Map{
		"participant_id": "alice",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	var failure map[string]interface{}
	decode(t, resp, &failure)
	if failure["error"] != "round_not_active" {
		t.Errorf("error kind = %v, want round_not_active", failure["error"])
	}
}

func TestVerifyRoute(t *testing.T) {
	s := newTestServer(t)

	crash, _, err := s.generator.Generate("seed-xyz", "R1-1")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	resp := postJSON(t, s.App, "/api/v1/round/verify", fiber.Map{
		"seed":             "seed-xyz",
		"round_id":         "R1-1",
		"crash_multiplier": crash,
	})
	var body map[string]interface{}
	decode(t, resp, &body)
	if body["valid"] != true {
		t.Errorf("valid = %v, want true for honest claim", body["valid"])
	}

	resp = postJSON(t, s.App, "/api/v1/round/verify", fiber.Map{
		"seed":             "seed-xyz",
		"round_id":         "R1-1",
		"crash_multiplier": crash + 1,
	})
	decode(t, resp, &body)
	if body["valid"] != false {
		t.Errorf("valid = %v, want false for tampered claim", body["valid"])
	}
}

func TestBalanceAndDepositRoutes(t *testing.T) {
	s := newTestServer(t)

	resp := postJSON(t, s.App, "/api/v1/user/alice/deposit", fiber.Map{
		"amount": 250.5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit status = %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/user/alice/balance", nil)
	resp, _ = s.App.Test(req, -1)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	decode(t, resp, &body)
	if body["currency"] != "USD" {
		t.Errorf("currency = %v, want reference currency default", body["currency"])
	}
	if fmt.Sprintf("%v", body["balance"]) != "250.5" {
		t.Errorf("balance = %v, want 250.5", body["balance"])
	}
}

func TestRoundHistoryRoute(t *testing.T) {
	s := newTestServer(t)
	s.db = &fakeArchive{records: []database.RoundRecord{
		{ID: "R1-1", CrashMultiplier: 2.5},
		{ID: "R1-2", CrashMultiplier: 1.1},
	}}

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rounds?limit=1", nil)
	resp, _ := s.App.Test(req, -1)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Rounds []database.RoundRecord `json:"rounds"`
	}
	decode(t, resp, &body)
	if len(body.Rounds) != 1 || body.Rounds[0].ID != "R1-1" {
		t.Errorf("rounds = %v, want the single newest round", body.Rounds)
	}
}
