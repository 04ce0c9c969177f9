package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hedgebot/internal/types"
)

var t0 = time.Unix(1767707100, 0)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// near reports whether a and b agree to the cent
func near(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(d("0.01"))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(dur time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(dur)
	c.mu.Unlock()
}

type fakeMetadata struct {
	mu      sync.Mutex
	markets map[string]*types.MarketDetails
	calls   map[string]int
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{markets: map[string]*types.MarketDetails{}, calls: map[string]int{}}
}

func (f *fakeMetadata) FetchMarketMetadata(_ context.Context, conditionID string) (*types.MarketDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[conditionID]++
	m, ok := f.markets[conditionID]
	if !ok {
		return nil, errors.New("fake: unavailable")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMetadata) set(conditionID string, closed bool, winner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[conditionID] = &types.MarketDetails{
		ConditionID: conditionID,
		Closed:      closed,
		Tokens: []types.OutcomeToken{
			{TokenID: winner, Winner: closed},
		},
	}
}

func (f *fakeMetadata) callCount(conditionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[conditionID]
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []types.OrderRequest
	fail   bool
}

func (f *fakeOrders) SubmitOrder(_ context.Context, o types.OrderRequest) (*types.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	if f.fail {
		return nil, errors.New("fake: rejected")
	}
	return &types.OrderResponse{OrderID: "ord", Status: "live"}, nil
}

type recordingJournal struct {
	mu          sync.Mutex
	trades      int
	settlements []types.Settlement
}

func (j *recordingJournal) RecordTrade(context.Context, types.Opportunity, types.PendingTrade, decimal.Decimal, decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades++
	return nil
}

func (j *recordingJournal) RecordSettlement(_ context.Context, s types.Settlement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settlements = append(j.settlements, s)
	return nil
}

type recordingNotifier struct {
	got []types.Settlement
}

func (n *recordingNotifier) NotifySettlement(s types.Settlement) { n.got = append(n.got, s) }

func opportunity(solPrice, btcPrice string) types.Opportunity {
	p1, p2 := d(solPrice), d(btcPrice)
	total := p1.Add(p2)
	return types.Opportunity{
		SOLOutcome:     types.OutcomeUp,
		BTCOutcome:     types.OutcomeDown,
		SOLPrice:       p1,
		BTCPrice:       p2,
		TotalCost:      total,
		ExpectedProfit: decimal.NewFromInt(1).Sub(total),
		SOLTokenID:     "sol-up",
		BTCTokenID:     "btc-down",
		SOLConditionID: "0xsol",
		BTCConditionID: "0xbtc",
	}
}

func newTestLedger(meta MetadataSource, clk *clock, live bool) *Ledger {
	return newLedger(Config{MaxPositionSize: d("100"), Live: live}, meta, clk.Now)
}

func TestRecordOpportunitySizing(t *testing.T) {
	clk := &clock{now: t0}
	l := newTestLedger(newFakeMetadata(), clk, false)

	units := l.RecordOpportunity(context.Background(), opportunity("0.42", "0.50"))
	if !near(units, d("108.70")) {
		t.Errorf("units = %s, want ~108.70", units)
	}

	pending := l.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if !near(pending[0].Investment, d("100")) {
		t.Errorf("investment = %s, want ~100", pending[0].Investment)
	}
	if pending[0].Investment.GreaterThan(d("100")) {
		t.Errorf("investment %s exceeds max position", pending[0].Investment)
	}
	if !pending[0].OpenedAt.Equal(t0) || pending[0].ID == "" {
		t.Errorf("unexpected trade %+v", pending[0])
	}
}

func TestRecordOpportunityAccumulates(t *testing.T) {
	clk := &clock{now: t0}
	l := newTestLedger(newFakeMetadata(), clk, false)

	u1 := l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
	clk.Advance(time.Minute)
	u2 := l.RecordOpportunity(context.Background(), opportunity("0.65", "0.30"))

	pending := l.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want a single accumulated entry", len(pending))
	}
	if !pending[0].Units.Equal(u1.Add(u2)) {
		t.Errorf("units = %s, want %s", pending[0].Units, u1.Add(u2))
	}
	if !near(pending[0].Investment, d("200")) {
		t.Errorf("investment = %s, want ~200", pending[0].Investment)
	}
	if !pending[0].OpenedAt.Equal(t0) {
		t.Error("accumulation must keep the original open time")
	}
	if st := l.Stats(); st.TradesExecuted != 2 || st.Pending != 1 {
		t.Errorf("stats = %+v", st)
	}

	other := opportunity("0.62", "0.30")
	other.SOLConditionID = "0xsol-next"
	l.RecordOpportunity(context.Background(), other)
	if got := len(l.Pending()); got != 2 {
		t.Errorf("pending = %d, want 2 for distinct pairs", got)
	}
}

func TestRecordOpportunityKeepsFirstCombination(t *testing.T) {
	clk := &clock{now: t0}
	l := newTestLedger(newFakeMetadata(), clk, false)

	u1 := l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))

	flipped := opportunity("0.40", "0.55")
	flipped.SOLOutcome, flipped.BTCOutcome = types.OutcomeDown, types.OutcomeUp
	flipped.SOLTokenID, flipped.BTCTokenID = "sol-down", "btc-up"
	u2 := l.RecordOpportunity(context.Background(), flipped)

	pending := l.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want one entry per condition pair", len(pending))
	}
	if pending[0].SOLTokenID != "sol-up" || pending[0].BTCTokenID != "btc-down" {
		t.Errorf("tokens = %s/%s, want the first combination", pending[0].SOLTokenID, pending[0].BTCTokenID)
	}
	if !pending[0].Units.Equal(u1.Add(u2)) {
		t.Errorf("units = %s, want %s", pending[0].Units, u1.Add(u2))
	}
}

func TestPayoutTable(t *testing.T) {
	units := d("108.70")
	tests := []struct {
		solWon, btcWon bool
		want           string
	}{
		{true, true, "217.40"},
		{true, false, "108.70"},
		{false, true, "108.70"},
		{false, false, "0"},
	}
	for _, tt := range tests {
		if got := Payout(units, tt.solWon, tt.btcWon); !got.Equal(d(tt.want)) {
			t.Errorf("Payout(%v,%v) = %s, want %s", tt.solWon, tt.btcWon, got, tt.want)
		}
	}
}

func TestSweepSettlesEachOutcome(t *testing.T) {
	tests := []struct {
		name       string
		solWinner  string
		btcWinner  string
		wantProfit string
		wantWins   int
		wantLosses int
	}{
		{"both won", "sol-up", "btc-down", "117.39", 1, 0},
		{"sol won", "sol-up", "btc-up", "8.70", 1, 0},
		{"btc won", "sol-down", "btc-down", "8.70", 1, 0},
		{"neither won", "sol-down", "btc-up", "-100", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &clock{now: t0}
			meta := newFakeMetadata()
			l := newTestLedger(meta, clk, false)
			journal := &recordingJournal{}
			notifier := &recordingNotifier{}
			l.SetJournal(journal)
			l.SetNotifier(notifier)

			l.RecordOpportunity(context.Background(), opportunity("0.42", "0.50"))
			meta.set("0xsol", true, tt.solWinner)
			meta.set("0xbtc", true, tt.btcWinner)

			clk.Advance(15 * time.Minute)
			settled := l.SweepSettlements(context.Background())
			if len(settled) != 1 {
				t.Fatalf("settled = %d, want 1", len(settled))
			}
			if !near(settled[0].Profit, d(tt.wantProfit)) {
				t.Errorf("profit = %s, want ~%s", settled[0].Profit, tt.wantProfit)
			}
			if !settled[0].Profit.Equal(settled[0].Payout.Sub(settled[0].Trade.Investment)) {
				t.Error("profit must equal payout minus investment")
			}

			st := l.Stats()
			if st.Pending != 0 || st.Settled != 1 || st.Wins != tt.wantWins || st.Losses != tt.wantLosses {
				t.Errorf("stats = %+v", st)
			}
			if !st.TotalProfit.Equal(settled[0].Profit) {
				t.Errorf("total profit = %s, want %s", st.TotalProfit, settled[0].Profit)
			}
			if journal.trades != 1 || len(journal.settlements) != 1 || len(notifier.got) != 1 {
				t.Errorf("journal/notifier not called: %d/%d/%d", journal.trades, len(journal.settlements), len(notifier.got))
			}
		})
	}
}

func TestSweepSkipsYoungTrades(t *testing.T) {
	clk := &clock{now: t0}
	meta := newFakeMetadata()
	meta.set("0xsol", true, "sol-up")
	meta.set("0xbtc", true, "btc-up")
	l := newTestLedger(meta, clk, false)

	l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))

	clk.Advance(13*time.Minute + 59*time.Second)
	if settled := l.SweepSettlements(context.Background()); len(settled) != 0 {
		t.Fatal("trade younger than 14 minutes settled")
	}
	if meta.callCount("0xsol") != 0 {
		t.Error("metadata fetched for a trade too young to settle")
	}

	clk.Advance(time.Second)
	if settled := l.SweepSettlements(context.Background()); len(settled) != 1 {
		t.Fatal("trade at 14 minutes should settle")
	}
}

func TestSweepWaitsForBothMarkets(t *testing.T) {
	clk := &clock{now: t0}
	meta := newFakeMetadata()
	meta.set("0xsol", true, "sol-up")
	meta.set("0xbtc", false, "")
	l := newTestLedger(meta, clk, false)

	l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
	clk.Advance(15 * time.Minute)

	if settled := l.SweepSettlements(context.Background()); len(settled) != 0 {
		t.Fatal("settled with one market still open")
	}
	if l.Stats().Pending != 1 {
		t.Fatal("entry must remain pending")
	}

	// Cached open result is reused inside the TTL
	meta.set("0xbtc", true, "btc-down")
	clk.Advance(30 * time.Second)
	if settled := l.SweepSettlements(context.Background()); len(settled) != 0 {
		t.Fatal("cached open result should hold for 60s")
	}
	if meta.callCount("0xbtc") != 1 {
		t.Errorf("btc metadata calls = %d, want 1", meta.callCount("0xbtc"))
	}

	clk.Advance(31 * time.Second)
	if settled := l.SweepSettlements(context.Background()); len(settled) != 1 {
		t.Fatal("should settle once cache expires and both are closed")
	}
}

func TestSweepTreatsFetchFailureAsOpen(t *testing.T) {
	clk := &clock{now: t0}
	meta := newFakeMetadata()
	meta.set("0xsol", true, "sol-up")
	l := newTestLedger(meta, clk, false)

	l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
	clk.Advance(15 * time.Minute)

	if settled := l.SweepSettlements(context.Background()); len(settled) != 0 {
		t.Fatal("fetch failure must not settle")
	}

	// Failures are not cached: the next sweep asks again
	l.SweepSettlements(context.Background())
	if meta.callCount("0xbtc") != 2 {
		t.Errorf("btc metadata calls = %d, want 2", meta.callCount("0xbtc"))
	}
}

func TestLiveModeOrders(t *testing.T) {
	clk := &clock{now: t0}
	meta := newFakeMetadata()
	orders := &fakeOrders{}
	l := newTestLedger(meta, clk, true)
	l.SetOrderPlacer(orders)

	units := l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
	if len(orders.orders) != 2 {
		t.Fatalf("orders = %d, want 2 buys", len(orders.orders))
	}
	for _, o := range orders.orders {
		if o.Side != types.SideBuy || !o.Size.Equal(units) || o.OrderType != types.OrderTypeGTC {
			t.Errorf("unexpected buy %+v", o)
		}
		switch o.TokenID {
		case "sol-up":
			if !o.Price.Equal(d("0.62")) {
				t.Errorf("sol price = %s", o.Price)
			}
		case "btc-down":
			if !o.Price.Equal(d("0.30")) {
				t.Errorf("btc price = %s", o.Price)
			}
		default:
			t.Errorf("unexpected token %s", o.TokenID)
		}
	}

	meta.set("0xsol", true, "sol-up")
	meta.set("0xbtc", true, "btc-up")
	clk.Advance(15 * time.Minute)
	l.SweepSettlements(context.Background())

	if len(orders.orders) != 3 {
		t.Fatalf("orders = %d, want 2 buys + 1 sell", len(orders.orders))
	}
	sell := orders.orders[2]
	if sell.Side != types.SideSell || sell.TokenID != "sol-up" || !sell.Price.Equal(d("1")) || !sell.Size.Equal(units) {
		t.Errorf("unexpected sell %+v", sell)
	}
}

func TestLiveOrderFailureStillRecords(t *testing.T) {
	clk := &clock{now: t0}
	l := newTestLedger(newFakeMetadata(), clk, true)
	l.SetOrderPlacer(&fakeOrders{fail: true})

	units := l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
	if units.IsZero() || l.Stats().Pending != 1 {
		t.Error("order failure must not block bookkeeping")
	}
}

func TestSimulationSendsNoOrders(t *testing.T) {
	clk := &clock{now: t0}
	orders := &fakeOrders{}
	l := newTestLedger(newFakeMetadata(), clk, false)
	l.SetOrderPlacer(orders)

	l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
	if len(orders.orders) != 0 {
		t.Errorf("simulation sent %d orders", len(orders.orders))
	}
}

func TestConcurrentRecordAndSweep(t *testing.T) {
	clk := &clock{now: t0}
	meta := newFakeMetadata()
	meta.set("0xsol", true, "sol-up")
	meta.set("0xbtc", true, "btc-up")
	l := newTestLedger(meta, clk, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.RecordOpportunity(context.Background(), opportunity("0.62", "0.30"))
		}()
		go func() {
			defer wg.Done()
			l.SweepSettlements(context.Background())
		}()
	}
	wg.Wait()

	st := l.Stats()
	if st.TradesExecuted != 50 {
		t.Errorf("trades = %d, want 50", st.TradesExecuted)
	}
	if st.Pending != 1 || st.Settled != 0 {
		t.Errorf("young trades must stay pending: %+v", st)
	}
}
