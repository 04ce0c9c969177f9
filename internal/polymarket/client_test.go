package polymarket

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hedgebot/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, creds Credentials) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		GammaURL:          srv.URL,
		ClobURL:           srv.URL,
		Credentials:       creds,
		RequestsPerSecond: 1000,
		Timeout:           2 * time.Second,
	})
	c.now = func() time.Time { return time.Unix(1767707100, 0) }
	return c
}

func TestMarketSlug(t *testing.T) {
	tests := []struct {
		inst   types.Instrument
		period int64
		want   string
	}{
		{types.InstrumentSOL, 1767707100, "sol-updown-15m-1767707100"},
		{types.InstrumentBTC, 1767706200, "btc-updown-15m-1767706200"},
	}
	for _, tt := range tests {
		if got := MarketSlug(tt.inst, tt.period); got != tt.want {
			t.Errorf("MarketSlug(%s, %d) = %s, want %s", tt.inst, tt.period, got, tt.want)
		}
	}
}

func TestFetchQuote(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr error
	}{
		{name: "string price", status: 200, body: `{"price":"0.42"}`, want: "0.42"},
		{name: "numeric price", status: 200, body: `{"price":0.5}`, want: "0.5"},
		{name: "missing price", status: 200, body: `{}`, wantErr: ErrParse},
		{name: "garbage", status: 200, body: `not json`, wantErr: ErrParse},
		{name: "server error", status: 502, body: `bad gateway`, wantErr: ErrNetwork},
		{name: "not found", status: 404, body: `{}`, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/price" {
					t.Errorf("path = %s, want /price", r.URL.Path)
				}
				if r.URL.Query().Get("side") != types.SideBuy || r.URL.Query().Get("token_id") != "tok-1" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, Credentials{})

			got, err := c.FetchQuote(context.Background(), "tok-1", types.SideBuy)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("price = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFetchMarketBySlug(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events/slug/sol-updown-15m-1767707100":
			io.WriteString(w, `{"id":"e1","slug":"sol-updown-15m-1767707100","markets":[
				{"id":"123","conditionId":"0xsol","question":"Solana Up or Down?","slug":"sol-updown-15m-1767707100",
				 "active":true,"closed":false,"endDate":"2026-01-06T13:45:00Z",
				 "clobTokenIds":"[\"1\",\"2\"]","outcomes":"[\"Up\",\"Down\"]"}]}`)
		case "/events/slug/empty":
			io.WriteString(w, `{"id":"e2","markets":[]}`)
		default:
			http.NotFound(w, r)
		}
	}, Credentials{})

	m, err := c.FetchMarketBySlug(context.Background(), "sol-updown-15m-1767707100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ConditionID != "0xsol" || m.MarketID != "123" || !m.Active || m.Closed {
		t.Errorf("unexpected market %+v", m)
	}
	if m.EndDate.IsZero() {
		t.Error("expected end date to be parsed")
	}

	if _, err := c.FetchMarketBySlug(context.Background(), "empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty event err = %v, want ErrNotFound", err)
	}
	if _, err := c.FetchMarketBySlug(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing slug err = %v, want ErrNotFound", err)
	}
}

func TestFetchMarketMetadata(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/0xabc" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"condition_id":"0xabc","active":false,"closed":true,"accepting_orders":false,
			"tokens":[{"token_id":"up-1","outcome":"Up","price":1,"winner":true},
			          {"token_id":"down-1","outcome":"Down","price":0,"winner":false}]}`)
	}, Credentials{})

	d, err := c.FetchMarketMetadata(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Closed || len(d.Tokens) != 2 {
		t.Fatalf("unexpected details %+v", d)
	}
	if !d.Winner("up-1") || d.Winner("down-1") || d.Winner("unknown") {
		t.Error("winner flags not carried through")
	}
	if d.Tokens[0].Outcome != "Up" {
		t.Errorf("outcome = %s, want Up", d.Tokens[0].Outcome)
	}
}

func TestSubmitOrderL2Headers(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret-key"))
	creds := Credentials{
		APIKey:     "key-1",
		Secret:     secret,
		Passphrase: "pass-1",
		Address:    "0x52908400098527886e0f7030069857d2e4169ee7",
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("POLY_API_KEY") != "key-1" || r.Header.Get("POLY_PASSPHRASE") != "pass-1" {
			t.Error("missing api key headers")
		}
		if r.Header.Get("POLY_TIMESTAMP") != "1767707100" {
			t.Errorf("timestamp = %s", r.Header.Get("POLY_TIMESTAMP"))
		}
		if r.Header.Get("POLY_ADDRESS") != "0x52908400098527886E0F7030069857D2E4169EE7" {
			t.Errorf("address = %s, want checksummed", r.Header.Get("POLY_ADDRESS"))
		}

		mac := hmac.New(sha256.New, []byte("super-secret-key"))
		mac.Write([]byte("1767707100POST/order" + string(body)))
		want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
		if got := r.Header.Get("POLY_SIGNATURE"); got != want {
			t.Errorf("signature = %s, want %s", got, want)
		}

		var payload map[string]string
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if payload["side"] != "BUY" || payload["type"] != "GTC" || payload["size"] != "108.69" {
			t.Errorf("unexpected payload %v", payload)
		}

		io.WriteString(w, `{"success":true,"orderID":"ord-1","status":"live"}`)
	}, creds)

	resp, err := c.SubmitOrder(context.Background(), types.OrderRequest{
		TokenID: "up-1",
		Side:    types.SideBuy,
		Size:    decimal.RequireFromString("108.695652"),
		Price:   decimal.RequireFromString("0.42"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OrderID != "ord-1" || resp.Status != "live" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestSubmitOrderBearerAndRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-only" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("POLY_SIGNATURE") != "" {
			t.Error("unexpected L2 signature without secret")
		}
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"success":false,"errorMsg":"not enough balance"}`)
	}, Credentials{APIKey: "key-only"})

	resp, err := c.SubmitOrder(context.Background(), types.OrderRequest{
		TokenID: "up-1",
		Side:    types.SideSell,
		Size:    decimal.NewFromInt(10),
		Price:   decimal.NewFromInt(1),
	})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if resp == nil || resp.Message != "not enough balance" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestBreakerOpensOnNetworkErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Credentials{})

	for i := 0; i < 8; i++ {
		_, err := c.FetchQuote(context.Background(), "tok", types.SideSell)
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("call %d: err = %v, want ErrNetwork", i, err)
		}
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("server hits = %d, want 5 before the breaker opens", got)
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}, Credentials{})

	for i := 0; i < 8; i++ {
		if _, err := c.FetchMarketBySlug(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if got := hits.Load(); got != 8 {
		t.Errorf("server hits = %d, want 8", got)
	}
}
