package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stock-tracker-alerts/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	calls   int
	got     [][]string
	results map[string]Result
	err     error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) BatchQuote(_ context.Context, symbols []string) (map[string]Result, error) {
	f.calls++
	f.got = append(f.got, symbols)
	return f.results, f.err
}

func quote(price string) Result {
	return Result{Quote: types.Quote{Price: decimal.RequireFromString(price)}}
}

func TestBatcher_Fetch(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	t.Run("no_symbols_no_call", func(t *testing.T) {
		p := &fakeProvider{}
		snap := NewBatcher(p).Fetch(context.Background(), nil)
		if p.calls != 0 {
			t.Errorf("expected no provider call, got %d", p.calls)
		}
		if len(snap.Quotes) != 0 || len(snap.Failed) != 0 {
			t.Errorf("expected empty snapshot, got %+v", snap)
		}
	})

	t.Run("one_call_for_many_symbols", func(t *testing.T) {
		p := &fakeProvider{results: map[string]Result{
			"AAPL": quote("148.50"),
			"MSFT": quote("410"),
			"TSLA": quote("190"),
		}}
		b := NewBatcher(p)
		b.now = func() time.Time { return fixed }

		snap := b.Fetch(context.Background(), []string{"aapl", "MSFT", "AAPL", " tsla "})
		if p.calls != 1 {
			t.Fatalf("expected exactly one provider call, got %d", p.calls)
		}
		if len(p.got[0]) != 3 {
			t.Errorf("expected de-duplicated symbols, got %v", p.got[0])
		}
		if len(snap.Quotes) != 3 {
			t.Fatalf("expected 3 quotes, got %d", len(snap.Quotes))
		}
		if q := snap.Quotes["AAPL"]; q.Symbol != "AAPL" || !q.FetchedAt.Equal(fixed) {
			t.Errorf("unexpected AAPL quote %+v", q)
		}
		if len(b.Last().Quotes) != 3 {
			t.Error("last snapshot not stored")
		}
	})

	t.Run("partial_failure", func(t *testing.T) {
		p := &fakeProvider{results: map[string]Result{
			"AAPL": quote("148.50"),
			"MSFT": {Err: errors.New("rate limited")},
			"ZERO": quote("0"),
		}}
		snap := NewBatcher(p).Fetch(context.Background(), []string{"AAPL", "MSFT", "ZERO", "GONE"})
		if len(snap.Quotes) != 1 {
			t.Fatalf("expected only AAPL quoted, got %v", snap.Quotes)
		}
		failed := snap.FailedSymbols()
		if strings.Join(failed, ",") != "GONE,MSFT,ZERO" {
			t.Errorf("unexpected failed symbols %v", failed)
		}
		if !errors.Is(snap.Failed["GONE"], ErrNoQuote) || !errors.Is(snap.Failed["ZERO"], ErrNoQuote) {
			t.Errorf("expected ErrNoQuote, got %v", snap.Failed)
		}
	})

	t.Run("wholesale_failure", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("connection refused")}
		snap := NewBatcher(p).Fetch(context.Background(), []string{"AAPL", "MSFT"})
		if len(snap.Quotes) != 0 || len(snap.Failed) != 2 {
			t.Errorf("expected every symbol failed, got %+v", snap)
		}
	})
}

func TestEODHDProvider_BatchQuote(t *testing.T) {
	t.Run("array_response", func(t *testing.T) {
		var gotPath, gotS, gotToken string
		requests := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			gotPath = r.URL.Path
			gotS = r.URL.Query().Get("s")
			gotToken = r.URL.Query().Get("api_token")
			_, _ = w.Write([]byte(`[
				{"code":"AAPL.US","timestamp":1709308800,"close":148.5,"volume":73488997},
				{"code":"MSFT.US","timestamp":1709308800,"close":"410.25","volume":"NA"},
				{"code":"DEAD.US","timestamp":"NA","close":"NA","volume":"NA"}
			]`))
		}))
		defer ts.Close()

		p := NewEODHDProvider("tok", "us", ts.URL, time.Second)
		res, err := p.BatchQuote(context.Background(), []string{"AAPL", "MSFT", "DEAD"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if requests != 1 {
			t.Errorf("expected one request, got %d", requests)
		}
		if gotPath != "/real-time/AAPL.US" || gotS != "MSFT.US,DEAD.US" || gotToken != "tok" {
			t.Errorf("unexpected request path=%s s=%s token=%s", gotPath, gotS, gotToken)
		}
		if !res["AAPL"].Quote.Price.Equal(decimal.RequireFromString("148.5")) {
			t.Errorf("unexpected AAPL price %s", res["AAPL"].Quote.Price)
		}
		if res["AAPL"].Quote.FetchedAt.Unix() != 1709308800 {
			t.Errorf("unexpected timestamp %s", res["AAPL"].Quote.FetchedAt)
		}
		if !res["MSFT"].Quote.Price.Equal(decimal.RequireFromString("410.25")) || !res["MSFT"].Quote.Volume.IsZero() {
			t.Errorf("unexpected MSFT quote %+v", res["MSFT"])
		}
		if !errors.Is(res["DEAD"].Err, ErrNoQuote) {
			t.Errorf("expected NA close to be ErrNoQuote, got %v", res["DEAD"].Err)
		}
	})

	t.Run("single_object_response", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("s") != "" {
				t.Errorf("single symbol must not send s, got %q", r.URL.Query().Get("s"))
			}
			_, _ = w.Write([]byte(`{"code":"AAPL.US","timestamp":1709308800,"close":148.5,"volume":100}`))
		}))
		defer ts.Close()

		res, err := NewEODHDProvider("tok", "US", ts.URL, time.Second).BatchQuote(context.Background(), []string{"AAPL"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res) != 1 || res["AAPL"].Err != nil {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("server_error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`Unauthenticated`))
		}))
		defer ts.Close()

		if _, err := NewEODHDProvider("bad", "US", ts.URL, time.Second).BatchQuote(context.Background(), []string{"AAPL"}); err == nil {
			t.Error("expected error for 401 status")
		}
	})

	t.Run("missing_key", func(t *testing.T) {
		if _, err := NewEODHDProvider("", "US", "http://127.0.0.1:1", time.Second).BatchQuote(context.Background(), []string{"AAPL"}); err == nil {
			t.Error("expected missing key error")
		}
	})
}

type fakeTickers struct {
	tickers []*coinpaprika.Ticker
	err     error
}

func (f fakeTickers) List(*coinpaprika.TickersOptions) ([]*coinpaprika.Ticker, error) {
	return f.tickers, f.err
}

func ticker(symbol string, price *float64) *coinpaprika.Ticker {
	volume := 1000.0
	return &coinpaprika.Ticker{
		Symbol: &symbol,
		Quotes: map[string]coinpaprika.Quote{"USD": {Price: price, Volume24h: &volume}},
	}
}

func TestCoinpaprikaProvider_BatchQuote(t *testing.T) {
	btc, fake, eth := 65000.5, 0.01, 3200.0
	p := &CoinpaprikaProvider{tickers: fakeTickers{tickers: []*coinpaprika.Ticker{
		ticker("BTC", &btc),
		ticker("BTC", &fake),
		ticker("ETH", &eth),
		ticker("NOPE", nil),
		ticker("DOGE", &fake),
	}}}

	res, err := p.BatchQuote(context.Background(), []string{"btc", "ETH", "NOPE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if !res["BTC"].Quote.Price.Equal(decimal.NewFromFloat(btc)) {
		t.Errorf("highest ranked BTC should win, got %s", res["BTC"].Quote.Price)
	}
	if !errors.Is(res["NOPE"].Err, ErrNoQuote) {
		t.Errorf("expected ErrNoQuote for untraded coin, got %v", res["NOPE"].Err)
	}

	failing := &CoinpaprikaProvider{tickers: fakeTickers{err: errors.New("429")}}
	if _, err := failing.BatchQuote(context.Background(), []string{"BTC"}); err == nil {
		t.Error("expected list error")
	}
}

func TestNewCoinpaprikaProvider(t *testing.T) {
	for _, key := range []string{"", "pro-key"} {
		p := NewCoinpaprikaProvider(key, time.Second)
		if _, ok := p.tickers.(*coinpaprika.TickersService); !ok {
			t.Errorf("key %q: tickers is %T, want the client's tickers service", key, p.tickers)
		}
		if p.Name() != "coinpaprika" {
			t.Errorf("unexpected name %q", p.Name())
		}
	}
}
