package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"stock-tracker-alerts/config"
	"stock-tracker-alerts/internal/admin"
	"stock-tracker-alerts/internal/alert"
	"stock-tracker-alerts/internal/evaluator"
	"stock-tracker-alerts/internal/notify"
	"stock-tracker-alerts/internal/scheduler"
	"stock-tracker-alerts/internal/types"

	"github.com/shopspring/decimal"
)

func TestAddCmd_Parse(t *testing.T) {
	tests := []struct {
		name    string
		cmd     addCmd
		args    []string
		wantErr bool
	}{
		{"buy", addCmd{}, []string{"aapl", "buy", "150"}, false},
		{"trim_with_percentage", addCmd{trim: "25"}, []string{"MSFT", "Trim", "420.50"}, false},
		{"missing_price", addCmd{}, []string{"AAPL", "Buy"}, true},
		{"bad_type", addCmd{}, []string{"AAPL", "Hold", "150"}, true},
		{"bad_price", addCmd{}, []string{"AAPL", "Buy", "cheap"}, true},
		{"negative_price", addCmd{}, []string{"AAPL", "Buy", "-1"}, true},
		{"trim_on_buy", addCmd{trim: "10"}, []string{"AAPL", "Buy", "150"}, true},
		{"trim_over_100", addCmd{trim: "150"}, []string{"AAPL", "Trim", "150"}, true},
		{"bad_symbol", addCmd{}, []string{"NOT A TICKER", "Buy", "1"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.cmd.parse(tc.args)
			if (err != nil) != tc.wantErr {
				t.Errorf("parse(%v) error = %v, wantErr %t", tc.args, err, tc.wantErr)
			}
		})
	}

	c := addCmd{note: "take profits", recurring: true, trim: "25"}
	symbol, target, err := c.parse([]string{"msft", "trim", "420"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if symbol != "MSFT" || target.Type != types.TargetTrim || !target.TrimPercentage.Valid || !target.IsRecurring || target.AlertNote != "take profits" {
		t.Errorf("unexpected target %+v", target)
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.Config{Provider: "eodhd", ProviderTimeout: time.Second}
	if _, err := newProvider(cfg); err == nil {
		t.Error("eodhd without an api key should fail")
	}

	cfg.EODHD.APIKey = "demo"
	if p, err := newProvider(cfg); err != nil || p.Name() != "eodhd" {
		t.Errorf("eodhd provider: %v", err)
	}

	cfg.Provider = "coinpaprika"
	if p, err := newProvider(cfg); err != nil || p.Name() != "coinpaprika" {
		t.Errorf("coinpaprika provider: %v", err)
	}

	cfg.Provider = "yahoo"
	if _, err := newProvider(cfg); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestPrintPreview(t *testing.T) {
	buy := types.Target{Symbol: "AAPL", Type: types.TargetBuy, Price: decimal.RequireFromString("150")}
	sell := types.Target{Symbol: "MSFT", Type: types.TargetSell, Price: decimal.RequireFromString("500")}
	rows := []alert.PreviewRow{
		{Target: buy, Quoted: true, Price: decimal.RequireFromString("148.50"),
			Result: evaluator.Evaluate(buy, decimal.RequireFromString("148.50"))},
		{Target: sell, Error: "no quote"},
	}

	var buf bytes.Buffer
	printPreview(&buf, rows)
	out := buf.String()
	for _, want := range []string{"AAPL", "$148.50", "-1.00%", "MET", "MSFT", "no quote"} {
		if !strings.Contains(out, want) {
			t.Errorf("preview missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printPreview(&buf, nil)
	if !strings.Contains(buf.String(), "No active targets") {
		t.Errorf("unexpected empty preview %q", buf.String())
	}
}

func TestPrintHistory(t *testing.T) {
	records := []types.AlertRecord{{
		ID:           7,
		Symbol:       "AAPL",
		TargetType:   types.TargetBuy,
		TargetPrice:  decimal.RequireFromString("150"),
		TriggerPrice: decimal.RequireFromString("148.5"),
		AlertNote:    "add on dip",
		Status:       types.DeliveryDelivered,
		TriggeredAt:  time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		Deliveries: []types.ChannelOutcome{
			{Channel: "email", Error: "smtp down"},
			{Channel: "telegram", Delivered: true},
		},
	}}

	var buf bytes.Buffer
	printHistory(&buf, records)
	out := buf.String()
	for _, want := range []string{"#7", "AAPL Buy", "$150.00", "$148.50", "[delivered]", "note: add on dip", "✗ email: smtp down", "✓ telegram"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
}

func TestFetchStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			json.NewEncoder(w).Encode(scheduler.Status{State: "running", Alive: true, Runs: 12})
		case "/watchlist":
			json.NewEncoder(w).Encode([]admin.WatchEntry{
				{
					Security:    types.Security{ID: 1, Symbol: "AAPL"},
					LastQuote:   &types.Quote{Symbol: "AAPL", Price: decimal.RequireFromString("151.25")},
					LatestAlert: &types.AlertRecord{ID: 7, TargetType: types.TargetBuy, TargetPrice: decimal.RequireFromString("150"), TriggerPrice: decimal.RequireFromString("148.5"), TriggeredAt: time.Now().Add(-3 * time.Hour), Status: types.DeliveryDelivered},
				},
				{Security: types.Security{ID: 2, Symbol: "MSFT"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	st, err := fetchStatus(context.Background(), ts.Client(), ts.URL+"/")
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if st.State != "running" || st.Runs != 12 {
		t.Errorf("unexpected status %+v", st)
	}

	var buf bytes.Buffer
	printStatus(&buf, st)
	if !strings.Contains(buf.String(), "running (alive: true)") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	entries, err := fetchWatchlist(context.Background(), ts.Client(), ts.URL)
	if err != nil {
		t.Fatalf("fetch watchlist: %v", err)
	}
	buf.Reset()
	printWatchlist(&buf, entries)
	for _, want := range []string{"AAPL", "$151.25", "#7 Buy $150.00 at $148.50", "[delivered]", "MSFT", "none"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("watch list missing %q:\n%s", want, buf.String())
		}
	}

	if _, err := fetchStatus(context.Background(), ts.Client(), ts.URL+"/nope"); err == nil {
		t.Error("expected error for a non-200 answer")
	}
}

type fakeTestChannel struct {
	name string
	err  error
}

func (f *fakeTestChannel) Name() string { return f.name }

func (f *fakeTestChannel) Send(context.Context, []types.AlertPayload) error { return nil }

func (f *fakeTestChannel) SendTest(context.Context) error { return f.err }

func TestTestChannels(t *testing.T) {
	channels := []notify.Channel{
		&fakeTestChannel{name: "email", err: errors.New("535 auth failed")},
		&fakeTestChannel{name: "telegram"},
	}

	var buf bytes.Buffer
	if failed := testChannels(context.Background(), &buf, channels, time.Second); failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}
	if !strings.Contains(buf.String(), "✗ email: 535 auth failed") || !strings.Contains(buf.String(), "✓ telegram") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestAcquireCheckLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.pid")

	release, err := acquireCheckLock(path)
	if err != nil {
		t.Fatalf("free PID file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("PID file not held during the check: %v", err)
	}
	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PID file left behind after the check")
	}

	// a live daemon owns the file
	os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())+"\n"), 0o644)
	if _, err := acquireCheckLock(path); !errors.Is(err, scheduler.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	if release, err := acquireCheckLock(""); err != nil {
		t.Errorf("no PID file configured: %v", err)
	} else {
		release()
	}
}
