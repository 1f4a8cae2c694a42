package price

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

	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const DefaultEODHDBaseURL = "https://eodhd.com/api"

// EODHDProvider quotes stocks through the EODHD real-time endpoint, which
// accepts extra tickers in the s parameter so one request covers the list.
type EODHDProvider struct {
	apiKey   string
	exchange string
	baseURL  string
	client   *http.Client
}

func NewEODHDProvider(apiKey, exchange, baseURL string, timeout time.Duration) *EODHDProvider {
	if exchange == "" {
		exchange = "US"
	}
	if baseURL == "" {
		baseURL = DefaultEODHDBaseURL
	}
	return &EODHDProvider{
		apiKey:   apiKey,
		exchange: strings.ToUpper(exchange),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *EODHDProvider) Name() string { return "eodhd" }

// realtimeQuote is one element of the real-time payload. Fields are "NA"
// when the exchange has no data for the ticker.
//
//	{"code":"AAPL.US","timestamp":1709308800,"close":179.66,"volume":73488997,...}
type realtimeQuote struct {
	Code      string          `json:"code"`
	Timestamp json.RawMessage `json:"timestamp"`
	Close     json.RawMessage `json:"close"`
	Volume    json.RawMessage `json:"volume"`
}

func (p *EODHDProvider) BatchQuote(ctx context.Context, symbols []string) (map[string]Result, error) {
	if len(symbols) == 0 {
		return map[string]Result{}, nil
	}
	if p.apiKey == "" {
		return nil, errors.New("eodhd api key is not configured")
	}

	tickers := make([]string, len(symbols))
	for i, s := range symbols {
		tickers[i] = s + "." + p.exchange
	}

	q := url.Values{}
	q.Set("fmt", "json")
	q.Set("api_token", p.apiKey)
	if len(tickers) > 1 {
		q.Set("s", strings.Join(tickers[1:], ","))
	}
	addr := fmt.Sprintf("%s/real-time/%s?%s", p.baseURL, url.PathEscape(tickers[0]), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build eodhd request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "eodhd request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read eodhd response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("eodhd returned %s: %s", resp.Status, truncate(string(body), 200))
	}

	payload, err := decodeRealtime(body)
	if err != nil {
		return nil, err
	}

	results := make(map[string]Result, len(payload))
	suffix := "." + p.exchange
	for _, rq := range payload {
		symbol := strings.TrimSuffix(strings.ToUpper(rq.Code), suffix)
		results[symbol] = rq.result(symbol)
	}
	return results, nil
}

// decodeRealtime accepts both shapes: an object for a single ticker, an array otherwise.
func decodeRealtime(body []byte) ([]realtimeQuote, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []realtimeQuote
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, errors.Wrap(err, "failed to parse eodhd response")
		}
		return list, nil
	}
	var one realtimeQuote
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, errors.Wrap(err, "failed to parse eodhd response")
	}
	return []realtimeQuote{one}, nil
}

func (rq realtimeQuote) result(symbol string) Result {
	closePrice, ok := rawDecimal(rq.Close)
	if !ok {
		return Result{Err: errors.Wrapf(ErrNoQuote, "eodhd has no price for %s", symbol)}
	}
	volume, _ := rawDecimal(rq.Volume)

	quote := types.Quote{Symbol: symbol, Price: closePrice, Volume: volume}
	if ts, ok := rawDecimal(rq.Timestamp); ok && ts.IsPositive() {
		quote.FetchedAt = time.Unix(ts.IntPart(), 0).UTC()
	}
	return Result{Quote: quote}
}

// rawDecimal parses a JSON number or numeric string; "NA", null and empty are not ok.
func rawDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" || strings.EqualFold(s, "NA") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
