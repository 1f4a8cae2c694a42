package price

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stock-tracker-alerts/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type tickerLister interface {
	List(options *coinpaprika.TickersOptions) ([]*coinpaprika.Ticker, error)
}

// CoinpaprikaProvider quotes crypto assets by ticker symbol. The tickers
// endpoint returns every coin ranked, so one request serves any symbol list.
type CoinpaprikaProvider struct {
	tickers tickerLister
}

func NewCoinpaprikaProvider(apiProKey string, timeout time.Duration) *CoinpaprikaProvider {
	httpClient := &http.Client{Timeout: timeout}
	var client *coinpaprika.Client
	if apiProKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}
	return &CoinpaprikaProvider{tickers: &client.Tickers}
}

func (p *CoinpaprikaProvider) Name() string { return "coinpaprika" }

func (p *CoinpaprikaProvider) BatchQuote(ctx context.Context, symbols []string) (map[string]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tickers, err := p.tickers.List(&coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list coinpaprika tickers")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(s)] = struct{}{}
	}

	results := make(map[string]Result, len(symbols))
	for _, t := range tickers {
		if t == nil || t.Symbol == nil {
			continue
		}
		symbol := strings.ToUpper(*t.Symbol)
		if _, ok := wanted[symbol]; !ok {
			continue
		}
		// list is ordered by rank; keep the first coin using a symbol
		if _, seen := results[symbol]; seen {
			continue
		}

		usd, ok := t.Quotes["USD"]
		if !ok || usd.Price == nil {
			results[symbol] = Result{Err: errors.Wrapf(ErrNoQuote, "%s is not actively traded", symbol)}
			continue
		}
		quote := types.Quote{Symbol: symbol, Price: decimal.NewFromFloat(*usd.Price)}
		if usd.Volume24h != nil {
			quote.Volume = decimal.NewFromFloat(*usd.Volume24h)
		}
		results[symbol] = Result{Quote: quote}
	}

	log.Debugf("coinpaprika matched %d of %d symbols", len(results), len(symbols))
	return results, nil
}
