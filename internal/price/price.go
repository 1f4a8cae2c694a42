package price

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNoQuote is reported for a symbol the provider returned nothing usable for.
var ErrNoQuote = errors.New("no quote")

// Result is the provider answer for one symbol: a quote or an error, never both.
type Result struct {
	Quote types.Quote
	Err   error
}

// Provider fetches current prices for many symbols in a single request.
type Provider interface {
	Name() string
	BatchQuote(ctx context.Context, symbols []string) (map[string]Result, error)
}

// Snapshot holds the prices of one cycle.
type Snapshot struct {
	Quotes map[string]types.Quote
	Failed map[string]error
}

// FailedSymbols returns the failed symbols sorted.
func (s Snapshot) FailedSymbols() []string {
	symbols := make([]string, 0, len(s.Failed))
	for symbol := range s.Failed {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Batcher turns a symbol list into one provider call per cycle and keeps the
// last snapshot in memory.
type Batcher struct {
	provider Provider
	now      func() time.Time

	mu   sync.RWMutex
	last Snapshot
}

func NewBatcher(p Provider) *Batcher {
	return &Batcher{provider: p, now: time.Now}
}

func (b *Batcher) ProviderName() string {
	return b.provider.Name()
}

// Fetch quotes every symbol with a single provider call. It never returns an
// error: symbols that could not be priced are listed in Snapshot.Failed.
func (b *Batcher) Fetch(ctx context.Context, symbols []string) Snapshot {
	snap := Snapshot{
		Quotes: make(map[string]types.Quote),
		Failed: make(map[string]error),
	}

	wanted := dedupe(symbols)
	if len(wanted) == 0 {
		return snap
	}

	logger := log.WithFields(log.Fields{"component": "price", "provider": b.provider.Name()})
	results, err := b.provider.BatchQuote(ctx, wanted)
	if err != nil {
		logger.WithError(err).Errorf("❌ Failed to fetch prices for %d symbols", len(wanted))
		for _, symbol := range wanted {
			snap.Failed[symbol] = errors.Wrap(err, "batch quote")
		}
		b.store(snap)
		return snap
	}

	fetchedAt := b.now()
	for _, symbol := range wanted {
		res, ok := results[symbol]
		switch {
		case !ok:
			snap.Failed[symbol] = ErrNoQuote
		case res.Err != nil:
			snap.Failed[symbol] = res.Err
		case !res.Quote.Price.IsPositive():
			snap.Failed[symbol] = errors.Wrapf(ErrNoQuote, "non-positive price %s", res.Quote.Price)
		default:
			q := res.Quote
			q.Symbol = symbol
			if q.FetchedAt.IsZero() {
				q.FetchedAt = fetchedAt
			}
			snap.Quotes[symbol] = q
		}
	}

	for symbol, err := range snap.Failed {
		logger.WithField("symbol", symbol).WithError(err).Warn("Price unavailable, skipping symbol this cycle")
	}
	logger.Infof("✅ Prices updated: %d quoted, %d failed", len(snap.Quotes), len(snap.Failed))

	b.store(snap)
	return snap
}

// Last returns the most recent snapshot.
func (b *Batcher) Last() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

func (b *Batcher) store(s Snapshot) {
	b.mu.Lock()
	b.last = s
	b.mu.Unlock()
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
