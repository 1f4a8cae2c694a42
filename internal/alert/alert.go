package alert

import (
	"context"
	"sort"
	"time"

	"stock-tracker-alerts/internal/evaluator"
	"stock-tracker-alerts/internal/metrics"
	"stock-tracker-alerts/internal/notify"
	"stock-tracker-alerts/internal/price"
	"stock-tracker-alerts/internal/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Store is the watch list and alert record persistence the manager needs.
type Store interface {
	ListSymbolsWithActiveTargets(ctx context.Context) ([]string, error)
	ListActiveTargets(ctx context.Context, symbol string) ([]types.Target, error)
	UpdateTargetTriggeredFlag(ctx context.Context, targetID int64, triggered bool) error
	RecordTrigger(ctx context.Context, rec *types.AlertRecord, tr types.TargetTransition) error
	UpdateAlertDeliveries(ctx context.Context, alertID int64, status types.DeliveryStatus, outcomes []types.ChannelOutcome) error
}

type Fetcher interface {
	Fetch(ctx context.Context, symbols []string) price.Snapshot
}

type Notifier interface {
	Dispatch(ctx context.Context, batch []types.AlertPayload) notify.Report
}

// Manager runs check cycles: fetch prices once, evaluate every active
// target, record what fired, notify, then store the delivery outcome.
type Manager struct {
	store    Store
	prices   Fetcher
	notifier Notifier
	policy   types.RearmPolicy
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewManager(store Store, prices Fetcher, notifier Notifier, policy types.RearmPolicy, m *metrics.Metrics) *Manager {
	if policy == "" {
		policy = types.FireOnEdgeOnly
	}
	return &Manager{
		store:    store,
		prices:   prices,
		notifier: notifier,
		policy:   policy,
		metrics:  m,
		now:      time.Now,
	}
}

type fired struct {
	record  types.AlertRecord
	payload types.AlertPayload
}

// RunCycle performs one full check. Provider and channel failures are part of
// the report; only persistence errors and cancellation return an error.
func (m *Manager) RunCycle(ctx context.Context) (report types.CycleReport, err error) {
	report = types.CycleReport{CycleID: uuid.NewString(), StartedAt: m.now()}
	logger := log.WithFields(log.Fields{"component": "alert", "cycle": report.CycleID})

	defer func() {
		report.FinishedAt = m.now()
		m.metrics.ObserveCycle(report, err)
	}()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	logger.Info("🔄 Checking targets...")

	symbols, err := m.store.ListSymbolsWithActiveTargets(ctx)
	if err != nil {
		return report, errors.Wrap(err, "failed to list watched symbols")
	}
	report.Symbols = len(symbols)
	if len(symbols) == 0 {
		logger.Info("No active targets, nothing to check")
		return report, nil
	}

	snap := m.prices.Fetch(ctx, symbols)
	report.Quoted = len(snap.Quotes)
	report.Failed = snap.FailedSymbols()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	quoted := make([]string, 0, len(snap.Quotes))
	for symbol := range snap.Quotes {
		quoted = append(quoted, symbol)
	}
	sort.Strings(quoted)

	// writes must not be torn by shutdown once evaluation has started
	wctx := context.WithoutCancel(ctx)
	batch, loopErr := m.evaluate(ctx, wctx, logger, &report, snap, quoted)

	if len(batch) == 0 {
		if loopErr == nil {
			logger.Infof("✅ Check completed: %d symbols, %d quoted, %d targets evaluated, nothing fired",
				report.Symbols, report.Quoted, report.Evaluated)
		}
		return report, loopErr
	}

	// records already written are sent even when the loop stopped early,
	// otherwise they would sit in pending until the next restart
	payloads := make([]types.AlertPayload, len(batch))
	for i, f := range batch {
		payloads[i] = f.payload
	}
	dispatch := m.notifier.Dispatch(wctx, payloads)
	report.Delivery = dispatch.Status
	report.Outcomes = dispatch.Outcomes

	firstErr := loopErr
	for _, f := range batch {
		if err := m.store.UpdateAlertDeliveries(wctx, f.record.ID, dispatch.Status, dispatch.Outcomes); err != nil {
			logger.WithError(err).Errorf("❌ Failed to store delivery outcome of alert %d", f.record.ID)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to store delivery outcome of alert %d", f.record.ID)
			}
		}
	}

	logger.Infof("✅ Check completed: %d alert(s) fired, delivery %s", len(batch), dispatch.Status)
	return report, firstErr
}

// evaluate walks the quoted symbols and records every target that fires. It
// stops at the first persistence error and returns what was recorded so far.
func (m *Manager) evaluate(ctx, wctx context.Context, logger *log.Entry, report *types.CycleReport, snap price.Snapshot, quoted []string) ([]fired, error) {
	var batch []fired
	for _, symbol := range quoted {
		if ctx.Err() != nil {
			logger.Warn("Cycle cancelled, skipping remaining symbols")
			break
		}
		quote := snap.Quotes[symbol]

		targets, err := m.store.ListActiveTargets(ctx, symbol)
		if err != nil {
			return batch, errors.Wrapf(err, "failed to list targets for %s", symbol)
		}

		for _, t := range targets {
			report.Evaluated++
			res := evaluator.Evaluate(t, quote.Price)
			tlog := logger.WithFields(log.Fields{"symbol": symbol, "target_id": t.ID})

			if t.IsTriggered {
				rearm := !res.Triggered || m.policy == types.FireOnEveryCycle
				if !rearm || !t.IsRecurring {
					tlog.Debug("Target already fired, waiting for price to move back")
					continue
				}
				if err := m.store.UpdateTargetTriggeredFlag(wctx, t.ID, false); err != nil {
					return batch, errors.Wrapf(err, "failed to re-arm target %d", t.ID)
				}
				report.Rearmed++
				tlog.Info("Target re-armed")
				if !res.Triggered {
					continue
				}
			}

			tlog.Debugf("🔍 %s target %s, current %s, triggered %t", t.Type, t.Price, quote.Price, res.Triggered)
			if !res.Triggered {
				continue
			}

			f := m.buildAlert(report.CycleID, t, quote, res)
			err := m.store.RecordTrigger(wctx, &f.record, transition(t, m.policy))
			if errors.Is(err, types.ErrTargetNotArmed) {
				tlog.Warn("Target fired by another cycle, skipping")
				continue
			}
			if err != nil {
				return batch, errors.Wrapf(err, "failed to record alert for target %d", t.ID)
			}
			f.payload.AlertID = f.record.ID
			report.Fired = append(report.Fired, f.record.ID)
			batch = append(batch, f)
			tlog.Infof("🚨 %s target %s hit at %s", t.Type, t.Price, quote.Price)
		}
	}
	return batch, nil
}

// transition decides what happens to a target in the same write as its record.
func transition(t types.Target, policy types.RearmPolicy) types.TargetTransition {
	if !t.IsRecurring {
		return types.TargetTransition{Deactivate: true, MarkTriggered: true}
	}
	if policy == types.FireOnEdgeOnly {
		return types.TargetTransition{MarkTriggered: true}
	}
	return types.TargetTransition{}
}

func (m *Manager) buildAlert(cycleID string, t types.Target, q types.Quote, res evaluator.Result) fired {
	now := m.now()
	return fired{
		record: types.AlertRecord{
			TargetID:       t.ID,
			StockID:        t.StockID,
			CycleID:        cycleID,
			Symbol:         t.Symbol,
			TargetType:     t.Type,
			TargetPrice:    t.Price,
			TriggerPrice:   q.Price,
			TrimPercentage: t.TrimPercentage,
			AlertNote:      t.AlertNote,
			TriggeredAt:    now,
			Status:         types.DeliveryPending,
		},
		payload: types.AlertPayload{
			Symbol:            t.Symbol,
			Name:              t.Name,
			TargetType:        t.Type,
			TargetPrice:       t.Price,
			CurrentPrice:      q.Price,
			Volume:            q.Volume,
			DifferencePercent: res.DifferencePercent,
			TrimPercentage:    t.TrimPercentage,
			AlertNote:         t.AlertNote,
			TriggeredAt:       now,
		},
	}
}

// PreviewRow is the distance of one active target from the current price.
type PreviewRow struct {
	Target types.Target
	Quoted bool
	Price  decimal.Decimal
	Result evaluator.Result
	Error  string
}

// Preview evaluates every active target against fresh prices without
// recording or sending anything.
func (m *Manager) Preview(ctx context.Context) ([]PreviewRow, error) {
	symbols, err := m.store.ListSymbolsWithActiveTargets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list watched symbols")
	}
	snap := m.prices.Fetch(ctx, symbols)

	var rows []PreviewRow
	for _, symbol := range symbols {
		targets, err := m.store.ListActiveTargets(ctx, symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list targets for %s", symbol)
		}
		quote, ok := snap.Quotes[symbol]
		for _, t := range targets {
			row := PreviewRow{Target: t, Quoted: ok}
			if ok {
				row.Price = quote.Price
				row.Result = evaluator.Evaluate(t, quote.Price)
			} else if ferr := snap.Failed[symbol]; ferr != nil {
				row.Error = ferr.Error()
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
