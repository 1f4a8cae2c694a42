package database

import (
	"context"
	"strings"
	"time"

	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultHistoryPageSize = 50
	MaxHistoryPageSize     = 100
)

// ClampLimit applies the default page size and caps it at MaxHistoryPageSize.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryPageSize
	}
	if limit > MaxHistoryPageSize {
		return MaxHistoryPageSize
	}
	return limit
}

const alertColumns = `a.id, a.target_id, a.stock_id, a.cycle_id, s.symbol, a.target_type, a.target_price,
	a.current_price, a.trim_percentage, COALESCE(a.alert_note, ''), a.status, a.triggered_at`

// RecordTrigger applies the target transition and inserts a pending alert
// record in one transaction. The target must still be active and unflagged,
// otherwise nothing is written and types.ErrTargetNotArmed is returned.
// rec.ID is set on success.
func (s *Store) RecordTrigger(ctx context.Context, rec *types.AlertRecord, tr types.TargetTransition) error {
	if rec.Status == "" {
		rec.Status = types.DeliveryPending
	}
	if rec.TriggeredAt.IsZero() {
		rec.TriggeredAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin alert transaction")
	}
	defer tx.Rollback()

	// claim before insert: a cycle that lost the race writes nothing
	if err := claimTarget(ctx, tx, rec.TargetID, tr); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO alert_history (stock_id, target_id, cycle_id, current_price, target_price, target_type, trim_percentage, alert_note, status, triggered_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.StockID, rec.TargetID, rec.CycleID, rec.TriggerPrice.String(), rec.TargetPrice.String(),
		string(rec.TargetType), decimalArg(rec.TrimPercentage), nullString(rec.AlertNote),
		string(rec.Status), formatTime(rec.TriggeredAt))
	if err != nil {
		return errors.Wrapf(err, "failed to insert alert for target %d", rec.TargetID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read alert id")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit alert")
	}

	rec.ID = id
	log.WithFields(log.Fields{
		"alert_id":  id,
		"target_id": rec.TargetID,
		"symbol":    rec.Symbol,
		"price":     rec.TriggerPrice,
	}).Info("Alert recorded")
	return nil
}

// UpdateAlertDeliveries stores the per-channel outcome of a dispatched alert.
func (s *Store) UpdateAlertDeliveries(ctx context.Context, alertID int64, status types.DeliveryStatus, outcomes []types.ChannelOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin delivery transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE alert_history SET status = ? WHERE id = ?;`, string(status), alertID)
	if err != nil {
		return errors.Wrapf(err, "failed to update alert %d", alertID)
	}
	if err := mustAffect(res, "alert", alertID); err != nil {
		return err
	}

	for _, o := range outcomes {
		_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_deliveries (alert_id, channel, delivered, error, attempted_at)
		VALUES (?, ?, ?, ?, ?);`,
			alertID, o.Channel, o.Delivered, nullString(o.Error), formatTime(o.AttemptedAt))
		if err != nil {
			return errors.Wrapf(err, "failed to store %s delivery for alert %d", o.Channel, alertID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit deliveries")
}

// MarkAbandonedDeliveries flags records still pending from before the given
// time as unknown. They were recorded but the process stopped mid-dispatch.
func (s *Store) MarkAbandonedDeliveries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_history SET status = ? WHERE status = ? AND triggered_at < ?;`,
		string(types.DeliveryUnknown), string(types.DeliveryPending), formatTime(before))
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark abandoned alerts")
	}
	return res.RowsAffected()
}

// ListAlertHistory returns a page of alert records, newest first.
func (s *Store) ListAlertHistory(ctx context.Context, q types.HistoryQuery) ([]types.AlertRecord, error) {
	limit := ClampLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + alertColumns + ` FROM alert_history a JOIN stocks s ON s.id = a.stock_id`
	args := []any{}
	if q.StockID > 0 {
		query += ` WHERE a.stock_id = ?`
		args = append(args, q.StockID)
	}
	query += ` ORDER BY a.triggered_at DESC, a.id DESC LIMIT ? OFFSET ?;`
	args = append(args, limit, offset)

	alerts, err := s.queryAlerts(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := s.loadDeliveries(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetAlertRecord loads one alert record with its deliveries.
func (s *Store) GetAlertRecord(ctx context.Context, id int64) (types.AlertRecord, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_history a JOIN stocks s ON s.id = a.stock_id WHERE a.id = ?;`
	alerts, err := s.queryAlerts(ctx, query, id)
	if err != nil {
		return types.AlertRecord{}, err
	}
	if len(alerts) == 0 {
		return types.AlertRecord{}, errors.Wrapf(ErrNotFound, "alert %d", id)
	}
	if err := s.loadDeliveries(ctx, alerts); err != nil {
		return types.AlertRecord{}, err
	}
	return alerts[0], nil
}

// LatestAlertsForStocks returns the most recent alert of each stock in a single query.
func (s *Store) LatestAlertsForStocks(ctx context.Context, stockIDs []int64) (map[int64]types.AlertRecord, error) {
	latest := make(map[int64]types.AlertRecord, len(stockIDs))
	if len(stockIDs) == 0 {
		return latest, nil
	}

	placeholders, args := inClause(stockIDs)
	query := `SELECT ` + alertColumns + `
	FROM alert_history a
	JOIN stocks s ON s.id = a.stock_id
	JOIN (
		SELECT stock_id, MAX(triggered_at) AS max_triggered
		FROM alert_history
		WHERE stock_id IN (` + placeholders + `)
		GROUP BY stock_id
	) m ON m.stock_id = a.stock_id AND m.max_triggered = a.triggered_at
	ORDER BY a.id;`

	alerts, err := s.queryAlerts(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		latest[a.StockID] = a
	}
	return latest, nil
}

// queryAlerts reads all rows before returning so the single sqlite
// connection is free for follow-up queries.
func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]types.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	var alerts []types.AlertRecord
	for rows.Next() {
		var (
			a           types.AlertRecord
			tt, status  string
			triggeredAt string
		)
		if err := rows.Scan(&a.ID, &a.TargetID, &a.StockID, &a.CycleID, &a.Symbol, &tt, &a.TargetPrice,
			&a.TriggerPrice, &a.TrimPercentage, &a.AlertNote, &status, &triggeredAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan alert")
		}
		a.TargetType = types.TargetType(tt)
		a.Status = types.DeliveryStatus(status)
		if a.TriggeredAt, err = parseTime(triggeredAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read alerts")
	}
	return alerts, nil
}

func (s *Store) loadDeliveries(ctx context.Context, alerts []types.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}

	index := make(map[int64]int, len(alerts))
	ids := make([]int64, 0, len(alerts))
	for i, a := range alerts {
		index[a.ID] = i
		ids = append(ids, a.ID)
	}

	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `
	SELECT alert_id, channel, delivered, COALESCE(error, ''), attempted_at
	FROM alert_deliveries
	WHERE alert_id IN (`+placeholders+`)
	ORDER BY alert_id, channel;`, args...)
	if err != nil {
		return errors.Wrap(err, "failed to query deliveries")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			alertID     int64
			o           types.ChannelOutcome
			attemptedAt string
		)
		if err := rows.Scan(&alertID, &o.Channel, &o.Delivered, &o.Error, &attemptedAt); err != nil {
			return errors.Wrap(err, "failed to scan delivery")
		}
		if o.AttemptedAt, err = parseTime(attemptedAt); err != nil {
			return err
		}
		i := index[alertID]
		alerts[i].Deliveries = append(alerts[i].Deliveries, o)
	}
	return errors.Wrap(rows.Err(), "failed to read deliveries")
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
