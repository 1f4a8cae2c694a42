package database

import (
	"context"
	"database/sql"

	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const targetColumns = `t.id, t.stock_id, s.symbol, COALESCE(s.company_name, ''), t.target_type, t.target_price,
	t.trim_percentage, COALESCE(t.alert_note, ''), t.is_active, t.is_recurring, t.is_triggered, t.created_at`

// ListSymbolsWithActiveTargets returns every symbol that has at least one active target.
func (s *Store) ListSymbolsWithActiveTargets(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT s.symbol
	FROM stocks s
	JOIN targets t ON t.stock_id = s.id
	WHERE t.is_active = 1
	ORDER BY s.symbol;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query watched symbols")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(err, "failed to scan symbol")
		}
		symbols = append(symbols, symbol)
	}
	return symbols, errors.Wrap(rows.Err(), "failed to read symbols")
}

// ListActiveTargets returns the active targets of one symbol, lowest price first.
// Recurring targets waiting to be re-armed are included with IsTriggered set.
func (s *Store) ListActiveTargets(ctx context.Context, symbol string) ([]types.Target, error) {
	query := `
	SELECT ` + targetColumns + `
	FROM targets t
	JOIN stocks s ON s.id = t.stock_id
	WHERE s.symbol = ? AND t.is_active = 1
	ORDER BY CAST(t.target_price AS REAL), t.id;`

	rows, err := s.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query targets for %s", symbol)
	}
	defer rows.Close()

	var targets []types.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, errors.Wrap(rows.Err(), "failed to read targets")
}

func scanTarget(rows *sql.Rows) (types.Target, error) {
	var (
		t         types.Target
		tt        string
		createdAt string
	)
	err := rows.Scan(&t.ID, &t.StockID, &t.Symbol, &t.Name, &tt, &t.Price,
		&t.TrimPercentage, &t.AlertNote, &t.IsActive, &t.IsRecurring, &t.IsTriggered, &createdAt)
	if err != nil {
		return t, errors.Wrap(err, "failed to scan target")
	}
	t.Type = types.TargetType(tt)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	return t, nil
}

// DeactivateTarget switches a target off so it is never evaluated again.
func (s *Store) DeactivateTarget(ctx context.Context, targetID int64) error {
	return setTargetActive(ctx, s.db, targetID, false)
}

// UpdateTargetTriggeredFlag sets or clears the triggered flag of a target.
func (s *Store) UpdateTargetTriggeredFlag(ctx context.Context, targetID int64, triggered bool) error {
	return setTargetTriggered(ctx, s.db, targetID, triggered)
}

func setTargetActive(ctx context.Context, ex execer, targetID int64, active bool) error {
	res, err := ex.ExecContext(ctx, `UPDATE targets SET is_active = ? WHERE id = ?;`, active, targetID)
	if err != nil {
		return errors.Wrapf(err, "failed to update target %d", targetID)
	}
	return mustAffect(res, "target", targetID)
}

func setTargetTriggered(ctx context.Context, ex execer, targetID int64, triggered bool) error {
	res, err := ex.ExecContext(ctx, `UPDATE targets SET is_triggered = ? WHERE id = ?;`, triggered, targetID)
	if err != nil {
		return errors.Wrapf(err, "failed to update target %d", targetID)
	}
	return mustAffect(res, "target", targetID)
}

// claimTarget applies tr to a target that is still armed. Zero matched rows
// means another cycle fired it, or it was switched off, since it was read.
func claimTarget(ctx context.Context, ex execer, targetID int64, tr types.TargetTransition) error {
	res, err := ex.ExecContext(ctx, `
	UPDATE targets
	SET is_active = CASE WHEN ? THEN 0 ELSE is_active END,
		is_triggered = CASE WHEN ? THEN 1 ELSE is_triggered END
	WHERE id = ? AND is_active = 1 AND is_triggered = 0;`, tr.Deactivate, tr.MarkTriggered, targetID)
	if err != nil {
		return errors.Wrapf(err, "failed to claim target %d", targetID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrapf(types.ErrTargetNotArmed, "target %d", targetID)
	}
	return nil
}

// AddSecurity inserts a watched security, or returns the id of the existing one.
func (s *Store) AddSecurity(ctx context.Context, symbol, name string) (int64, error) {
	symbol, err := types.NormalizeSymbol(symbol)
	if err != nil {
		return 0, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stocks (symbol, company_name, created_at) VALUES (?, ?, ?);`,
		symbol, nullString(name), formatTime(s.now()))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert stock %s", symbol)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM stocks WHERE symbol = ?;`, symbol).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "failed to load stock %s", symbol)
	}
	return id, nil
}

// FindSecurity looks a watched security up by symbol.
func (s *Store) FindSecurity(ctx context.Context, symbol string) (types.Security, error) {
	symbol, err := types.NormalizeSymbol(symbol)
	if err != nil {
		return types.Security{}, err
	}

	sec := types.Security{Symbol: symbol}
	err = s.db.QueryRowContext(ctx, `SELECT id, COALESCE(company_name, '') FROM stocks WHERE symbol = ?;`, symbol).Scan(&sec.ID, &sec.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return sec, errors.Wrapf(ErrNotFound, "stock %s", symbol)
	}
	if err != nil {
		return sec, errors.Wrapf(err, "failed to load stock %s", symbol)
	}
	return sec, nil
}

// ListSecurities returns every watched security ordered by symbol.
func (s *Store) ListSecurities(ctx context.Context) ([]types.Security, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, COALESCE(company_name, '') FROM stocks ORDER BY symbol;`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query stocks")
	}
	defer rows.Close()

	var securities []types.Security
	for rows.Next() {
		var sec types.Security
		if err := rows.Scan(&sec.ID, &sec.Symbol, &sec.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan stock")
		}
		securities = append(securities, sec)
	}
	return securities, errors.Wrap(rows.Err(), "failed to read stocks")
}

// AddTarget stores a new active target for an existing security.
func (s *Store) AddTarget(ctx context.Context, t types.Target) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO targets (stock_id, target_type, target_price, trim_percentage, alert_note, is_active, is_recurring, created_at)
	VALUES (?, ?, ?, ?, ?, 1, ?, ?);`,
		t.StockID, string(t.Type), t.Price.String(), decimalArg(t.TrimPercentage), nullString(t.AlertNote), t.IsRecurring, formatTime(s.now()))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert target for stock %d", t.StockID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read target id")
	}

	log.WithFields(log.Fields{"target_id": id, "stock_id": t.StockID, "type": t.Type, "price": t.Price}).Debug("Target inserted")
	return id, nil
}

func decimalArg(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}
