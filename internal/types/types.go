package types

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidTarget is returned when a target or security fails validation.
var ErrInvalidTarget = errors.New("invalid target")

// ErrTargetNotArmed is returned when a target was switched off or flagged by
// another cycle between being read and being fired.
var ErrTargetNotArmed = errors.New("target is no longer armed")

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)

// TargetType is the direction of a price target.
type TargetType string

const (
	TargetBuy  TargetType = "Buy"
	TargetSell TargetType = "Sell"
	TargetDCA  TargetType = "DCA"
	TargetTrim TargetType = "Trim"
)

// ParseTargetType accepts any casing of Buy, Sell, DCA and Trim.
func ParseTargetType(s string) (TargetType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return TargetBuy, nil
	case "sell":
		return TargetSell, nil
	case "dca":
		return TargetDCA, nil
	case "trim":
		return TargetTrim, nil
	}
	return "", errors.Wrapf(ErrInvalidTarget, "unknown target type %q", s)
}

// Below reports whether the type fires when price falls to the threshold.
func (t TargetType) Below() bool {
	return t == TargetBuy || t == TargetDCA
}

// Above reports whether the type fires when price rises to the threshold.
func (t TargetType) Above() bool {
	return t == TargetSell || t == TargetTrim
}

// NormalizeSymbol upper-cases and trims a ticker and checks its shape.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", errors.Wrapf(ErrInvalidTarget, "invalid symbol %q", symbol)
	}
	return s, nil
}

type Security struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
}

type Target struct {
	ID             int64               `json:"id"`
	StockID        int64               `json:"stock_id"`
	Symbol         string              `json:"symbol"`
	Name           string              `json:"name,omitempty"`
	Type           TargetType          `json:"target_type"`
	Price          decimal.Decimal     `json:"target_price"`
	TrimPercentage decimal.NullDecimal `json:"trim_percentage"`
	AlertNote      string              `json:"alert_note,omitempty"`
	IsActive       bool                `json:"is_active"`
	IsRecurring    bool                `json:"is_recurring"`
	IsTriggered    bool                `json:"is_triggered"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Validate checks the target price and the trim percentage rules.
func (t Target) Validate() error {
	switch t.Type {
	case TargetBuy, TargetSell, TargetDCA, TargetTrim:
	default:
		return errors.Wrapf(ErrInvalidTarget, "unknown target type %q", t.Type)
	}
	if !t.Price.IsPositive() {
		return errors.Wrapf(ErrInvalidTarget, "target price must be positive, got %s", t.Price)
	}
	if t.TrimPercentage.Valid {
		if t.Type != TargetTrim {
			return errors.Wrap(ErrInvalidTarget, "trim percentage only applies to Trim targets")
		}
		p := t.TrimPercentage.Decimal
		if !p.IsPositive() || p.GreaterThan(decimal.NewFromInt(100)) {
			return errors.Wrapf(ErrInvalidTarget, "trim percentage must be in (0, 100], got %s", p)
		}
	}
	return nil
}

// Quote is the latest price for one symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// RearmPolicy decides when a recurring target may fire again.
type RearmPolicy string

const (
	// FireOnEdgeOnly fires when the threshold is crossed and waits for the
	// price to move back before it can fire again.
	FireOnEdgeOnly RearmPolicy = "fire_on_edge_only"
	// FireOnEveryCycle fires on every cycle the condition holds.
	FireOnEveryCycle RearmPolicy = "fire_on_every_cycle"
)

func ParseRearmPolicy(s string) (RearmPolicy, error) {
	switch RearmPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FireOnEdgeOnly, "":
		return FireOnEdgeOnly, nil
	case FireOnEveryCycle:
		return FireOnEveryCycle, nil
	}
	return "", errors.Errorf("unknown rearm policy %q", s)
}

// TargetTransition is applied to a target in the same write as its alert record.
type TargetTransition struct {
	Deactivate    bool
	MarkTriggered bool
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	// DeliverySkipped means no channel was configured.
	DeliverySkipped DeliveryStatus = "skipped"
	// DeliveryUnknown marks records left pending by a process that died mid-dispatch.
	DeliveryUnknown DeliveryStatus = "unknown"
)

type ChannelOutcome struct {
	Channel     string    `json:"channel"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type AlertRecord struct {
	ID             int64               `json:"id"`
	TargetID       int64               `json:"target_id"`
	StockID        int64               `json:"stock_id"`
	CycleID        string              `json:"cycle_id"`
	Symbol         string              `json:"symbol"`
	TargetType     TargetType          `json:"target_type"`
	TargetPrice    decimal.Decimal     `json:"target_price"`
	TriggerPrice   decimal.Decimal     `json:"current_price"`
	TrimPercentage decimal.NullDecimal `json:"trim_percentage"`
	AlertNote      string              `json:"alert_note,omitempty"`
	TriggeredAt    time.Time           `json:"triggered_at"`
	Status         DeliveryStatus      `json:"status"`
	Deliveries     []ChannelOutcome    `json:"deliveries"`
}

// AlertPayload is what the channels render for one fired target.
type AlertPayload struct {
	AlertID           int64
	Symbol            string
	Name              string
	TargetType        TargetType
	TargetPrice       decimal.Decimal
	CurrentPrice      decimal.Decimal
	Volume            decimal.Decimal
	DifferencePercent decimal.Decimal
	TrimPercentage    decimal.NullDecimal
	AlertNote         string
	TriggeredAt       time.Time
}

type HistoryQuery struct {
	StockID int64
	Limit   int
	Offset  int
}

// CycleReport summarises one fetch → evaluate → trigger → dispatch pass.
type CycleReport struct {
	CycleID    string           `json:"cycle_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Symbols    int              `json:"symbols"`
	Quoted     int              `json:"quoted"`
	Failed     []string         `json:"failed_symbols,omitempty"`
	Evaluated  int              `json:"evaluated"`
	Fired      []int64          `json:"fired_alert_ids,omitempty"`
	Rearmed    int              `json:"rearmed"`
	Delivery   DeliveryStatus   `json:"delivery,omitempty"`
	Outcomes   []ChannelOutcome `json:"outcomes,omitempty"`
}
