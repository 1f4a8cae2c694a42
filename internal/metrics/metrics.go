package metrics

import (
	"context"
	"sync"
	"time"

	"stock-tracker-alerts/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "stock_tracker"
	subsystem = "alerts"
)

// Store persists counters between restarts.
type Store interface {
	SaveMetric(ctx context.Context, metricName string, value float64) error
	GetMetric(ctx context.Context, metricName string) (float64, error)
	SaveMetricWithLabels(ctx context.Context, metricName, labelKey, labelValue string, value float64) error
	GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error)
}

type Metrics struct {
	CyclesTotal       prometheus.Counter
	CycleFailures     prometheus.Counter
	AlertsFired       prometheus.Counter
	QuoteFailures     prometheus.Counter
	Deliveries        *prometheus.CounterVec
	LastSuccessfulRun prometheus.Gauge
	WatchedSymbols    prometheus.Gauge
	Mutex             sync.Mutex
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "The total number of completed check cycles",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_failures_total",
			Help:      "The total number of check cycles aborted by an error",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_fired_total",
			Help:      "The total number of targets that fired",
		}),
		QuoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quote_failures_total",
			Help:      "The total number of symbols the provider could not price",
		}),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "deliveries_total",
				Help:      "Notification attempts per channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time of the last cycle that finished without error",
		}),
		WatchedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "watched_symbols",
			Help:      "The number of symbols with at least one active target",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.CyclesTotal)
		reg.MustRegister(m.CycleFailures)
		reg.MustRegister(m.AlertsFired)
		reg.MustRegister(m.QuoteFailures)
		reg.MustRegister(m.Deliveries)
		reg.MustRegister(m.LastSuccessfulRun)
		reg.MustRegister(m.WatchedSymbols)
	}

	return m
}

// ObserveCycle records a finished cycle. Whatever the report holds is counted
// even when the cycle failed, since alerts may have been recorded and sent
// before the error. A nil receiver is a no-op so callers without metrics need
// no checks.
func (m *Metrics) ObserveCycle(report types.CycleReport, err error) {
	if m == nil {
		return
	}
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	m.QuoteFailures.Add(float64(len(report.Failed)))
	m.AlertsFired.Add(float64(len(report.Fired)))
	for _, o := range report.Outcomes {
		outcome := "delivered"
		if !o.Delivered {
			outcome = "failed"
		}
		m.Deliveries.WithLabelValues(o.Channel, outcome).Inc()
	}

	if err != nil {
		m.CycleFailures.Inc()
		return
	}
	m.CyclesTotal.Inc()
	m.WatchedSymbols.Set(float64(report.Symbols))
	m.LastSuccessfulRun.Set(float64(report.FinishedAt.Unix()))
}

// LoadMetricsFromDB restores the persisted counters.
func (m *Metrics) LoadMetricsFromDB(ctx context.Context, store Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	cycles, _ := store.GetMetric(ctx, "cycles_total")
	failures, _ := store.GetMetric(ctx, "cycle_failures_total")
	fired, _ := store.GetMetric(ctx, "alerts_fired_total")
	quoteFailures, _ := store.GetMetric(ctx, "quote_failures_total")
	lastSuccess, _ := store.GetMetric(ctx, "last_successful_cycle_timestamp_seconds")

	m.CyclesTotal.Add(cycles)
	m.CycleFailures.Add(failures)
	m.AlertsFired.Add(fired)
	m.QuoteFailures.Add(quoteFailures)
	m.LastSuccessfulRun.Set(lastSuccess)

	// label_key holds the channel, label_value the outcome
	deliveries, err := store.GetMetricsWithLabels(ctx, "deliveries_total")
	if err != nil {
		log.Errorf("Failed to load delivery metrics: %v", err)
	}
	for channel, outcomes := range deliveries {
		for outcome, value := range outcomes {
			m.Deliveries.WithLabelValues(channel, outcome).Add(value)
		}
	}

	log.Info("Metrics loaded from database.")
}

// SaveMetricsToDB writes the current counter values.
func (m *Metrics) SaveMetricsToDB(ctx context.Context, store Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range map[string]prometheus.Collector{
		"cycles_total":                            m.CyclesTotal,
		"cycle_failures_total":                    m.CycleFailures,
		"alerts_fired_total":                      m.AlertsFired,
		"quote_failures_total":                    m.QuoteFailures,
		"last_successful_cycle_timestamp_seconds": m.LastSuccessfulRun,
	} {
		if err := store.SaveMetric(ctx, name, GetMetricValue(c)); err != nil {
			log.Errorf("Failed to save metric %s: %v", name, err)
		}
	}

	metricChan := make(chan prometheus.Metric, 1)
	go func() {
		m.Deliveries.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Errorf("Failed to read deliveries metric: %v", err)
			continue
		}
		var channel, outcome string
		for _, label := range metricProto.Label {
			switch label.GetName() {
			case "channel":
				channel = label.GetValue()
			case "outcome":
				outcome = label.GetValue()
			}
		}
		if err := store.SaveMetricWithLabels(ctx, "deliveries_total", channel, outcome, metricProto.Counter.GetValue()); err != nil {
			log.Errorf("Failed to save deliveries metric: %v", err)
		}
	}

	log.Info("Metrics saved to database.")
}

// StartSaver saves the metrics every interval until ctx is done.
func (m *Metrics) StartSaver(ctx context.Context, store Store, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SaveMetricsToDB(ctx, store)
			}
		}
	}()
}

// GetMetricValue reads the value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
