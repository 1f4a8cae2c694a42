package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultChannelTimeout = 10 * time.Second

// Channel delivers one consolidated message for a batch of alerts.
type Channel interface {
	Name() string
	Send(ctx context.Context, batch []types.AlertPayload) error
}

// Tester is implemented by channels that can send a connectivity test message.
type Tester interface {
	SendTest(ctx context.Context) error
}

// Report is the result of one dispatch over every channel.
type Report struct {
	Status   types.DeliveryStatus
	Outcomes []types.ChannelOutcome
}

type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	now      func() time.Time
}

func NewDispatcher(channels []Channel, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	return &Dispatcher{channels: channels, timeout: timeout, now: time.Now}
}

func (d *Dispatcher) Channels() []Channel {
	return d.channels
}

// Dispatch sends the batch through every channel at once, each bounded by its
// own timeout, and waits for all of them. One failing channel never stops
// the others.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []types.AlertPayload) Report {
	if len(batch) == 0 {
		return Report{Status: types.DeliverySkipped}
	}
	if len(d.channels) == 0 {
		log.Warnf("⚠️ No notification channel configured, %d alert(s) recorded but not sent", len(batch))
		return Report{Status: types.DeliverySkipped}
	}

	outcomes := make([]types.ChannelOutcome, len(d.channels))
	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, ch, batch)
		}(i, ch)
	}
	wg.Wait()

	report := Report{Status: types.DeliveryFailed, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Delivered {
			report.Status = types.DeliveryDelivered
			break
		}
	}
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, batch []types.AlertPayload) types.ChannelOutcome {
	logger := log.WithFields(log.Fields{"component": "notify", "channel": ch.Name()})

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Recovered from panic: %v\nStack trace: %s", r, debug.Stack())
				done <- errors.Errorf("panic: %v", r)
			}
		}()
		done <- ch.Send(cctx, batch)
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = errors.Wrapf(cctx.Err(), "%s gave no answer within %s", ch.Name(), d.timeout)
	}

	outcome := types.ChannelOutcome{Channel: ch.Name(), Delivered: err == nil, AttemptedAt: d.now()}
	if err != nil {
		outcome.Error = err.Error()
		logger.WithError(err).Errorf("❌ Failed to send %d alert(s)", len(batch))
	} else {
		logger.Infof("✅ Sent %d alert(s)", len(batch))
	}
	return outcome
}
