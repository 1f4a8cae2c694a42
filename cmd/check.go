package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"stock-tracker-alerts/internal/alert"
	"stock-tracker-alerts/internal/scheduler"
	"stock-tracker-alerts/internal/types"
	"stock-tracker-alerts/lib/helpers"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type checkCmd struct {
	dryRun bool
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "run one price check now" }
func (*checkCmd) Usage() string {
	return `check [-dry-run]

  Fetches prices for every active target, records and sends the alerts that
  fire. With -dry-run nothing is recorded or sent; the distance of every
  target from the current price is printed instead. A real check refuses to
  run while the daemon holds the PID file; use its POST /run instead.
`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "Only print how far each target is from the current price")
}

func (c *checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Errorf("Failed to initialize: %v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.dryRun {
		rows, err := a.manager.Preview(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		printPreview(os.Stdout, rows)
		return subcommands.ExitSuccess
	}

	release, err := acquireCheckLock(cfg.PIDFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer release()

	report, err := a.manager.RunCycle(ctx)
	printReport(os.Stdout, report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// acquireCheckLock holds the daemon's PID file for the length of a one-off
// cycle, so the two never fire the same targets side by side.
func acquireCheckLock(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	pid, err := scheduler.AcquirePIDFile(path)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		return nil, errors.Wrap(err, "the daemon is running, trigger a check with its POST /run endpoint")
	}
	if err != nil {
		return nil, err
	}
	return func() {
		if err := pid.Release(); err != nil {
			log.Warnf("Failed to remove PID file: %v", err)
		}
	}, nil
}

func printPreview(w io.Writer, rows []alert.PreviewRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No active targets.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tTYPE\tTARGET\tCURRENT\tDISTANCE\tSTATUS")
	for _, r := range rows {
		current, distance, status := "n/a", "n/a", "no quote"
		if r.Quoted {
			current = "$" + helpers.FormatPriceUS(r.Price, false)
			distance = helpers.FormatPercent(r.Result.DifferencePercent, false)
			status = "waiting"
			if r.Result.Triggered {
				status = "MET"
			}
			if r.Target.IsTriggered {
				status += " (fired, waiting to re-arm)"
			}
		} else if r.Error != "" {
			status = "no quote: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t$%s\t%s\t%s\t%s\n", r.Target.Symbol, r.Target.Type,
			helpers.FormatPriceUS(r.Target.Price, false), current, distance, status)
	}
	tw.Flush()
}

func printReport(w io.Writer, r types.CycleReport) {
	fmt.Fprintf(w, "Cycle %s: %d symbol(s), %d quoted, %d target(s) evaluated, %d alert(s) fired\n",
		r.CycleID, r.Symbols, r.Quoted, r.Evaluated, len(r.Fired))
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "No price for: %s\n", strings.Join(r.Failed, ", "))
	}
	if r.Rearmed > 0 {
		fmt.Fprintf(w, "Re-armed %d recurring target(s)\n", r.Rearmed)
	}
	if r.Delivery != "" {
		fmt.Fprintf(w, "Delivery: %s\n", r.Delivery)
		printOutcomes(w, r.Outcomes, "  ")
	}
}

func printOutcomes(w io.Writer, outcomes []types.ChannelOutcome, indent string) {
	for _, o := range outcomes {
		if o.Delivered {
			fmt.Fprintf(w, "%s✓ %s\n", indent, o.Channel)
			continue
		}
		fmt.Fprintf(w, "%s✗ %s: %s\n", indent, o.Channel, o.Error)
	}
}
