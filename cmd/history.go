package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"stock-tracker-alerts/internal/database"
	"stock-tracker-alerts/internal/types"
	"stock-tracker-alerts/lib/helpers"

	"github.com/google/subcommands"
)

type historyCmd struct {
	limit  int
	offset int
	stock  string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list fired alerts, newest first" }
func (*historyCmd) Usage() string {
	return `history [-limit <n>] [-offset <n>] [-stock <symbol>]

  Prints recorded alerts with the outcome of every notification channel.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", database.DefaultHistoryPageSize, "Number of alerts to show (max 100)")
	f.IntVar(&c.offset, "offset", 0, "Number of alerts to skip")
	f.StringVar(&c.stock, "stock", "", "Only show alerts for this symbol")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	store, err := database.InitDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	q := types.HistoryQuery{Limit: c.limit, Offset: c.offset}
	if c.stock != "" {
		sec, err := store.FindSecurity(ctx, c.stock)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		q.StockID = sec.ID
	}

	records, err := store.ListAlertHistory(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printHistory(os.Stdout, records)
	return subcommands.ExitSuccess
}

func printHistory(w io.Writer, records []types.AlertRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No alerts recorded.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "#%d  %s  %s %s  target $%s  price $%s  [%s]\n",
			r.ID, helpers.FormatDate(r.TriggeredAt), r.Symbol, r.TargetType,
			helpers.FormatPriceUS(r.TargetPrice, false), helpers.FormatPriceUS(r.TriggerPrice, false), r.Status)
		if r.AlertNote != "" {
			fmt.Fprintf(w, "    note: %s\n", r.AlertNote)
		}
		printOutcomes(w, r.Deliveries, "    ")
	}
}
