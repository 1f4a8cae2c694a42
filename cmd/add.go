package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"stock-tracker-alerts/internal/database"
	"stock-tracker-alerts/internal/types"
	"stock-tracker-alerts/lib/helpers"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type addCmd struct {
	name      string
	trim      string
	note      string
	recurring bool
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "watch a security with a price target" }
func (*addCmd) Usage() string {
	return `add [-name <company>] [-trim <percent>] [-note <text>] [-recurring] SYMBOL TYPE PRICE

  Adds a target to the watch list, creating the security when needed.
  TYPE is one of Buy, Sell, DCA or Trim. -trim only applies to Trim targets.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Company name")
	f.StringVar(&c.trim, "trim", "", "Percentage of the position to trim, Trim targets only")
	f.StringVar(&c.note, "note", "", "Note shown with the alert")
	f.BoolVar(&c.recurring, "recurring", false, "Keep the target active after it fires")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbol, target, err := c.parse(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

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

	target.StockID, err = store.AddSecurity(ctx, symbol, c.name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	id, err := store.AddTarget(ctx, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Added %s target #%d for %s at $%s\n", target.Type, id, symbol, helpers.FormatPriceUS(target.Price, false))
	return subcommands.ExitSuccess
}

// parse validates the positional arguments and flags without touching the database.
func (c *addCmd) parse(args []string) (string, types.Target, error) {
	var t types.Target
	if len(args) != 3 {
		return "", t, errors.New("expected SYMBOL TYPE PRICE")
	}

	symbol, err := types.NormalizeSymbol(args[0])
	if err != nil {
		return "", t, err
	}
	if t.Type, err = types.ParseTargetType(args[1]); err != nil {
		return "", t, err
	}
	if t.Price, err = decimal.NewFromString(args[2]); err != nil {
		return "", t, errors.Wrapf(types.ErrInvalidTarget, "invalid price %q", args[2])
	}
	if c.trim != "" {
		p, err := decimal.NewFromString(c.trim)
		if err != nil {
			return "", t, errors.Wrapf(types.ErrInvalidTarget, "invalid trim percentage %q", c.trim)
		}
		t.TrimPercentage = decimal.NewNullDecimal(p)
	}
	t.Symbol = symbol
	t.AlertNote = c.note
	t.IsRecurring = c.recurring

	return symbol, t, t.Validate()
}
