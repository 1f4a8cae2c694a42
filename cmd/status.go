package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"stock-tracker-alerts/config"
	"stock-tracker-alerts/internal/admin"
	"stock-tracker-alerts/internal/scheduler"
	"stock-tracker-alerts/lib/helpers"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
)

type statusCmd struct {
	addr string
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show the state of a running daemon" }
func (*statusCmd) Usage() string {
	return `status [-addr <url>]

  Queries a running daemon for its scheduler state and its watch list, with
  the last price and the latest alert of every security.
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "Daemon admin address (default http://localhost:<metrics_port>)")
}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	addr := c.addr
	if addr == "" {
		addr = fmt.Sprintf("http://localhost:%d", config.GetInt("metrics_port"))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	st, err := fetchStatus(ctx, client, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printStatus(os.Stdout, st)

	entries, err := fetchWatchlist(ctx, client, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(os.Stdout)
	printWatchlist(os.Stdout, entries)
	return subcommands.ExitSuccess
}

func fetchStatus(ctx context.Context, client *http.Client, addr string) (scheduler.Status, error) {
	var st scheduler.Status
	err := getJSON(ctx, client, strings.TrimRight(addr, "/")+"/status", &st)
	return st, err
}

func fetchWatchlist(ctx context.Context, client *http.Client, addr string) ([]admin.WatchEntry, error) {
	var entries []admin.WatchEntry
	err := getJSON(ctx, client, strings.TrimRight(addr, "/")+"/watchlist", &entries)
	return entries, err
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "daemon unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("daemon answered %s", resp.Status)
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(v), "failed to decode response")
}

func printStatus(w io.Writer, st scheduler.Status) {
	fmt.Fprintf(w, "State:        %s (alive: %t)\n", st.State, st.Alive)
	fmt.Fprintf(w, "Cycles run:   %d\n", st.Runs)
	fmt.Fprintf(w, "Last run:     %s\n", helpers.FormatAgo(st.LastRunAt))
	fmt.Fprintf(w, "Last success: %s\n", helpers.FormatAgo(st.LastSuccessAt))
	if !st.NextRunAt.IsZero() {
		fmt.Fprintf(w, "Next run:     %s\n", helpers.FormatDate(st.NextRunAt))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error:   %s\n", st.LastError)
	}
	if st.LastReport != nil {
		printReport(w, *st.LastReport)
	}
}

func printWatchlist(w io.Writer, entries []admin.WatchEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Watch list is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tLAST PRICE\tLATEST ALERT")
	for _, e := range entries {
		last := "-"
		if e.LastQuote != nil {
			last = "$" + helpers.FormatPriceUS(e.LastQuote.Price, false)
		}
		latest := "none"
		if a := e.LatestAlert; a != nil {
			latest = fmt.Sprintf("#%d %s $%s at $%s, %s [%s]", a.ID, a.TargetType,
				helpers.FormatPriceUS(a.TargetPrice, false), helpers.FormatPriceUS(a.TriggerPrice, false),
				helpers.FormatAgo(a.TriggeredAt), a.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Security.Symbol, last, latest)
	}
	tw.Flush()
}
