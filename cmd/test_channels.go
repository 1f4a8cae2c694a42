package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"stock-tracker-alerts/internal/notify"

	"github.com/google/subcommands"
)

type testChannelsCmd struct{}

func (*testChannelsCmd) Name() string     { return "test-channels" }
func (*testChannelsCmd) Synopsis() string { return "send a test message through every channel" }
func (*testChannelsCmd) Usage() string {
	return `test-channels

  Sends a short test message through every configured notification channel.
`
}

func (*testChannelsCmd) SetFlags(*flag.FlagSet) {}

func (*testChannelsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	channels := notify.NewChannels(cfg)
	if len(channels) == 0 {
		fmt.Fprintln(os.Stderr, "No notification channels configured.")
		return subcommands.ExitFailure
	}
	if failed := testChannels(ctx, os.Stdout, channels, cfg.ChannelTimeout); failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// testChannels returns how many channels failed.
func testChannels(ctx context.Context, w io.Writer, channels []notify.Channel, timeout time.Duration) int {
	failed := 0
	for _, ch := range channels {
		tester, ok := ch.(notify.Tester)
		if !ok {
			fmt.Fprintf(w, "- %s: no test message available\n", ch.Name())
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, timeout)
		err := tester.SendTest(tctx)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(w, "✗ %s: %v\n", ch.Name(), err)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", ch.Name())
	}
	return failed
}
