package main

import (
	"context"
	"flag"
	"os"
	"path"

	"stock-tracker-alerts/config"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"
)

func init() {
	config.InitConfig()
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&runCmd{}, "daemon")
	commander.Register(&statusCmd{}, "daemon")
	commander.Register(&checkCmd{}, "alerts")
	commander.Register(&historyCmd{}, "alerts")
	commander.Register(&addCmd{}, "watch list")
	commander.Register(&testChannelsCmd{}, "channels")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting stock tracker...")
}
