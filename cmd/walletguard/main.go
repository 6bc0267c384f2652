package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/oddbit-project/walletguard/config/provider"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	VERSION = "1.0.0"
)

// CliArgs Command-line options
type CliArgs struct {
	ConfigFile  *string
	ShowVersion *bool
}

var cliArgs = &CliArgs{
	ConfigFile:  flag.String("c", "config/walletguard.json", "Config file"),
	ShowVersion: flag.Bool("version", false, "Show version"),
}

func main() {
	flag.Parse()

	if *cliArgs.ShowVersion {
		fmt.Printf("Version: %s\n", VERSION)
		os.Exit(0)
	}

	cfg, err := provider.NewJsonProvider(*cliArgs.ConfigFile)
	utils.PanicOnError(err)

	logCfg := log.NewDefaultConfig()
	utils.PanicOnError(loadKey(cfg, "log", logCfg))
	utils.PanicOnError(log.Configure(logCfg))
	defer log.CloseLogFiles()

	logger := log.New("walletguard")
	logger.Info("starting walletguard", log.KV{"version": VERSION})

	app := NewApplication(cfg, logger)
	app.Build()
	app.Run()
}
