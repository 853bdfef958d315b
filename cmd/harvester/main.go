package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/samvad-hq/samvad-quote-harvester/internal/app"
	"github.com/samvad-hq/samvad-quote-harvester/internal/config"
	"github.com/samvad-hq/samvad-quote-harvester/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "harvester start failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("harvester", pflag.ContinueOnError)
	once := flags.Bool("once", false, "run a single harvest pass and exit")
	envFile := flags.String("env-file", "configs/.env", "dotenv file loaded before the environment")
	sourcesFile := flags.String("sources", "", "sources registry file (overrides SOURCES_FILE)")
	publishersFile := flags.String("publishers", "", "publishers registry file (overrides PUBLISHERS_FILE)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.Changed("sources") {
		cfg.SourcesFile = *sourcesFile
	}
	if flags.Changed("publishers") {
		cfg.PublishersFile = *publishersFile
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.NewHarvester(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err.Error())
		return err
	}

	if *once {
		summary, err := harvester.RunOnce(ctx)
		logger.InfoObj("harvest pass finished", "summary", summary)
		if err != nil {
			return fmt.Errorf("harvester pass: %w", err)
		}
		return nil
	}

	if err := harvester.Run(ctx); err != nil {
		return fmt.Errorf("harvester run: %w", err)
	}

	return nil
}
