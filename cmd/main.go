package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/chenyuyou/shifting-work-hours/internal/config"
	"github.com/chenyuyou/shifting-work-hours/internal/pipeline"
	"github.com/chenyuyou/shifting-work-hours/pkg/log"
)

func main() {
	var (
		stageFlag   = flag.String("stage", "", "comma-separated stages to run (default: all)")
		configFlag  = flag.String("config", "", "optional YAML config file overriding the environment")
		cronFlag    = flag.Bool("cron", false, "keep running on the configured cron schedule")
		rebuildFlag = flag.Bool("rebuild-ledger", false, "reconcile the download ledger with files on disk, then exit")
	)
	flag.Parse()

	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	var opts []config.Option
	if *configFlag != "" {
		opts = append(opts, config.WithFile(*configFlag))
	}
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Error("configuration: %v", err)
		os.Exit(pipeline.ExitFatal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		log.Error("setup: %v", err)
		os.Exit(pipeline.ExitFatal)
	}

	if *rebuildFlag {
		if err := p.RebuildLedger(ctx); err != nil {
			log.Error("rebuild ledger: %v", err)
			os.Exit(pipeline.ExitFatal)
		}
		return
	}

	if *cronFlag {
		expr := cfg.Schedule.CronExpr
		if expr == "" {
			log.Error("cron mode needs CRON_EXPR")
			os.Exit(pipeline.ExitFatal)
		}
		engine := cron.New(cron.WithSeconds())
		if err := pipeline.NewScheduler(p, expr, engine).Schedule(ctx); err != nil {
			log.Error("schedule: %v", err)
			os.Exit(pipeline.ExitFatal)
		}
		engine.Start()
		<-ctx.Done()
		<-engine.Stop().Done()
		return
	}

	var selected []string
	if *stageFlag != "" {
		for _, name := range strings.Split(*stageFlag, ",") {
			selected = append(selected, strings.TrimSpace(name))
		}
	}

	outcome, err := p.Run(ctx, selected)
	if err != nil {
		log.Error("run failed: %v", err)
		os.Exit(pipeline.ExitFatal)
	}
	os.Exit(outcome.ExitCode())
}
