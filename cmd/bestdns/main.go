package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/xid"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bestdns/bestdns/internal/config"
	"github.com/bestdns/bestdns/internal/controller"
	"github.com/bestdns/bestdns/internal/dns"
	_ "github.com/bestdns/bestdns/internal/dns/providers"
	"github.com/bestdns/bestdns/internal/iplist"
	"github.com/bestdns/bestdns/internal/metrics"
)

var Version = "dev"

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "config file (default $BESTDNS_CONFIG or "+config.DefaultPath+")")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config; ignored when absent")

	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if err := run(ctrl.SetupSignalHandler(), os.Stdout, configPath, envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run performs one sync and writes the report to out. The report is written
// even when a target fails part way.
func run(ctx context.Context, out io.Writer, configPath, envFile string) error {
	base := ctrl.Log.WithValues("run", xid.New().String())
	log := base.WithName("setup")

	log.Info("starting bestdns", "version", Version)

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to load env file: %w", err)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	log.Info("loaded config", "provider", cfg.Provider, "targets", len(cfg.Targets))

	dnsProvider, err := dns.NewProvider(cfg.Provider, base.WithName("dns-"+cfg.Provider), cfg.Settings)
	if err != nil {
		return fmt.Errorf("unable to create DNS provider: %w", err)
	}

	recorder := metrics.NewRecorder()
	reconciler := &controller.Reconciler{
		Log:            base.WithName("reconciler"),
		DNS:            dnsProvider,
		Fetcher:        iplist.NewFetcher(base.WithName("iplist"), cfg.FetchTimeout),
		Targets:        cfg.Targets,
		PurgeMaxRounds: cfg.PurgeMaxRounds,
		Metrics:        recorder,
	}

	report, runErr := reconciler.Run(ctx)
	if report != nil {
		fmt.Fprint(out, controller.FormatReport(report))
	}

	if url := cfg.Metrics.PushgatewayURL; url != "" {
		// A cancelled run still reports what it did.
		if err := recorder.Push(context.WithoutCancel(ctx), url, cfg.Metrics.Job); err != nil {
			log.Error(err, "unable to push metrics")
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Info("run complete")
	return nil
}
