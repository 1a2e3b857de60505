package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"calhub/internal/config"
	"calhub/internal/convert"
	"calhub/internal/ics"
	appLog "calhub/internal/log"
	"calhub/internal/repo"
	"calhub/internal/store"
	"calhub/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	jsonOut    bool
	fromStore  string
	serve      bool
	verbose    bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	// Feeds without a TZID are interpreted in the configured zone.
	if loc, err := time.LoadLocation(conf.Timezone); err == nil {
		time.Local = loc
	} else {
		appLog.Error("unknown timezone in config, keeping system zone", err, "timezone", conf.Timezone)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.fromStore != "" {
		if err := renderStoredSnapshot(flags.fromStore, conf.ProductID); err != nil {
			appLog.Error("failed to render stored snapshot", err, "path", flags.fromStore)
			os.Exit(1)
		}
		return
	}

	fetcher := ics.NewFetcher(conf.CacheDir)
	repository := repo.New(repoConfig(conf), fetcher.Fetch)

	if flags.serve {
		if err := serve(ctx, conf, repository); err != nil {
			appLog.Error("server failed", err, "listen", conf.Listen)
			os.Exit(1)
		}
		return
	}

	if err := runOnce(ctx, conf, repository, flags.jsonOut); err != nil {
		appLog.Error("aggregation failed", err)
		os.Exit(1)
	}
}

// runOnce aggregates all feeds once and writes the chosen output format
// to stdout.
func runOnce(ctx context.Context, conf *config.Config, repository *repo.Repository, jsonOut bool) error {
	if jsonOut {
		out, err := repository.Export(ctx)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	events, err := repository.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Print(ics.Generate(events, conf.ProductID))
	return nil
}

// renderStoredSnapshot re-renders a previously exported JSON snapshot
// file as an ICS document on stdout, without touching the network.
func renderStoredSnapshot(path, productID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	events, err := convert.ParseJSON(string(data))
	if err != nil {
		return err
	}
	fmt.Print(ics.Generate(events, productID))
	return nil
}

// serve runs the HTTP server with cron-driven refreshes until the
// context is canceled.
func serve(ctx context.Context, conf *config.Config, repository *repo.Repository) error {
	var db *store.DB
	if conf.StorePath != "" {
		var err error
		if db, err = store.Open(conf.StorePath); err != nil {
			return err
		}
		defer db.Close()
	}

	server := web.NewServer(conf, repository, db)

	if err := server.Refresh(ctx); err != nil {
		// First refresh failing is not fatal; the cron retries.
		appLog.Error("initial refresh failed", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := server.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	appLog.Info("serving", "listen", conf.Listen, "refresh", conf.RefreshCron)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// repoConfig maps the file configuration onto the repository's feed
// configuration.
func repoConfig(conf *config.Config) repo.Config {
	sources := make([]repo.GroupSource, 0, len(conf.Sources))
	for _, s := range conf.Sources {
		sources = append(sources, repo.GroupSource{Tag: s.Tag, URL: s.URL})
	}
	return repo.Config{
		Sources:      sources,
		GroupsURL:    conf.GroupsURL,
		Primary:      repo.GroupSource{Tag: conf.Primary.Tag, URL: conf.Primary.URL},
		OldEventsURL: conf.OldEventsURL,
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calhub/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.jsonOut, "json", false, "Print the JSON export instead of ICS")
	flag.StringVar(&cfg.fromStore, "from-store", "", "Render a stored JSON snapshot file as ICS and exit")
	flag.BoolVar(&cfg.serve, "serve", false, "Run the HTTP server with scheduled refreshes")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
