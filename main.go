package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avito-helper/config"
	"avito-helper/conversation"
	"avito-helper/db"
	"avito-helper/delivery"
	"avito-helper/fetcher"
	"avito-helper/models"
	"avito-helper/parser"
	"avito-helper/scheduler"
	"avito-helper/search"
	"avito-helper/telegram"
)

const (
	startupNotice  = "🚀 Service started successfully!"
	shutdownNotice = "Service is shutting down."
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "config.yaml", "Path to configuration file (YAML or TOML)")
	query := flag.String("query", "", "Search query (optional, if not provided, runs as Telegram bot)")
	maxPrice := flag.Int("max-price", 0, "Maximum price for -query")
	dumpPath := flag.String("dump", "", "Write the raw results page for -query to this file instead of searching")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *query != "" && *dumpPath != "":
		err = runDumpMode(ctx, cfg, *query, *dumpPath)
	case *query != "":
		err = runCLIMode(ctx, cfg, models.SearchRequest{Query: *query, MaxPrice: *maxPrice})
	default:
		err = runTelegramBot(ctx, cfg)
	}
	if err != nil {
		stop()
		fatal("exiting", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

// runCLIMode runs one search and prints the messages a chat would receive
func runCLIMode(ctx context.Context, cfg *config.Config, req models.SearchRequest) error {
	if err := cfg.ValidateSearch(); err != nil {
		return err
	}

	f, closeFetcher, err := newFetcher(cfg, fetcherOptions(cfg))
	if err != nil {
		return err
	}
	defer closeFetcher()

	p, err := parser.NewParser(cfg.Fetcher.BaseURL)
	if err != nil {
		return err
	}

	console := delivery.SenderFunc(func(_ context.Context, _ int64, text string) error {
		fmt.Println(text)
		fmt.Println("---")
		return nil
	})
	opts := deliveryOptions(cfg)
	opts.RatePerSec = 0

	svc := search.NewService(f, p, delivery.NewPipeline(console, opts), cfg.Search.MaxResults)
	return svc.Search(ctx, 0, req)
}

// runDumpMode saves the raw results page, waiting a random 2-5s first unless the config sets a warm-up
func runDumpMode(ctx context.Context, cfg *config.Config, query, path string) error {
	if err := cfg.ValidateSearch(); err != nil {
		return err
	}

	opts := fetcherOptions(cfg)
	if opts.WarmUp == 0 && opts.Jitter == 0 {
		opts.WarmUp = 2 * time.Second
		opts.Jitter = 3 * time.Second
	}

	f, closeFetcher, err := newFetcher(cfg, opts)
	if err != nil {
		return err
	}
	defer closeFetcher()

	html, err := f.Fetch(ctx, query)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	slog.Info("page saved", "path", path, "bytes", len(html))
	return nil
}

// runTelegramBot serves the dialog until a user sends stop or the process is signalled
func runTelegramBot(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tr, err := telegram.New(cfg.Telegram.Token)
	if err != nil {
		return err
	}

	f, closeFetcher, err := newFetcher(cfg, fetcherOptions(cfg))
	if err != nil {
		return err
	}
	defer closeFetcher()

	p, err := parser.NewParser(cfg.Fetcher.BaseURL)
	if err != nil {
		return err
	}

	pipeline := delivery.NewPipeline(tr, deliveryOptions(cfg))
	svc := search.NewService(f, p, pipeline, cfg.Search.MaxResults)

	machineOpts := []conversation.Option{conversation.WithCurrency(cfg.Search.Currency)}
	if cfg.Database.URL != "" || os.Getenv("DB_HOST") != "" {
		database, err := db.NewDB(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()
		slog.Info("database initialized")
		machineOpts = append(machineOpts, conversation.WithStore(database))
	}

	machine := conversation.NewMachine(delivery.SenderFunc(pipeline.SendWithRetry), svc, machineOpts...)
	if err := machine.Restore(ctx); err != nil {
		slog.Warn("failed to restore conversations", "err", err)
	}

	sched := scheduler.NewScheduler(machine, scheduler.DefaultQueueSize, scheduler.DefaultIdleTimeout)
	defer sched.Stop()

	notifyAdmin(ctx, tr, cfg.Telegram.ChatID, startupNotice)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-machine.Shutdown():
			slog.Info("stop requested from chat")
			cancel()
		case <-runCtx.Done():
		}
	}()

	slog.Info("bot started", "username", tr.Username())
	tr.Run(runCtx, sched)

	notifyCtx, cancelNotify := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelNotify()
	notifyAdmin(notifyCtx, tr, cfg.Telegram.ChatID, shutdownNotice)
	slog.Info("bot stopped")
	return nil
}

// notifyAdmin sends a one-off service notice to the configured chat, if any
func notifyAdmin(ctx context.Context, tr *telegram.Transport, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if err := tr.Send(ctx, chatID, text); err != nil {
		slog.Warn("failed to notify admin", "chat_id", chatID, "err", err)
	}
}

func newFetcher(cfg *config.Config, opts fetcher.Options) (fetcher.Fetcher, func(), error) {
	if cfg.Fetcher.Backend == "rod" {
		rf, err := fetcher.NewRodFetcher(opts)
		if err != nil {
			return nil, nil, err
		}
		return rf, func() {
			if err := rf.Close(); err != nil {
				slog.Warn("failed to close browser", "err", err)
			}
		}, nil
	}
	return fetcher.NewCollyFetcher(opts), func() {}, nil
}

func fetcherOptions(cfg *config.Config) fetcher.Options {
	return fetcher.Options{
		BaseURL:   cfg.Fetcher.BaseURL,
		Region:    cfg.Fetcher.Region,
		UserAgent: cfg.Fetcher.UserAgent,
		Accept:    cfg.Fetcher.Accept,
		WarmUp:    cfg.Fetcher.WarmUp,
		Jitter:    cfg.Fetcher.Jitter,
		Timeout:   cfg.Fetcher.Timeout,
	}
}

func deliveryOptions(cfg *config.Config) delivery.Options {
	return delivery.Options{
		RetryDelay:  cfg.Delivery.RetryDelay,
		MaxAttempts: cfg.Delivery.MaxAttempts,
		MaxDelay:    cfg.Delivery.MaxDelay,
		RatePerSec:  cfg.Delivery.RatePerSec,
		Currency:    cfg.Search.Currency,
	}
}
