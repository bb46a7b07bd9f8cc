package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dragoneye/internal/adapters/downloader"
	"dragoneye/internal/adapters/dragoneye"
	"dragoneye/internal/adapters/localstorage"
	"dragoneye/internal/config"
	"dragoneye/internal/core/domain"
	"dragoneye/internal/service"
)

const usage = `Usage: dragoneye-cli [-env <file>] <command> [flags]

Commands:
  predict-image     run an image prediction task to completion
  predict-video     run a video prediction task to completion
  submit            begin, upload and trigger a task without waiting
  wait              poll a submitted task until it is terminal
  status            print the current status of a task
  results           fetch and decode the results of a predicted task
  classify          classify one image synchronously
  classify-product  classify a product from several images
  parse-screenshot  detect UI elements in a screenshot

Run 'dragoneye-cli <command> -h' for command flags.
`

type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	client       *dragoneye.Client
	orchestrator *service.Orchestrator
	journal      *localstorage.LocalStorage
}

func main() {
	envFile := flag.String("env", "", "path to load env from")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(cfg.Level()).
		With().Timestamp().Logger()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize client")
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn().Msg("Received interrupt signal, cancelling...")
		cancel()
	}()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	client, err := dragoneye.NewClient(dragoneye.Options{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	journal := localstorage.NewLocalStorage(cfg.DataDir)
	orchestrator := service.NewOrchestrator(
		client,
		downloader.NewHTTPDownloader(cfg.HTTPTimeout),
		journal,
		cfg.PollInterval,
		logger,
	)
	return &app{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		orchestrator: orchestrator,
		journal:      journal,
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "predict-image":
		return a.predictImage(ctx, args)
	case "predict-video":
		return a.predictVideo(ctx, args)
	case "submit":
		return a.submit(ctx, args)
	case "wait":
		return a.wait(ctx, args)
	case "status":
		return a.status(ctx, args)
	case "results":
		return a.results(ctx, args)
	case "classify":
		return a.classify(ctx, args)
	case "classify-product":
		return a.classifyProduct(ctx, args)
	case "parse-screenshot":
		return a.parseScreenshot(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("%w: unknown command %q", domain.ErrUsage, command)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUsage):
		return 2
	case errors.Is(err, domain.ErrCancelled):
		return 130
	default:
		return 1
	}
}
