package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prdeck/prdeck/config"
	"github.com/prdeck/prdeck/internal/github"
	"github.com/prdeck/prdeck/internal/httpapi"
	"github.com/prdeck/prdeck/internal/poller"
	"github.com/prdeck/prdeck/internal/service"
	"github.com/prdeck/prdeck/internal/slack"
	"github.com/prdeck/prdeck/internal/source"
	"github.com/prdeck/prdeck/internal/store"
	"github.com/prdeck/prdeck/pkg/logger"
)

// ServeCommand runs the sync engine and the local API.
type ServeCommand struct{}

func (c *ServeCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and local API",
		Long: `Start the background poll loop, the durable state store, and the
HTTP API the other prdeck commands talk to. Runs until interrupted.`,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.Run(cobraCmd.Context())
		},
	}
	parent.AddCommand(command)
}

func (c *ServeCommand) Run(ctx context.Context) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backend, err := store.BuildBackendFromDSN(cfg.Poll.StateDSN)
	if err != nil {
		return fmt.Errorf("state backend: %w", err)
	}
	st := store.New(store.Options{Backend: backend, Logger: log})
	defer func() { _ = st.Close() }()

	svc := service.New(service.Options{Store: st, Logger: log})

	seeds, err := config.LoadSources(cfg.Poll.SourcesFile)
	if err != nil {
		return err
	}
	if len(seeds) > 0 {
		if err := svc.SeedSources(seeds); err != nil {
			return fmt.Errorf("seed sources: %w", err)
		}
	}

	gh := github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.Token, nil)
	adapters := []source.Adapter{source.NewQueryAdapter(gh)}
	if cfg.Slack.Token != "" {
		sl := slack.NewClient(cfg.Slack.BaseURL, cfg.Slack.Token, nil)
		adapters = append(adapters, source.NewChannelAdapter(sl, gh, log))
	} else {
		log.Infow("slack token not configured, channel sources disabled")
	}

	p := poller.New(poller.Options{
		Store:             st,
		Adapters:          source.NewRegistry(adapters...),
		Status:            gh,
		Logger:            log,
		Interval:          cfg.Poll.Interval,
		StatusConcurrency: cfg.Poll.StatusConcurrency,
		OnState:           svc.PublishState,
		OnSoftErrors:      svc.PublishSoftErrors,
	})
	svc.AttachPoller(p)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go p.Run(runCtx)

	if path := stateFilePath(cfg.Poll.StateDSN); path != "" {
		go func() {
			if err := svc.WatchStateFile(runCtx, path); err != nil {
				log.Warnw("state file watcher stopped", "error", err)
			}
		}()
	}

	api := httpapi.NewServer(svc, log)
	server := &http.Server{Addr: cfg.ServerAddr(), Handler: api}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("api listening", "addr", cfg.ServerAddr())
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Infow("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// stateFilePath returns the local file behind a file DSN, or "" when the
// backend is not file-based and there is nothing to watch.
func stateFilePath(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") && !strings.Contains(trimmed, ":") {
		return trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme != "file" {
		return ""
	}
	if parsed.Opaque != "" {
		return parsed.Opaque
	}
	return parsed.Host + parsed.Path
}
