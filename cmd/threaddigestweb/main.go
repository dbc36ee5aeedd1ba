package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnqtcg/threaddigest/internal/cli"
	"github.com/johnqtcg/threaddigest/internal/config"
	"github.com/johnqtcg/threaddigest/internal/converter"
	"github.com/johnqtcg/threaddigest/internal/history"
	"github.com/johnqtcg/threaddigest/internal/logger"
	"github.com/johnqtcg/threaddigest/internal/parser"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.ResolveExitCode(err, false, 0))
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "threaddigestweb"})
	log := logger.Named("web")

	fetcher, err := cli.NewSourceFetcher(cfg, log)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	deps := webDeps{
		parser:      parser.New(),
		fetcher:     fetcher,
		renderer:    converter.NewRenderer(nil),
		store:       history.NewMemoryStore(cfg.History.TTL),
		baseURL:     cfg.Web.BaseURL,
		corsOrigins: cfg.Web.CORSOrigins,
		log:         log,
	}
	if engine := cli.NewAnalysisEngine(cfg, log); engine != nil {
		deps.renderer = converter.NewRenderer(engine)
		deps.streamer = engine
	}

	server := &http.Server{
		Addr:              cfg.Web.Addr,
		Handler:           newWebHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Strs("sources", sourceNames(fetcher.Sources())).Msg("threaddigest web listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		log.Info().Msg("threaddigest web stopped")
		return nil
	})
	return g.Wait()
}

func sourceNames(sources []thread.Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}
	return names
}
