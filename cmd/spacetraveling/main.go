package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/dgallion1/spacetraveling/internal/cms"
	"github.com/dgallion1/spacetraveling/internal/config"
	"github.com/dgallion1/spacetraveling/internal/export"
	"github.com/dgallion1/spacetraveling/internal/localcms"
	"github.com/dgallion1/spacetraveling/internal/pagecache"
	"github.com/dgallion1/spacetraveling/internal/readingtime"
	"github.com/dgallion1/spacetraveling/internal/richtext"
	"github.com/dgallion1/spacetraveling/internal/session"
	"github.com/dgallion1/spacetraveling/internal/site"
	"github.com/dgallion1/spacetraveling/internal/web"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "spacetraveling",
		Usage: "blog front end for a headless CMS",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the blog over HTTP",
				Action: serveAction,
			},
			{
				Name:  "export",
				Usage: "render every page to static HTML",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Value:   "public",
						Usage:   "output directory",
					},
				},
				Action: exportAction,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// blog holds the collaborators shared by every command.
type blog struct {
	cfg      config.Config
	log      *slog.Logger
	builder  *site.Builder
	stats    *cms.Stats
	uploader web.Uploader
	close    func()
}

func setup() (*blog, error) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	metric, err := readingtime.ParseMetric(cfg.ReadingTimeMetric)
	if err != nil {
		return nil, err
	}

	b := &blog{cfg: cfg, log: log, close: func() {}}
	var src site.Source
	if cfg.UsesLocalContent() {
		local, err := localcms.New(cfg.ContentDir, log)
		if err != nil {
			return nil, fmt.Errorf("open content dir: %w", err)
		}
		src, b.uploader = local, local
		log.Info("using local content", "dir", cfg.ContentDir)
	} else {
		client, err := cms.NewClient(cfg.CMSAPIURL, cfg.CMSAccessToken)
		if err != nil {
			return nil, err
		}
		src, b.stats = client, client.Stats
		b.close = client.Close
		log.Info("using headless cms", "url", cfg.CMSAPIURL)
	}

	// Both sources deliver literal block text.
	est := readingtime.New(richtext.Plain{})
	est.Metric = metric
	est.WordsPerMinute = cfg.ReadingWPM

	b.builder = site.NewBuilder(src, est, site.BuilderOptions{
		HomePageSize:      cfg.HomePageSize,
		SidePostsPageSize: cfg.SidePostsPageSize,
		Location:          loc,
	})
	return b, nil
}

func serveAction(c *cli.Context) error {
	b, err := setup()
	if err != nil {
		return err
	}
	defer b.close()
	log, cfg := b.log, b.cfg

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	var store pagecache.Store = pagecache.NewMemoryStore()
	if cfg.CacheDBPath != "" {
		sqlite, err := pagecache.OpenSQLite(cfg.CacheDBPath)
		if err != nil {
			return fmt.Errorf("open page cache: %w", err)
		}
		store = sqlite
		log.Info("using sqlite page cache", "path", cfg.CacheDBPath)
	}
	defer store.Close()
	cache := pagecache.New(store, cfg.Revalidate, log)

	sessions := session.NewStore(cfg.SessionTTL)
	go sessions.Run(ctx, time.Minute)

	srv := web.NewServer(web.Deps{
		Builder:  b.builder,
		Cache:    cache,
		Sessions: sessions,
		Stats:    b.stats,
		Uploader: b.uploader,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	log.Info("starting spacetraveling", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	cache.Wait()
	return nil
}

func exportAction(c *cli.Context) error {
	b, err := setup()
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exp := export.New(b.builder, web.NewRenderer(b.cfg), b.log, b.cfg.ExportWorkers)
	m, err := exp.Run(ctx, c.String("out"))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	b.log.Info("site exported", "out", c.String("out"), "pages", len(m.Paths))
	return nil
}
