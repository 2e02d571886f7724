package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"symptom-triage/internal/auth"
	"symptom-triage/internal/config"
	"symptom-triage/internal/core"
	"symptom-triage/internal/db"
	"symptom-triage/internal/hospital"
	httpserver "symptom-triage/internal/http"
	"symptom-triage/internal/llm"
)

func (a *app) cmdServe() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP API",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	pool, err := llm.NewPool(ctx, poolStore(ctx, cfg.Redis, log), cfg.Gemini.Keys(), log)
	if err != nil {
		return err
	}
	if pool.Size() == 0 {
		log.Warn("no api keys configured; set them with set-keys or PUT /api/keys")
	}
	backend := newBackend(cfg)
	gen := llm.NewRotatingClient(backend, pool, cfg.Gemini.RotationFactor, log)
	gateway := core.NewGateway(gen, log)
	summarizer := core.NewSummarizer(gateway, nil)

	var (
		sessions      core.SessionStore
		hospitalStore hospital.Store
		notifier      = db.NewNotifier(nil, "", cfg.Database.NotifyChannel, log)
	)
	if cfg.Database.URL != "" {
		conn, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx, conn); err != nil {
				return err
			}
		}
		repo := db.NewRepository(conn)
		sessions, hospitalStore = repo, repo
		notifier = db.NewNotifier(conn, cfg.Database.URL, cfg.Database.NotifyChannel, log)
	} else {
		log.Warn("database not configured, sessions kept in memory")
	}

	placesClient := newPlaces(cfg.Places, log)
	locator, err := hospital.NewLocator(hospitalStore, placesClient, log)
	if err != nil {
		return err
	}

	chat := core.NewChatService(sessions, gateway, summarizer,
		core.FlowConfig{
			MaxQuestions:        cfg.Flow.MaxQuestions,
			MaxDuplicateRetries: cfg.Flow.MaxDuplicateRetries,
		}, log,
		core.WithSaveDebounce(config.GetDuration(cfg.Flow.SaveDebounce)),
		core.WithHospitalFinder(locator),
		core.WithSavedHook(func(id string) {
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := notifier.Notify(nctx, id); err != nil {
				log.Warn("publish session saved", zap.String("session", id), zap.Error(err))
			}
		}),
	)

	handler := httpserver.New(chat,
		httpserver.WithLogger(log),
		httpserver.WithHospitals(locator),
		httpserver.WithGeocoder(placesClient),
		httpserver.WithKeyPool(pool),
		httpserver.WithEvents(notifier),
		httpserver.WithAuth(auth.NewVerifier(cfg.Auth.JWTSecret)),
		httpserver.WithAdmins(cfg.Auth.Admins),
		httpserver.WithStaticDir(cfg.Server.StaticDir),
		httpserver.WithCORS(cfg.Server.CORSOrigins),
		httpserver.WithSearchRadius(cfg.Places.SearchRadius),
		httpserver.WithSupabase(cfg.Supabase.URL != ""),
	)
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("address", srv.Addr), zap.String("backend", backend.Name()),
			zap.Int("api_keys", pool.Size()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return notifier.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
		defer cancel()
		err := srv.Shutdown(sctx)
		chat.Flush()
		log.Info("server stopped")
		return err
	})
	return g.Wait()
}
