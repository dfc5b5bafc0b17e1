package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/achievements"
	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/catalog/aniliberty"
	"github.com/example/anime-tracker/internal/handlers"
	"github.com/example/anime-tracker/internal/history"
	"github.com/example/anime-tracker/internal/identity"
	"github.com/example/anime-tracker/internal/platform/auth"
	"github.com/example/anime-tracker/internal/platform/config"
	"github.com/example/anime-tracker/internal/platform/db"
	"github.com/example/anime-tracker/internal/platform/events"
	"github.com/example/anime-tracker/internal/platform/httpserver"
	"github.com/example/anime-tracker/internal/platform/logging"
	"github.com/example/anime-tracker/internal/platform/natsconn"
	"github.com/example/anime-tracker/internal/platform/run"
	"github.com/example/anime-tracker/internal/progress"
	"github.com/example/anime-tracker/internal/stats"
	"github.com/example/anime-tracker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Open(ctx)
	if err != nil {
		log.Error("open database", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	// Stores.
	titleStore := catalog.NewPostgresStore(pool)
	userStore := identity.NewPostgresStore(pool)
	progressRepo := progress.NewPostgresRepository(pool)
	historyRepo := history.NewPostgresRepository(pool)
	defStore := achievements.NewPostgresDefinitionStore(pool)
	ledgerStore := achievements.NewPostgresLedgerStore(pool)

	// Catalog read-through with upstream refresh.
	upstream := aniliberty.Source{Client: aniliberty.New(cfg.Upstream.AniLibertyBaseURL, cfg.Upstream.Timeout)}
	titles := catalog.NewCachedProvider(titleStore, upstream, 10*time.Minute, log)

	// Optional stats cache; nil degrades to direct computation.
	var cache *stats.Cache
	if cfg.RedisURL != "" {
		cache, err = stats.NewCache(cfg.RedisURL, 0, log)
		if err != nil {
			log.Warn("stats cache disabled", zap.Error(err))
			cache = nil
		}
	}

	// Optional NATS; nil publisher is a no-op stub.
	publisher := events.New(nil, log)
	nc, err := natsconn.Connect(natsconn.Options{Name: cfg.ServiceName})
	if err != nil {
		log.Warn("nats unavailable, events disabled", zap.Error(err))
	} else {
		defer nc.Close()
		if js, jsErr := nc.JetStream(); jsErr == nil {
			publisher = events.New(js, log)
		} else {
			log.Warn("jetstream unavailable, events disabled", zap.Error(jsErr))
		}
	}

	// Services.
	tracker := &progress.Tracker{
		Repo:      progressRepo,
		Titles:    titles,
		Recompute: titleStore,
		Cache:     cache,
		Events:    publisher,
		Log:       log,
	}
	histSvc := &history.Service{
		Repo:   historyRepo,
		Titles: titles,
		Cache:  cache,
		Events: publisher,
		Log:    log,
	}
	aggregator := &stats.Aggregator{
		Progress: progressRepo,
		History:  historyRepo,
		Titles:   titles,
		Social:   stats.NewPostgresSocialCounter(pool),
		Cache:    cache,
		Log:      log,
	}
	registry := achievements.NewRegistry()
	achievements.RegisterBuiltins(registry, userStore)
	evaluator := &achievements.Evaluator{
		Definitions: defStore,
		Ledger:      ledgerStore,
		Registry:    registry,
		Events:      publisher,
		Log:         log,
	}
	achSvc := &achievements.Service{
		Definitions: defStore,
		Ledger:      ledgerStore,
		Users:       userStore,
	}

	// Routes.
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("anime-tracker"))
	})

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	r.Get("/v1/titles", handlers.ListTitles(titleStore, log))
	r.Get("/v1/titles/search", handlers.SearchTitles(upstream, titleStore, log))
	r.Get("/v1/titles/{title_id}", handlers.GetTitle(titles, log))
	r.Get("/v1/titles/slug/{slug}", handlers.GetTitleBySlug(titleStore, log))
	r.Get("/v1/achievements/catalog", handlers.ListAchievementCatalog(achSvc, log))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))

		r.Put("/v1/watchlist/{title_id}", handlers.UpsertWatchProgress(tracker, log))
		r.Put("/v1/watchlist/{title_id}/rating", handlers.RateTitle(tracker, log))
		r.Get("/v1/watchlist", handlers.ListWatchList(tracker, log))
		r.Delete("/v1/watchlist/{title_id}", handlers.RemoveWatchProgress(tracker, log))

		r.Post("/v1/history/{title_id}/{episode_id}", handlers.RecordEpisode(histSvc, log))
		r.Post("/v1/history/{title_id}/{episode_id}/pause", handlers.RegisterPause(histSvc, log))
		r.Post("/v1/history/{title_id}/{episode_id}/seek", handlers.RegisterSeek(histSvc, log))
		r.Get("/v1/history", handlers.ListHistory(histSvc, log))
		r.Get("/v1/history/continue", handlers.ContinueWatching(histSvc, log))
		r.Get("/v1/history/recent", handlers.RecentHistory(histSvc, log))
		r.Delete("/v1/history", handlers.ClearHistory(histSvc, log))

		r.Get("/v1/stats", handlers.GetUserStats(aggregator, log))
		r.Get("/v1/stats/genres", handlers.GetTopGenres(aggregator))

		r.Post("/v1/achievements/check", handlers.CheckAchievements(aggregator, evaluator, log))
		r.Get("/v1/achievements", handlers.ListUserAchievements(achSvc, log))
		r.Get("/v1/achievements/recent", handlers.RecentUnlocks(achSvc, log))
		r.Get("/v1/achievements/progress", handlers.AchievementProgressByCategory(achSvc, log))
		r.Get("/v1/achievements/leaderboard", handlers.AchievementLeaderboard(achSvc, log))
		r.Patch("/v1/achievements/{achievement_id}/visibility", handlers.SetAchievementVisibility(achSvc, log))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/v1/admin/achievements", handlers.CreateAchievement(achSvc, log))
			r.Post("/v1/admin/catalog/refresh", handlers.RefreshCatalog(upstream, titleStore, log))
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			worker.StartStatsConsumer(ctx, nc, titleStore, titles, log)
		}
		worker.StartRetentionSweeper(ctx, historyRepo, cfg.HistoryRetention, 0, log)

		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
