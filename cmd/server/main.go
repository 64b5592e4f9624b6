package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"servicepulse/internal/config"
	"servicepulse/internal/events"
	"servicepulse/internal/handlers"
	"servicepulse/internal/models"
	"servicepulse/internal/scheduler"
	"servicepulse/internal/snapshot"
	"servicepulse/internal/store"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	godotenv.Load(".env")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Database: require DATABASE_URL and establish a pooled connection.
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL env var is required")
	}

	poolCfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("failed to parse db config: %v", err)
	}
	// PgBouncer in transaction-pooling mode rejects prepared statements.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx := context.Background()

	dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("failed to create db pool: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	st := store.NewPostgres(dbpool)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	if err := seedServices(ctx, st, cfg.Services); err != nil {
		log.Fatalf("failed to seed services: %v", err)
	}

	board := snapshot.NewBoard()
	if services, err := st.ListServices(ctx); err == nil {
		for _, svc := range services {
			board.Update(svc)
		}
	} else {
		log.Printf("[WARN] failed to preload snapshot: %v", err)
	}

	hub := events.NewHub()
	publishers := events.Multi{events.LogPublisher{}, hub}

	if cfg.Telegram.Enabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			log.Fatal("telegram enabled but TELEGRAM_BOT_TOKEN is missing")
		}
		tbot, err := bot.New(token)
		if err != nil {
			log.Fatalf("failed to create telegram bot: %v", err)
		}
		publishers = append(publishers, events.NewTelegramNotifier(tbot, cfg.Telegram.ChatID))
	}

	sched := scheduler.New(st, publishers, board, scheduler.Options{
		PollInterval:    cfg.Scheduler.PollIntervalDur,
		MaxConcurrent:   cfg.Scheduler.MaxConcurrent,
		ResultRetention: cfg.Scheduler.ResultRetentionDur,
	})
	sched.Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/ws", hub.ServeHTTP)
	r.Route("/api", handlers.New(st, sched, board).Routes)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] server shutdown: %v", err)
	}
}

// seedServices loads the config-file service list into an empty store so a
// fresh deployment has something to monitor. A non-empty store wins; the
// API is the source of truth after first boot.
func seedServices(ctx context.Context, st store.Store, seeds []config.SeedService) error {
	if len(seeds) == 0 {
		return nil
	}

	existing, err := st.ListServices(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, seed := range seeds {
		svc := &models.Service{
			ID:              uuid.New(),
			Name:            seed.Name,
			Type:            models.ServiceType(seed.Type),
			Target:          seed.Target,
			Config:          seed.Config,
			IntervalSeconds: seed.IntervalSeconds,
			TimeoutSeconds:  seed.TimeoutSeconds,
			Status:          models.StatusUnknown,
			IsActive:        true,
			Tags:            seed.Tags,
			GroupName:       seed.GroupName,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := st.SaveService(ctx, svc); err != nil {
			return err
		}
		log.Printf("seeded service %s (%s)", svc.Name, svc.Type)
	}
	return nil
}
