package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/memogarden/memogarden-core/internal/auth"
	"github.com/memogarden/memogarden-core/internal/config"
	"github.com/memogarden/memogarden-core/internal/httpapi"
	"github.com/memogarden/memogarden-core/internal/migrate"
	"github.com/memogarden/memogarden-core/internal/obs"
	"github.com/memogarden/memogarden-core/internal/store"
)

var version = "0.1.0"

func main() {
	migrateOnBoot := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("BUILD_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	if *migrateOnBoot {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		mgr := migrate.NewManager(st.DB(), cfg.MigrationsDir, "")
		err := mgr.Up(ctx)
		cancel()
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
	}

	svc := auth.NewService(st, auth.WithBcryptCost(cfg.BcryptCost))
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	api := httpapi.New(st, svc, tokens, cfg, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting memogarden-core %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
