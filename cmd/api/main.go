package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reposweep.org/internal/auth"
	"reposweep.org/internal/config"
	"reposweep.org/internal/github"
	"reposweep.org/internal/httpapi"
	"reposweep.org/internal/oauth"
	"reposweep.org/internal/obs"
	"reposweep.org/internal/ratelimit"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	codec, err := auth.NewCodec(cfg.SessionSecret)
	if err != nil {
		log.Fatalf("session codec: %v", err)
	}

	// Counter store: shared Postgres when a DSN is configured, otherwise
	// in-process counters for a single instance.
	var (
		rateStore  ratelimit.Store
		readyProbe httpapi.ReadyProbe
		pgStore    *ratelimit.PostgresStore
	)
	if cfg.RateLimitPGDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgStore, err = ratelimit.OpenPostgres(ctx, cfg.RateLimitPGDSN)
		cancel()
		if err != nil {
			log.Fatalf("rate limit store: %v", err)
		}
		rateStore = pgStore
		readyProbe = httpapi.ReadyProbe{Store: pgStore}
	} else {
		rateStore = ratelimit.NewMemoryStore()
	}

	flow := oauth.New(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.OAuthRedirectURL)

	api := httpapi.New(httpapi.Options{
		Codec: codec,
		Flow:  flow,
		NewRepoClient: func(token string) httpapi.RepoClient {
			return github.NewClient(token, github.WithBaseURL(cfg.GitHubAPIURL))
		},
		RateStore:    rateStore,
		ReadyProbe:   readyProbe,
		Production:   cfg.Production(),
		PublicOrigin: cfg.PublicOrigin,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting reposweep-api %s on %s", version, srv.Addr)

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
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
