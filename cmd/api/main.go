package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"costscope.io/internal/auth"
	"costscope.io/internal/config"
	"costscope.io/internal/httpapi"
	"costscope.io/internal/obs"
	"costscope.io/internal/revocation"
	"costscope.io/internal/scope"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GIT_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if db == nil {
		log.Fatal("PG_DSN is required")
	}

	// Revocation backend: redis in any real deployment, in-memory only when
	// no address is configured.
	var (
		redisKV *revocation.RedisKV
		kv      revocation.KV
		probe   = httpapi.ReadyProbe{DB: db}
	)
	if cfg.RedisAddr != "" {
		redisKV, err = revocation.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		kv = redisKV
		probe.Redis = redisKV
	} else {
		if cfg.Production() {
			log.Fatal("REDIS_ADDR is required in production")
		}
		log.Print("REDIS_ADDR not set, using in-memory revocation store")
		kv = revocation.NewMemoryKV(nil)
	}
	revocations := revocation.NewStore(kv,
		revocation.WithFailClosedHook(obs.RevocationFailClosed))

	tokens, err := auth.NewAuthenticator(cfg.AuthSecret, cfg.AuthIssuer, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}
	authSvc, err := auth.NewService(auth.NewPGUserStore(db), tokens, revocations)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	scopes := scope.NewResolver(scope.NewPGStore(db),
		scope.WithOutcomeHook(obs.ScopeResolved))
	permissions := auth.NewPermissionResolver(auth.NewPGRoleStore(db))

	api, err := httpapi.New(httpapi.Config{
		Auth:        authSvc,
		Revocations: revocations,
		Scopes:      scopes,
		Permissions: permissions,
		ReadyProbe:  probe,
		Version:     version,
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting costscope-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	if redisKV != nil {
		_ = redisKV.Close()
	}
	log.Println("Stopped")
}
