package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dukapos/backend/internal/config"
	"dukapos/backend/internal/engine"
	"dukapos/backend/internal/httpapi"
	localmem "dukapos/backend/internal/localstore/memory"
	"dukapos/backend/internal/remote"
	remotemem "dukapos/backend/internal/remote/memory"
	remotepg "dukapos/backend/internal/remote/postgres"
	"dukapos/backend/internal/state"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var remoteClient remote.Client
	if cfg.RemoteDatabaseURL != "" {
		pg, err := remotepg.New(ctx, cfg.RemoteDatabaseURL)
		if err != nil {
			logger.Fatal("remote postgres unavailable and REMOTE_DATABASE_URL is set; refusing to start with in-memory fallback: ", err)
		}
		remoteClient = pg
		closers = append(closers, pg.Close)
		logger.Info("remote store: postgres")
	} else {
		remoteClient = remotemem.New()
		logger.Info("remote store: in-memory")
	}

	stateStore := state.Store(state.NoopStore{})
	if cfg.RedisAddr != "" {
		redisState := state.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisState.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, sync state will not survive restarts: ", err)
		} else {
			stateStore = redisState
			closers = append(closers, redisState.Close)
			logger.Info("sync state: redis")
		}
	} else {
		logger.Info("sync state: noop")
	}

	local := localmem.NewSeeded()

	retryCfg := engine.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries

	eng := engine.New(engine.Options{
		Local:        local,
		Remote:       remoteClient,
		State:        stateStore,
		Logger:       logger,
		TerminalID:   cfg.TerminalID,
		Retry:        retryCfg,
		ProbeTimeout: time.Duration(cfg.ProbeTimeoutSeconds) * time.Second,
		PollInterval: time.Duration(cfg.StatusPollSeconds) * time.Second,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, local)
	api := httpapi.New(eng, auth, logger, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	go eng.Publisher().Start(runCtx)

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.SyncIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				result := eng.SyncAll(runCtx)
				if !result.Success {
					logger.Warn("periodic sync finished with errors: ", result.Errors)
				}
			}
		}
	}()

	go func() {
		logger.Info("sync daemon listening on ", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error: ", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error: ", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error: ", err)
		}
	}

	logger.Info("sync daemon stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
