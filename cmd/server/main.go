package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicelink/internal/adapters/gateway"
	router "github.com/dkeye/voicelink/internal/adapters/http"
	"github.com/dkeye/voicelink/internal/call"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/engine"
	"github.com/dkeye/voicelink/internal/manager"
	"github.com/dkeye/voicelink/internal/taskstat"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var opts []manager.Option
	if cfg.EngineEnabled {
		engCfg := engine.DefaultConfig()
		if len(cfg.ICEServers) > 0 {
			engCfg.ICEServers = cfg.ICEServers
		}
		opts = append(opts, manager.WithEngineFactory(func() call.ConnectionEngine {
			return engine.New(engCfg)
		}))
	}

	// The shard's receive loop feeds the manager, and the manager sends
	// through the shard, so the channel is bound after the dial.
	// Without a gateway URL the manager runs standalone: state changes
	// stay local.
	m := manager.New(domain.UserID(cfg.UserID), nil, opts...)
	if cfg.GatewayURL != "" {
		shard, err := gateway.Dial(ctx, cfg.GatewayURL, m)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.GatewayURL).Msg("gateway dial failed")
		}
		defer shard.Close()
		m.Bind(shard)
	} else {
		log.Warn().Msg("no gateway_url configured, running standalone")
	}

	r := router.SetupRouter(ctx, cfg, m)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voicelink control plane started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	if cfg.Mode == "debug" {
		go dumpStats(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// dumpStats prints the task counters periodically while debugging.
func dumpStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			taskstat.Print()
		}
	}
}
