package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"agent-arena/apps/server/internal/bout"
	"agent-arena/apps/server/internal/config"
	"agent-arena/apps/server/internal/gateway"
	"agent-arena/apps/server/internal/httpapi"
	"agent-arena/apps/server/internal/ledger"
	"agent-arena/apps/server/internal/lobby"
	"agent-arena/arena"
	"agent-arena/market"
	"agent-arena/roster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Server] Invalid configuration: %v", err)
	}

	ledgerService, ledgerMode, err := ledger.NewService(cfg.Ledger)
	if err != nil {
		log.Fatalf("[Server] Failed to init ledger service: %v", err)
	}
	defer ledgerService.Close()

	fighters := roster.NewDefaultRegistry()
	if cfg.RosterPath != "" {
		fighters = roster.NewRegistry()
		if err := fighters.LoadFromFile(cfg.RosterPath); err != nil {
			log.Fatalf("[Server] Failed to load roster %s: %v", cfg.RosterPath, err)
		}
	}

	feed := market.NewFeed(cfg.Seed)
	registry, err := arena.NewRegistry(arena.Config{
		Seed:         cfg.Seed,
		RetentionTTL: cfg.RetentionTTL,
		MaxRetained:  cfg.MaxRetained,
	}, arena.WithMarketFeed(feed))
	if err != nil {
		log.Fatalf("[Server] Failed to init battle registry: %v", err)
	}

	lby := lobby.New(registry, fighters, feed, ledgerService, bout.Config{
		Interval:  cfg.AutoplayInterval,
		MaxRounds: cfg.AutoplayMaxRounds,
	})
	gw := gateway.New(lby, cfg.AllowedOrigins)
	lby.SetPublisher(gw)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	httpapi.New(lby, func() any { return gw.Stats() }).RegisterRoutes(mux)
	ledger.NewHTTPHandler(ledgerService).RegisterRoutes(mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[Server] Ledger mode: %s", ledgerMode)
	log.Printf("[Server] Roster: %d fighters", fighters.Count())
	log.Printf("[Server] Starting arena server on %s", cfg.Addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("[Server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		lby.Close()
		gw.Close()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("[Server] %v", err)
	}
}
