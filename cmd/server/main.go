package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thrumwood/thrumwood/internal/command"
	"github.com/thrumwood/thrumwood/internal/config"
	"github.com/thrumwood/thrumwood/internal/cycle"
	"github.com/thrumwood/thrumwood/internal/database"
	"github.com/thrumwood/thrumwood/internal/database/memory"
	"github.com/thrumwood/thrumwood/internal/database/postgres"
	"github.com/thrumwood/thrumwood/internal/database/schema"
	"github.com/thrumwood/thrumwood/internal/event"
	"github.com/thrumwood/thrumwood/internal/formula"
	"github.com/thrumwood/thrumwood/internal/handler"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/presence"
	"github.com/thrumwood/thrumwood/internal/repository"
	"github.com/thrumwood/thrumwood/internal/scheduler"
	"github.com/thrumwood/thrumwood/internal/server"
	"github.com/thrumwood/thrumwood/internal/session"
	"github.com/thrumwood/thrumwood/internal/world"
	"github.com/thrumwood/thrumwood/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCfg := logger.ProductionConfig()
	if cfg.DevMode {
		logCfg = logger.DevelopmentConfig()
	}
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logger.Init(logCfg)

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		nodes    repository.NodeStore
		players  repository.PlayerStore
		invStore repository.InventoryStore
		dbPool   database.Pool
	)

	if cfg.DevMode {
		slog.Info("Dev mode: using in-memory stores")
		store := memory.NewStore()
		nodes, players, invStore = store, store, store
		dbPool = handler.NopPool()
	} else {
		pool, err := database.NewPool(cfg.GetDBConnString())
		if err != nil {
			return err
		}
		defer pool.Close()

		if _, err := pool.Exec(ctx, schema.SchemaSQL); err != nil {
			return err
		}

		nodeRepo, err := postgres.NewNodeRepository(pool)
		if err != nil {
			return err
		}
		nodes = nodeRepo
		players = postgres.NewPlayerRepository(pool)
		invStore = postgres.NewInventoryRepository(pool)
		dbPool = pool
	}

	formulas, err := formula.LoadRegistry(cfg.FormulasFile)
	if err != nil {
		return err
	}

	w, err := world.Load(cfg.WorldFile)
	if err != nil {
		return err
	}
	if err := w.Seed(ctx, nodes); err != nil {
		return err
	}

	bus := event.NewMemoryBus()

	// The gateway needs room occupancy and the hub needs the gateway, so
	// occupancy binds late through the closure.
	var hub *presence.Hub
	gateway := inventory.NewGateway(invStore, inventory.OccupantsFunc(func(roomID string) []string {
		if hub == nil {
			return nil
		}
		return hub.RoomOccupants(roomID)
	}), bus, cfg.PackCapacity)

	sessions := session.NewManager(nodes, players, gateway, formulas, bus)
	sweeper := cycle.NewSweeper(nodes, players, gateway, formulas, sessions, bus)

	hub = presence.NewHub(players, nodes, gateway, sessions, formulas, w, cfg.MoveCooldown)
	hub.BindBus(bus)

	dispatcher := command.NewDispatcher(hub, sessions, gateway, players)
	game := presence.NewHandler(hub, players, w, dispatcher)

	pool := worker.NewPool(4, 64)
	pool.Start()
	defer pool.Stop()

	sched := scheduler.New(pool)
	sched.Schedule("cycle-sweep", cfg.SweepInterval, sweeper)
	sched.Schedule("presence-refresh", cfg.RefreshInterval, hub)
	defer sched.Stop()

	srv := server.NewServer(cfg.Port, cfg.AdminKey, cfg.TrustedProxies, server.Deps{
		DBPool:    dbPool,
		Players:   players,
		Nodes:     nodes,
		Inventory: gateway,
		World:     w,
		Game:      game,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	return nil
}
