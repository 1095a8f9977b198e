package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/buzzer"
	"github.com/wfunc/quizserver/config"
	"github.com/wfunc/quizserver/content"
	"github.com/wfunc/quizserver/events"
	"github.com/wfunc/quizserver/finalround"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/orchestrator"
	"github.com/wfunc/quizserver/persistence"
	"github.com/wfunc/quizserver/room"
	quiz_rpc "github.com/wfunc/quizserver/rpc"
	"github.com/wfunc/quizserver/rules"
	"github.com/wfunc/quizserver/server"
	"github.com/wfunc/quizserver/services"
	"github.com/wfunc/quizserver/session"
	"github.com/wfunc/quizserver/state"
)

func openStore(cfg config.DatabaseConfig) (persistence.StatsStore, error) {
	pg := cfg.Postgres
	dsn := persistence.DSN(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode)
	switch cfg.Driver {
	case "gorm":
		return persistence.NewGormPostgreSQL(dsn)
	case "postgres":
		return persistence.NewPostgreSQL(dsn)
	default:
		return persistence.NewMemoryStore(), nil
	}
}

func main() {
	logger.Init("info")

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	// Initialize Database
	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	logger.Log.Infof("Stats store ready (%s).", cfg.Database.Driver)
	players := services.NewPlayerService(store, cfg.Game.StatsTimeout)

	// Question packs
	packs, err := content.LoadDir(cfg.Content.PacksDir)
	if err != nil {
		logger.Log.Fatalf("Failed to load question packs: %v", err)
	}
	provider, err := content.NewProvider(packs, content.WithFeatured(cfg.Content.Featured...))
	if err != nil {
		logger.Log.Fatalf("Failed to index question packs: %v", err)
	}
	logger.Log.Infof("Loaded packs: %v", provider.Packs())

	mode := rules.MatchStrict
	if cfg.Game.LenientMatching {
		mode = rules.MatchLenient
	}
	clock := clockwork.NewRealClock()
	engine := state.NewEngine(clock, provider, state.WithMatchMode(mode))
	sessions := session.NewManager()
	metrics := monitor.NewMetrics("quiz")

	opts := []orchestrator.Option{
		orchestrator.WithConfig(orchestrator.Config{
			NoBuzzerRevealDelay: cfg.Game.NoBuzzerRevealDelay,
			IdleTimeout:         cfg.Game.IdleTimeout,
			SweepInterval:       cfg.Game.SweepInterval,
			StatsTimeout:        cfg.Game.StatsTimeout,
		}),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithConfigValidator(provider),
	}
	if cfg.NATS.URL != "" {
		ecfg := events.DefaultConfig()
		ecfg.URL = cfg.NATS.URL
		ecfg.StreamName = cfg.NATS.Stream
		ecfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		publisher, err := events.NewPublisher(ecfg)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer publisher.Close()
		opts = append(opts, orchestrator.WithPublisher(publisher))
	}

	orch := orchestrator.New(
		clock,
		room.NewDirectory(clock, room.WithGracePeriod(cfg.Game.GracePeriod)),
		engine,
		buzzer.NewArbiter(clock),
		finalround.NewCoordinator(clock, provider, engine.MatchMode()),
		broadcast.NewRoomBroadcaster(sessions),
		players,
		opts...,
	)

	rpcServer, err := quiz_rpc.NewServer(cfg.Server.RPCAddress, quiz_rpc.NewGameService(players, orch))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}

	gameServer := server.NewGameServer(server.Options{
		HTTPAddress:       cfg.Server.HTTPAddress,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		SendQueueSize:     cfg.Server.SendQueueSize,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		JoinURL:           cfg.Server.JoinURL,
	}, sessions, orch, players, metrics, rpcServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go orch.Run(ctx)

	// Start Server
	go func() {
		if err := gameServer.Start(); err != nil {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("HTTP shutdown: %v", err)
	}
	orch.Close()
}
