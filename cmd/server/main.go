// Package main is the entry point for the trading room game server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trading-room-game/internal/config"
	"trading-room-game/internal/events"
	"trading-room-game/internal/game"
	"trading-room-game/internal/model"
	"trading-room-game/internal/pkg/db"
	"trading-room-game/internal/repository"
	"trading-room-game/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Str("store_driver", cfg.Store.Driver).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Select the room store backend. Without a durable backend configured
	// rooms live in process memory and do not survive a restart.
	var store repository.RoomStore
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, &cfg.Store.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()

		if err := repository.MigrateRooms(ctx, pool.Pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		store = repository.NewPostgresStore(pool.Pool)

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.Mongo.URI))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("MongoDB disconnect failed")
			}
		}()

		if err := client.Ping(ctx, nil); err != nil {
			log.Fatal().Err(err).Msg("Failed to ping MongoDB")
		}
		store = repository.NewMongoStore(client, cfg.Store.Mongo.Database)

	case config.DriverMemory:
		store = repository.NewMemoryStore()

	default:
		log.Fatal().Str("driver", cfg.Store.Driver).Msg("Unknown store driver")
	}

	// Initialize engine and event bus
	engine := game.NewEngine(game.Config{HouseFeeRate: cfg.Game.HouseFeeRate}, nil)

	bus := events.NewBus()
	bus.OnRoomUpdated(func(room *model.Room) {
		log.Debug().
			Str("room_id", room.ID).
			Str("status", string(room.Status)).
			Int("round", room.RoundNumber).
			Msg("room updated")
	})
	bus.OnRoomRemoved(func(roomID string) {
		log.Debug().Str("room_id", roomID).Msg("room removed")
	})

	// Initialize room service
	svc := service.New(store, engine, bus, service.Config{
		TradingWindow:  cfg.Game.TradingWindow,
		NextRoundDelay: cfg.Game.NextRoundDelay,
		BotTradeDelay:  cfg.Game.BotTradeDelay,
		InitialBalance: cfg.Game.InitialBalance,
		ListLimit:      cfg.Game.ListLimit,
	}, log.Logger)

	// Re-arm settlement timers for rounds left in flight by a crash
	if err := svc.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover in-flight rounds")
	}

	log.Info().Msg("Room service is running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	svc.Close()
	log.Info().Msg("Room service stopped gracefully")
}
