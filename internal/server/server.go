package server

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"altitude/internal/cache"
	"altitude/internal/config"
	"altitude/internal/database"
	"altitude/internal/game"
	"altitude/internal/rates"
	"altitude/internal/wallet"
)

type FiberServer struct {
	*fiber.App

	conf      *config.Config
	db        database.Service
	cache     cache.Service
	hub       *game.Hub
	store     *game.RoundStore
	engine    *game.SettlementEngine
	scheduler *game.Scheduler
	wallet    wallet.Store
	generator game.Generator
}

func New() *FiberServer {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("[SERVER] Config: %v", err)
	}

	db := database.New()

	redisService := cache.New()

	hub := game.NewHub()
	store := game.NewRoundStore()

	// Balances live in Redis when available; the in-memory store keeps
	// a single-node deployment functional without it.
	var balances wallet.Store
	var oracle *rates.Oracle
	if redisService != nil {
		balances = wallet.NewRedisStore(redisService.GetClient())
		oracle = newOracle(conf, redisService)
	} else {
		log.Println("[SERVER] Redis unavailable, using in-memory balances")
		balances = wallet.NewMemoryStore()
		oracle = newOracle(conf, nil)
	}

	var ledger wallet.Ledger
	if l, ok := db.(wallet.Ledger); ok {
		ledger = l
	}

	engine := game.NewSettlementEngine(store, balances, ledger, oracle, hub, conf)
	scheduler := game.NewScheduler(store, hub, db, conf)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "altitude",
			AppName:       "altitude",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		conf:      conf,
		db:        db,
		cache:     redisService,
		hub:       hub,
		store:     store,
		engine:    engine,
		scheduler: scheduler,
		wallet:    balances,
		generator: game.Generator{HouseEdge: conf.Game.HouseEdge, MaxCrash: conf.Game.MaxCrash},
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	scheduler.Start()

	log.Println("[SERVER] Round scheduler started")

	return server
}

func newOracle(conf *config.Config, redisService cache.Service) *rates.Oracle {
	var source rates.Source
	if conf.Rates.SourceURL != "" {
		source = rates.NewHTTPSource(conf.Rates.SourceURL, conf.Rates.Timeout)
	}
	if redisService != nil {
		return rates.NewOracle(source, redisService.GetClient(), conf.Rates.CacheTTL)
	}
	return rates.NewOracle(source, nil, conf.Rates.CacheTTL)
}

// Port returns the configured listen port.
func (s *FiberServer) Port() int {
	return s.conf.Port
}

// Shutdown stops the scheduler and closes connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return s.App.Shutdown()
}
