package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"baccarat/internal/cache"
	"baccarat/internal/database"
	"baccarat/internal/game"
)

type FiberServer struct {
	*fiber.App

	cfg       Config
	logger    *zap.Logger
	db        database.Service
	cache     cache.Service
	engine    *game.Engine
	hub       *game.Hub
	retention *cron.Cron
	cancel    context.CancelFunc
}

// New wires the table engine to its gateways and starts it. Redis and
// postgres are optional; without them the table runs with the websocket
// hub only.
func New(cfg Config, logger *zap.Logger) (*FiberServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	hub := game.NewHub(logger)
	gateways := game.Gateways{hub}

	redisService := cache.New(logger)
	if redisService != nil {
		mirror := cache.NewMirror(redisService.GetClient(), logger)
		gateways = append(gateways, mirror)
		go mirror.Run(ctx)
	}

	var opts []game.Option
	var db database.Service
	var retention *cron.Cron
	if cfg.ArchiveEnabled {
		var err error
		db, err = openArchive(cfg, logger)
		if err != nil {
			logger.Warn("round archive disabled", zap.Error(err))
			db = nil
		} else {
			archive := database.NewArchive(db, logger)
			go archive.Run(ctx)
			opts = append(opts, game.WithRecorder(archive))
			retention = database.StartRetention(db, cfg.Retention, logger)
		}
	}

	opts = append(opts, game.WithLogger(logger.Named("table")))
	engine := game.NewEngine(cfg.Table, gateways, opts...)

	s := newFiberServer(engine, hub, logger)
	s.cfg = cfg
	s.db = db
	s.cache = redisService
	s.retention = retention
	s.cancel = cancel

	go hub.Run()
	if err := engine.Start(); err != nil {
		cancel()
		return nil, err
	}
	logger.Info("table engine started",
		zap.Bool("mirror", redisService != nil),
		zap.Bool("archive", db != nil),
	)
	return s, nil
}

func openArchive(cfg Config, logger *zap.Logger) (database.Service, error) {
	db, err := database.New(logger)
	if err != nil {
		return nil, err
	}
	if health := db.Health(); health["status"] != "up" {
		db.Close()
		return nil, fmt.Errorf("%w: %s", database.ErrUnavailable, health["error"])
	}
	if cfg.AutoMigrate {
		if err := database.RunMigrations(db.DB(), cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// newFiberServer builds the fiber app around an engine and hub that the
// caller owns.
func newFiberServer(engine *game.Engine, hub *game.Hub, logger *zap.Logger) *FiberServer {
	s := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "baccarat",
			AppName:       "baccarat",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),
		logger: logger.Named("server"),
		engine: engine,
		hub:    hub,
	}

	s.App.Use(recover.New())
	s.App.Use(requestLogger(s.logger))
	s.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/ws"
		},
	}))
	return s
}

// Shutdown stops the table before closing connections so no round is
// settled against a half-closed gateway.
func (s *FiberServer) Shutdown() error {
	s.logger.Info("shutting down")

	s.engine.Stop()
	if s.retention != nil {
		<-s.retention.Stop().Done()
	}
	s.hub.Close()
	if s.cancel != nil {
		s.cancel()
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
