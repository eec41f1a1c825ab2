package server

import (
	"backend-parklookup/internal/auth"
	"backend-parklookup/internal/backup"
	"backend-parklookup/internal/config"
	"backend-parklookup/internal/db"
	"backend-parklookup/internal/remote"
	"backend-parklookup/internal/stream"
	"backend-parklookup/internal/track"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	Engine *track.Engine
	Stream *stream.Hub
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) (*Server, error) {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)

	var querier db.Querier
	if pg != nil {
		querier = pg
	}
	store, err := backup.New(cfg, querier, redisClient)
	if err != nil {
		return nil, err
	}

	client := remote.New(cfg.RemoteAPIURL, cfg.RemoteAPIToken, cfg.UploadRetries)
	engine := track.NewEngine(store, client, hub, track.Options{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval(),
		StopTimeout:   cfg.StopTimeout(),
	})

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Engine: engine,
		Stream: hub,
	}

	registerRoutes(s)
	return s, nil
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	track.RegisterRoutes(s.App.Group("/track"), s.Engine, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
