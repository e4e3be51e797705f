// Package embedserver exposes the in-process embedding kernels over HTTP so a
// sweep can run them out of process through the remote kernel.
package embedserver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/drsweep/internal/embedding"
)

const (
	HealthPath = "/health"

	DefaultHost      = "127.0.0.1"
	DefaultPort      = 8090
	DefaultBodyLimit = 64 * 1024 * 1024
)

type Config struct {
	Host      string
	Port      int
	BodyLimit int
}

type Server struct {
	App    *fiber.App
	config Config
}

type Health struct {
	Status  string   `json:"status"`
	Kernels []string `json:"kernels"`
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(ZstdMiddleware([]string{HealthPath}))

	app.Get(HealthPath, func(c *fiber.Ctx) error {
		return c.JSON(embedding.NewResponse(Health{Status: "ok", Kernels: []string{embedding.KernelMDS, embedding.KernelSMACOF}}, nil))
	})
	app.Post(embedding.EmbedPath, handleEmbed)

	return &Server{App: app, config: cfg}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Msg("request failed")

	return c.Status(code).JSON(embedding.NewResponse(map[string]any{}, err))
}

func handleEmbed(c *fiber.Ctx) error {
	var req embedding.EmbedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	kernel, err := embedding.Local(req.Kernel)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	distances, err := req.Matrix()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	start := time.Now()
	coords, err := kernel.Embed(c.UserContext(), req.Hyperparameters, distances)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, embedding.ErrInvalidInput) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(embedding.NewResponse(embedding.Coordinates{}, err))
	}

	log.Debug().
		Str("kernel", kernel.Name()).
		Int("points", req.Points).
		Dur("elapsed", time.Since(start)).
		Msg("embedding served")
	return c.JSON(embedding.NewResponse(embedding.NewCoordinates(coords), nil))
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	log.Info().Str("addr", s.Addr()).Msg("embedding service listening")
	return s.App.Listen(s.Addr())
}

func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
