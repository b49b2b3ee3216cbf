package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"github.com/vitos/crypto_dca_bot/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes read-only JSON status endpoints for the running engine.
type Server struct {
	router   *http.ServeMux
	server   *http.Server
	engine   *usecase.Engine
	fillRepo domain.FillRepository
	posRepo  domain.PositionRepository
	logger   *zap.Logger
}

func NewServer(
	port int,
	engine *usecase.Engine,
	fillRepo domain.FillRepository,
	posRepo domain.PositionRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		engine:   engine,
		fillRepo: fillRepo,
		posRepo:  posRepo,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /positions", s.handlePositions)
	s.router.HandleFunc("GET /history", s.handleHistory)
	s.router.HandleFunc("GET /fills/{pair}", s.handleFills)
}

func (s *Server) Start() error {
	s.logger.Info("Status server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
