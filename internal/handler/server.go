// Package handler implements the HTTP surface of the lifecycle engine.
// Handlers translate requests into engine commands and map the engine's
// sentinel errors onto status codes; they hold no business rules.
package handler

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"gearledger/internal/lifecycle"
)

// Server holds the dependencies shared by every handler.
type Server struct {
	engine   lifecycle.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer builds a Server around engine.
func NewServer(engine lifecycle.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		validate: newValidator(),
		logger:   logger,
	}
}
