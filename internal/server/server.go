package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"go.uber.org/multierr"
)

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

type Option func(*Server)

// WithShutdownHook registers fn to run after the HTTP server has drained.
// Hooks run in registration order.
func WithShutdownHook(name string, fn func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.hooks = append(s.hooks, shutdownHook{name: name, fn: fn})
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

type Server struct {
	router          *http.ServeMux
	handler         http.Handler
	hooks           []shutdownHook
	shutdownTimeout time.Duration
	log             *logger.Logger
}

func NewServer(h *Handler, jwtSecret string, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		router:          http.NewServeMux(),
		shutdownTimeout: 10 * time.Second,
		log:             log.With("component", "server"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes(h)
	s.handler = LoggingMiddleware(s.log)(AuthMiddleware(jwtSecret, s.log)(s.router))

	return s
}

func (s *Server) setupRoutes(h *Handler) {
	s.router.HandleFunc("GET /ws/groups/{group_id}", h.handleWS)

	s.router.HandleFunc("POST /groups", h.handleCreateGroup)
	s.router.HandleFunc("GET /groups", h.handleGetUserGroups)
	s.router.HandleFunc("GET /groups/{group_id}", h.handleGetGroup)
	s.router.HandleFunc("DELETE /groups/{group_id}", h.handleDeleteGroup)
	s.router.HandleFunc("POST /groups/{group_id}/members", h.handleAddMember)
	s.router.HandleFunc("DELETE /groups/{group_id}/members/{user_id}", h.handleRemoveMember)
	s.router.HandleFunc("POST /groups/{group_id}/members/{user_id}/promote", h.handlePromoteMember)
	s.router.HandleFunc("POST /groups/{group_id}/members/{user_id}/demote", h.handleDemoteMember)
	s.router.HandleFunc("POST /groups/{group_id}/owner", h.handleTransferOwnership)
	s.router.HandleFunc("POST /groups/{group_id}/read", h.handleMarkRead)
	s.router.HandleFunc("PATCH /groups/{group_id}/mute", h.handleSetMuted)
	s.router.HandleFunc("GET /groups/{group_id}/online", h.handleGetOnlineUsers)

	s.router.HandleFunc("POST /groups/{group_id}/messages", h.handleSendMessage)
	s.router.HandleFunc("GET /groups/{group_id}/messages", h.handleGetGroupMessages)
	s.router.HandleFunc("GET /groups/{group_id}/messages/search", h.handleSearchMessages)
	s.router.HandleFunc("GET /messages/{message_id}", h.handleGetMessage)
	s.router.HandleFunc("PATCH /messages/{message_id}", h.handleEditMessage)
	s.router.HandleFunc("DELETE /messages/{message_id}", h.handleDeleteMessage)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until SIGINT/SIGTERM, then drains and runs the shutdown hooks.
func (s *Server) Run(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	s.log.Info("Server is running", "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	var err error
	select {
	case sig := <-quit:
		s.log.Info("Shutting down", "signal", sig.String())
	case err = <-serveErr:
		if err != nil {
			s.log.Error("Failed to serve", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if serr := server.Shutdown(ctx); serr != nil {
		err = multierr.Append(err, fmt.Errorf("http shutdown: %w", serr))
	}
	err = multierr.Append(err, s.runHooks(ctx))

	s.log.Info("Server exited")
	return err
}

func (s *Server) runHooks(ctx context.Context) error {
	var err error
	for _, hook := range s.hooks {
		if herr := hook.fn(ctx); herr != nil {
			s.log.Warn("Shutdown hook failed", "hook", hook.name, "error", herr)
			err = multierr.Append(err, fmt.Errorf("%s: %w", hook.name, herr))
			continue
		}
		s.log.Info("Shutdown hook done", "hook", hook.name)
	}
	return err
}
