package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/usecase"
	"github.com/devricklin/inboxsync/internal/log"
	"github.com/devricklin/inboxsync/internal/server"
)

const (
	maxSignalBytes = 1 << 20

	// per client IP, per minute
	intakeRateLimit = 120
)

// Inbox is the facade surface served over HTTP
type Inbox interface {
	server.Intake
	Snapshot() (domain.Snapshot, error)
	Subscribe() (*usecase.Subscription, error)
	Refresh(ctx context.Context) error
	Open(ctx context.Context, id string) (*domain.Notification, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Server provides the local HTTP API over the inbox
type Server struct {
	inbox     Inbox
	parser    *server.SignalParser
	presenter server.Presenter
	logger    *log.Logger

	server *http.Server
	port   int
}

// BadgeResponse is the badge endpoint payload
type BadgeResponse struct {
	Badge int `json:"badge"`
}

// ErrorResponse is the error payload
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewServer creates a new API server. presenter may be nil.
func NewServer(inbox Inbox, parser *server.SignalParser, presenter server.Presenter, port int, logger *log.Logger) *Server {
	return &Server{
		inbox:     inbox,
		parser:    parser,
		presenter: presenter,
		logger:    log.OrNop(logger).Named("api"),
		port:      port,
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/inbox", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Delete("/", s.handleClear)
		r.Get("/badge", s.handleBadge)
		r.Get("/stream", s.handleStream)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/read-all", s.handleMarkAllRead)
		r.Post("/{id}/open", s.handleOpen)
		r.Post("/{id}/read", s.handleMarkRead)
		r.Delete("/{id}", s.handleRemove)
	})

	r.Route("/api/intake", func(r chi.Router) {
		r.Use(httprate.Limit(intakeRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/arrived", s.handleIntake(server.SignalArrived))
		r.Post("/read", s.handleIntake(server.SignalRead))
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Starting HTTP server", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	snap, err := s.inbox.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	snap, err := s.inbox.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, BadgeResponse{Badge: snap.Badge})
}

// handleStream writes one JSON snapshot per line until the client goes away
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.inbox.Subscribe()
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := enc.Encode(snap); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleList(w, r)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkAllAsRead(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleBadge(w, r)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	n, err := s.inbox.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, n)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkAsRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIntake accepts a signal of the given type; processing is best-effort
func (s *Server) handleIntake(signalType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBytes))
		if err != nil {
			s.writeStatus(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read body"})
			return
		}

		var envelope map[string]any
		if err := json.Unmarshal(body, &envelope); err != nil {
			s.writeStatus(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if envelope == nil {
			s.writeStatus(w, http.StatusBadRequest, ErrorResponse{Error: "expected JSON object"})
			return
		}
		if t, ok := envelope["type"]; ok && t != signalType {
			s.writeStatus(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("expected signal type %s", signalType)})
			return
		}
		envelope["type"] = signalType
		body, _ = json.Marshal(envelope)

		sig, err := s.parser.Parse(body)
		if err != nil {
			s.writeStatus(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if err := server.Dispatch(r.Context(), sig, s.inbox, s.presenter, s.logger); err != nil {
			s.writeStatus(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("Request failed", "code", code, "error", err)
	}
	s.writeStatus(w, status, ErrorResponse{Error: err.Error(), Code: string(code)})
}

// statusFor maps an inbox error code to an HTTP status
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeNotReady:
		return http.StatusConflict
	case domain.CodeServiceDisabled:
		return http.StatusServiceUnavailable
	case domain.CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
