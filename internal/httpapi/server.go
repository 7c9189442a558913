// Package httpapi exposes the tracker over HTTP with JSON bodies.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/runoshun/tracker/internal/domain"
)

// StorageErrorHeader is set on successful responses whose change was applied
// in memory but could not be persisted.
const StorageErrorHeader = "X-Storage-Error"

// Tracker is the set of core operations served over HTTP.
type Tracker interface {
	Create(item *domain.Item) (int, error)
	Get(id int) (*domain.Item, error)
	Peek(id int) (*domain.Item, error)
	List(kind domain.Kind) ([]*domain.Item, error)
	Update(id int, item *domain.Item) error
	Delete(id int) error
	DeleteAll(kind domain.Kind) error
	Link(subtaskID, epicID int) error
	EpicSubtasks(epicID int) ([]*domain.Item, error)
	Prioritized() []*domain.Item
	History() []*domain.Item
}

// Server serves a Tracker. The tracker is not safe for concurrent use, so
// every call into it holds mu.
type Server struct {
	core    Tracker
	logger  *slog.Logger
	handler http.Handler
	mu      sync.Mutex
}

// New creates a server. allowedOrigins configures CORS; nil allows none.
func New(core Tracker, logger *slog.Logger, allowedOrigins []string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		core:   core,
		logger: logger.With("category", "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", s.handlePrioritized)
	mux.HandleFunc("GET /tasks/history", s.handleHistory)
	mux.HandleFunc("GET /tasks/subtask/epic", s.handleEpicSubtasks)
	mux.HandleFunc("POST /tasks/epic/link", s.handleLink)
	mux.HandleFunc("GET /tasks/{kind}", s.handleGet)
	mux.HandleFunc("POST /tasks/{kind}", s.handlePost)
	mux.HandleFunc("DELETE /tasks/{kind}", s.handleDelete)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{StorageErrorHeader},
	})
	s.handler = c.Handler(mux)
	return s
}

// Handler returns the HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	return Serve(ctx, addr, s.handler, s.logger)
}

// Serve runs an HTTP server for h on addr until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handlePrioritized(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := s.core.Prioritized()
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := s.core.History()
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleEpicSubtasks(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.mu.Lock()
	items, err := s.core.EpicSubtasks(id)
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	epicID, err := queryID(r, "epic")
	if err != nil {
		s.writeError(w, err)
		return
	}
	subtaskID, err := queryID(r, "subtask")
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.mu.Lock()
	err = s.core.Link(subtaskID, epicID)
	s.mu.Unlock()
	if !s.storageOK(w, err) {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !r.URL.Query().Has("id") {
		s.mu.Lock()
		items, err := s.core.List(kind)
		s.mu.Unlock()
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, items)
		return
	}

	id, err := queryID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkKind(id, kind); err != nil {
		s.writeError(w, err)
		return
	}
	item, err := s.core.Get(id)
	if item == nil || !s.storageOK(w, err) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, fmt.Errorf("decode body: %v: %w", err, domain.ErrInvalidArgument))
		return
	}
	if item.Kind == "" {
		item.Kind = kind
	}
	if item.Kind != kind {
		s.writeError(w, fmt.Errorf("body type %s does not match path %s: %w", item.Kind, kind, domain.ErrInvalidArgument))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := http.StatusCreated
	id := item.ID
	if id == 0 {
		id, err = s.core.Create(&item)
		if id == 0 {
			s.writeError(w, err)
			return
		}
	} else {
		status = http.StatusOK
		err = s.core.Update(id, &item)
	}
	if !s.storageOK(w, err) {
		s.writeError(w, err)
		return
	}

	stored, err := s.core.Peek(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, status, stored)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.URL.Query().Has("id") {
		if err := s.core.DeleteAll(kind); !s.storageOK(w, err) {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id, err := queryID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.checkKind(id, kind); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.core.Delete(id); !s.storageOK(w, err) {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkKind reports ErrNoSuchItem when id exists under a different kind.
// Callers hold mu.
func (s *Server) checkKind(id int, kind domain.Kind) error {
	it, err := s.core.Peek(id)
	if err != nil {
		return err
	}
	if it.Kind != kind {
		return fmt.Errorf("%s %d: %w", kind.Slug(), id, domain.ErrNoSuchItem)
	}
	return nil
}

// storageOK reports whether err allows a success response. A storage write
// failure is reported through StorageErrorHeader instead of the status code.
func (s *Server) storageOK(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrStorageWrite) {
		s.logger.Warn("change not persisted", "error", err)
		w.Header().Set(StorageErrorHeader, "1")
		return true
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoSuchItem):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTimeIntersection):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrEmptyName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func pathKind(r *http.Request) (domain.Kind, error) {
	return domain.ParseKind(r.PathValue("kind"))
}

func queryID(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("query %s=%q: %w", name, raw, domain.ErrInvalidArgument)
	}
	return id, nil
}
