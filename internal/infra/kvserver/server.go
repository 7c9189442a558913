// Package kvserver implements the authenticated key-value service used by
// the remote state store. Values live in memory; sessions are HS256 JWTs.
package kvserver

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/runoshun/tracker/internal/domain"
)

const (
	issuer       = "tracker-kv"
	tokenTTL     = 30 * 24 * time.Hour
	maxValueSize = 32 << 20
)

// Server is an in-memory key-value store behind token authentication.
// Fields are ordered to minimize memory padding.
type Server struct {
	now    func() time.Time
	logger *slog.Logger
	data   map[string][]byte
	mux    *http.ServeMux
	secret []byte
	mu     sync.RWMutex
}

// New creates a server signing sessions with secret.
// An empty secret is replaced by 32 random bytes, which invalidates all
// sessions on restart.
func New(secret []byte, logger *slog.Logger) (*Server, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		now:    time.Now,
		logger: logger,
		data:   make(map[string][]byte),
		mux:    http.NewServeMux(),
		secret: secret,
	}
	s.mux.HandleFunc("GET /register", s.handleRegister)
	s.mux.HandleFunc("POST /save/{key}", s.withAuth(s.handleSave))
	s.mux.HandleFunc("GET /load/{key}", s.withAuth(s.handleLoad))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// IssueToken creates a new session token.
func (s *Server) IssueToken() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// ValidateToken checks a session token.
func (s *Server) ValidateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, _ *http.Request) {
	token, err := s.IssueToken()
	if err != nil {
		s.logger.Error("issue token", "error", err)
		http.Error(w, "cannot issue token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, token)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxValueSize {
		http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(body) == 0 {
		http.Error(w, "value for saving is empty", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.data[key] = body
	s.mu.Unlock()

	s.logger.Debug("value saved", "category", "kv", "key", key, "bytes", len(body))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(value)
}

// withAuth rejects requests without a valid session token.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusForbidden)
			return
		}
		if err := s.ValidateToken(token); err != nil {
			if !errors.Is(err, domain.ErrUnauthorized) {
				s.logger.Error("validate token", "error", err)
			}
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// bearerToken extracts the session token from the Authorization header or
// the API_TOKEN query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("API_TOKEN")
}
