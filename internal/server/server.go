// Package server exposes session and now-playing state over a loopback
// HTTP API for status bars and the CLI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/playback"
	"github.com/jfmyers9/desky/internal/session"
)

// Backend is what the API reads and drives
type Backend interface {
	SessionStatus() session.Status
	Track() *playback.TrackInfo
	RefreshTrack(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect()
	Foreground(ctx context.Context)
	Background()
	HandleRedirect(ctx context.Context, rawURL string) error
}

// Server serves the local API
type Server struct {
	addr    string
	backend Backend
	logger  zerolog.Logger
	router  *mux.Router
}

// New creates a Server listening on addr
func New(addr string, backend Backend, logger zerolog.Logger) *Server {
	s := &Server{
		addr:    addr,
		backend: backend,
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(LoopbackOnly)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/session/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/track", s.handleTrack).Methods(http.MethodGet)
	api.HandleFunc("/track/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/lifecycle/{event:foreground|background}", s.handleLifecycle).Methods(http.MethodPost)
	api.HandleFunc("/auth/redirect", s.handleRedirect).Methods(http.MethodPost)

	return router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving local API")

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// LoopbackOnly rejects requests that did not originate on this host
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionResponse is the JSON body of GET /api/v1/session
type SessionResponse struct {
	State   string    `json:"state"`
	Message string    `json:"message,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Since   time.Time `json:"since"`
}

// TrackResponse is the JSON body of GET /api/v1/track
type TrackResponse struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	IsPlaying  bool   `json:"is_playing"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	PositionMs int64  `json:"position_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// NewTrackResponse converts a TrackInfo for the wire
func NewTrackResponse(t *playback.TrackInfo) TrackResponse {
	resp := TrackResponse{
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		IsPlaying:  t.IsPlaying,
		PositionMs: t.Position.Milliseconds(),
		DurationMs: t.Duration.Milliseconds(),
	}
	if t.ArtworkURL != nil {
		resp.ArtworkURL = t.ArtworkURL.String()
	}
	return resp
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st := s.backend.SessionStatus()
	s.writeJSON(w, http.StatusOK, SessionResponse{
		State:   st.State.String(),
		Message: st.Message,
		Attempt: st.Attempt,
		Since:   st.Since,
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Connect(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.backend.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	track := s.backend.Track()
	if track == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, NewTrackResponse(track))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.RefreshTrack(r.Context()); err != nil {
		if errors.Is(err, playback.ErrNotConnected) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.handleTrack(w, r)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["event"] {
	case "foreground":
		s.backend.Foreground(r.Context())
	case "background":
		s.backend.Background()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<10))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := s.backend.HandleRedirect(r.Context(), string(body)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}
