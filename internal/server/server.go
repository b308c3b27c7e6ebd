// Package server is the websocket endpoint of thesaurusd, the development
// suggestion service.
//
// Each websocket gets a session id. Replies to a session's lookups are
// published on the broker under the session's private topic and relayed to
// the socket subscribed to it, so a reply can be produced by any instance
// sharing the broker.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/atinylittleshell/quill/internal/thesaurus"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 10 * time.Second

type Options struct {
	// JWT enables bearer authentication on /ws when set.
	JWT *JWTConfig
	// EchoIDs copies the request id into replies.
	EchoIDs       bool
	LookupTimeout time.Duration
}

type Server struct {
	provider thesaurus.Provider
	broker   Broker
	logger   *zap.Logger
	opts     Options
	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func New(provider thesaurus.Provider, broker Broker, logger *zap.Logger, opts Options) *Server {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	return &Server{
		provider: provider,
		broker:   broker,
		logger:   logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	var ws http.Handler = http.HandlerFunc(s.handleWS)
	if s.opts.JWT != nil {
		ws = AuthMiddleware(s.logger, *s.opts.JWT)(ws)
	}
	r.Handle("/ws", ws).Methods(http.MethodGet)
	return r
}

// Sessions is the number of open websockets.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.Sessions(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("server upgrade failed", zap.Error(err))
		return
	}

	user, _ := UserFromContext(r.Context())
	c := newClient(s, conn, user)

	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	s.logger.Info("server session opened", zap.String("session", c.session), zap.String("user", user))
	c.run(context.Background())
	s.logger.Info("server session closed", zap.String("session", c.session))
}

// userTopic is the broker topic carrying replies for one session.
func userTopic(session string) string {
	return "/user/" + session + "/queue/synonyms"
}
