package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-dm/internal/auth"
	"github.com/npezzotti/go-dm/internal/chat"
	"github.com/npezzotti/go-dm/internal/config"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/server"
	"github.com/npezzotti/go-dm/internal/stats"
	"github.com/npezzotti/go-dm/internal/storage"
	"github.com/npezzotti/go-dm/internal/types"
)

const (
	authRateWindow   = time.Minute
	authRateRequests = 20
)

// LiveChannel is the part of the chat server the REST surface drives.
type LiveChannel interface {
	ServeConversation(w http.ResponseWriter, r *http.Request, conversationId int)
	Broadcast(conversationId int, ev *server.Event) int
}

type Uploader interface {
	Check(f storage.File) error
	Upload(ctx context.Context, userId int, f storage.File) (types.UploadedFile, error)
}

type DMApp struct {
	log            *log.Logger
	db             database.DMRepository
	srv            *http.Server
	cs             LiveChannel
	authority      *auth.SessionAuthority
	hasher         *auth.PasswordHasher
	conversations  *chat.ConversationService
	paginator      *chat.MessagePaginator
	mutator        *chat.MessageMutator
	uploads        Uploader
	stats          stats.StatsProvider
	limiter        *RateLimiter
	secureCookies  bool
	maxUploadBytes int64
	now            func() time.Time
}

// NewDMApp registers every route on mux. A nil uploads disables /upload.
func NewDMApp(
	mux *http.ServeMux,
	logger *log.Logger,
	cs LiveChannel,
	db database.DMRepository,
	authority *auth.SessionAuthority,
	hasher *auth.PasswordHasher,
	su stats.StatsProvider,
	uploads Uploader,
	cfg *config.Config,
) *DMApp {
	if su == nil {
		su = stats.NopStats{}
	}

	s := &DMApp{
		log:            logger,
		db:             db,
		cs:             cs,
		authority:      authority,
		hasher:         hasher,
		conversations:  chat.NewConversationService(db),
		paginator:      chat.NewMessagePaginator(db),
		mutator:        chat.NewMessageMutator(db),
		uploads:        uploads,
		stats:          su,
		limiter:        NewRateLimiter(authRateWindow, authRateRequests),
		secureCookies:  cfg.SecureCookies,
		maxUploadBytes: cfg.MaxUploadBytes,
		now:            time.Now,
	}

	mux.HandleFunc("POST /auth/register", s.rateLimit(s.register))
	mux.HandleFunc("POST /auth/login", s.rateLimit(s.login))
	mux.HandleFunc("GET /auth/me", s.authMiddleware(s.me))
	mux.HandleFunc("POST /auth/refresh", s.rateLimit(s.refresh))
	mux.HandleFunc("POST /auth/logout", s.logout)
	mux.HandleFunc("POST /conversations", s.authMiddleware(s.createConversation))
	mux.HandleFunc("GET /conversations", s.authMiddleware(s.listConversations))
	mux.HandleFunc("GET /conversations/{id}/messages", s.authMiddleware(s.listMessages))
	mux.HandleFunc("PATCH /messages/{id}", s.authMiddleware(s.editMessage))
	mux.HandleFunc("DELETE /messages/bulk", s.authMiddleware(s.bulkDelete))
	mux.HandleFunc("POST /upload", s.authMiddleware(s.upload))
	mux.HandleFunc("GET /ws/conversation/{id}", s.serveWs)
	mux.HandleFunc("GET /health", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	if logger != nil {
		h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	}

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *DMApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *DMApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *DMApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	s.limiter.Stop()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
