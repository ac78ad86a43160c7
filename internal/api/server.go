// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rbrinkke/userprofile-api/internal/config"
	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/service"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

// ProfileService is the engine surface the handlers call
type ProfileService interface {
	GetProfile(ctx context.Context, subjectID, viewerID string) (*service.ProfileView, error)
	GetVerificationMetrics(ctx context.Context, subjectID, viewerID string) (*models.VerificationMetrics, error)
	UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.User, error)
	UpdateUsername(ctx context.Context, userID, username string) (*models.User, error)
	AnonymizeAccount(ctx context.Context, userID string) error
	UpdateLastSeen(ctx context.Context, userID string) (time.Time, error)

	SetMainPhoto(ctx context.Context, userID, url string) (*models.User, error)
	AddExtraPhoto(ctx context.Context, userID, url string) ([]string, error)
	RemoveExtraPhoto(ctx context.Context, userID, url string) ([]string, error)
	ModeratePhoto(ctx context.Context, userID, moderatorID string, decision models.ModerationStatus, reason *string) (*models.ModerationDecision, error)
	PendingModerations(ctx context.Context, limit, offset int) ([]models.PendingPhoto, error)

	GetInterests(ctx context.Context, userID string) ([]models.UserInterest, error)
	AddInterest(ctx context.Context, userID string, in models.InterestInput) ([]models.UserInterest, error)
	RemoveInterest(ctx context.Context, userID, tag string) ([]models.UserInterest, error)
	ReplaceInterests(ctx context.Context, userID string, set []models.InterestInput) ([]models.UserInterest, error)

	GetSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	UpdateSettings(ctx context.Context, userID string, patch models.SettingsPatch) (*models.UserSettings, error)
	IsGhost(ctx context.Context, userID string) (bool, error)

	GetSubscription(ctx context.Context, userID string) (*models.SubscriptionInfo, error)
	UpdateSubscription(ctx context.Context, userID string, level models.SubscriptionLevel, expiresAt *time.Time) (*models.SubscriptionInfo, error)
	GrantCaptain(ctx context.Context, userID string) (*models.SubscriptionInfo, error)
	RevokeCaptain(ctx context.Context, userID string) (*models.SubscriptionInfo, error)

	IncrementVerification(ctx context.Context, userID string) (int, error)
	IncrementNoShow(ctx context.Context, userID string) (*models.NoShowResult, error)
	UpdateActivityCounters(ctx context.Context, userID string, createdDelta, attendedDelta int) (models.ActivityCounters, error)

	BanUser(ctx context.Context, userID, reason string, expiresAt *time.Time) (*models.User, error)
	UnbanUser(ctx context.Context, userID string) (*models.User, error)

	SearchUsers(ctx context.Context, requesterID string, q models.SearchQuery) (*models.SearchResult, error)
}

var _ ProfileService = (*service.Engine)(nil)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	engine     ProfileService
	cache      *storage.CacheService
	views      storage.ProfileViewRecorder
	verifier   *TokenVerifier
	keys       config.ServiceKeys
	checks     map[string]HealthCheck
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host             string
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
}

// ServerConfigFrom derives the HTTP settings from the application config
func ServerConfigFrom(cfg *config.Config) *ServerConfig {
	return &ServerConfig{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		IdleTimeout:      60 * time.Second,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimitRPS:     cfg.RateLimit.RPS,
		RateLimitBurst:   cfg.RateLimit.Burst,
	}
}

// NewServer creates a new API server instance. cache may be nil to serve
// every read from the engine; views may be nil to skip view analytics.
func NewServer(
	cfg *ServerConfig,
	engine ProfileService,
	cache *storage.CacheService,
	views storage.ProfileViewRecorder,
	verifier *TokenVerifier,
	keys config.ServiceKeys,
	logger *logging.Logger,
) *Server {
	if views == nil {
		views = storage.NopViewRecorder{}
	}
	s := &Server{
		router:   mux.NewRouter(),
		engine:   engine,
		cache:    cache,
		views:    views,
		verifier: verifier,
		keys:     keys,
		checks:   map[string]HealthCheck{},
		logger:   logger.WithField("component", "api"),
		config:   cfg,
	}

	s.setupRouter()

	return s
}

// AddHealthCheck registers a dependency probe reported by /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler exposes the routed handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// order matters
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	// preflight requests match no route, so CORS wraps the router itself
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	var limit func(http.Handler) http.Handler
	if s.config.RateLimitEnabled {
		limit = RateLimitMiddleware(NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst))
	}
	protect := func(r *mux.Router, mws ...mux.MiddlewareFunc) {
		for _, mw := range mws {
			r.Use(mw)
		}
		if limit != nil {
			r.Use(limit)
		}
	}

	// Own profile and public reads
	users := v1.PathPrefix("/users").Subrouter()
	protect(users, AuthMiddleware(s.verifier))
	users.HandleFunc("/me", s.handleGetMe).Methods(http.MethodGet)
	users.HandleFunc("/me", s.handleUpdateMe).Methods(http.MethodPatch)
	users.HandleFunc("/me", s.handleDeleteMe).Methods(http.MethodDelete)
	users.HandleFunc("/me/username", s.handleUpdateUsername).Methods(http.MethodPatch)
	users.HandleFunc("/me/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	users.HandleFunc("/me/photos/main", s.handleSetMainPhoto).Methods(http.MethodPut)
	users.HandleFunc("/me/photos", s.handleAddPhoto).Methods(http.MethodPost)
	users.HandleFunc("/me/photos", s.handleRemovePhoto).Methods(http.MethodDelete)
	users.HandleFunc("/me/interests", s.handleGetInterests).Methods(http.MethodGet)
	users.HandleFunc("/me/interests", s.handleReplaceInterests).Methods(http.MethodPut)
	users.HandleFunc("/me/interests", s.handleAddInterest).Methods(http.MethodPost)
	users.HandleFunc("/me/interests/{tag}", s.handleRemoveInterest).Methods(http.MethodDelete)
	users.HandleFunc("/me/settings", s.handleGetSettings).Methods(http.MethodGet)
	users.HandleFunc("/me/settings", s.handleUpdateSettings).Methods(http.MethodPatch)
	users.HandleFunc("/me/subscription", s.handleGetSubscription).Methods(http.MethodGet)
	users.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	users.HandleFunc("/{id}", s.handleGetUser).Methods(http.MethodGet)
	users.HandleFunc("/{id}/verification", s.handleGetVerification).Methods(http.MethodGet)

	// Service-to-service counters and billing
	internal := v1.PathPrefix("/internal/users/{id}").Subrouter()
	protect(internal)
	counters := RequireServiceKey(s.keys.Counters())
	payments := RequireServiceKey(s.keys.Subscriptions())
	internal.Handle("/verification", counters(http.HandlerFunc(s.handleIncrementVerification))).Methods(http.MethodPost)
	internal.Handle("/no-show", counters(http.HandlerFunc(s.handleIncrementNoShow))).Methods(http.MethodPost)
	internal.Handle("/activity-counters", counters(http.HandlerFunc(s.handleActivityCounters))).Methods(http.MethodPost)
	internal.Handle("/subscription", payments(http.HandlerFunc(s.handleUpdateSubscription))).Methods(http.MethodPut)

	// Moderation and account administration
	admin := v1.PathPrefix("/admin").Subrouter()
	protect(admin, AuthMiddleware(s.verifier), RequireAdmin)
	admin.HandleFunc("/moderation/photos", s.handlePendingPhotos).Methods(http.MethodGet)
	admin.HandleFunc("/moderation/photos/{id}", s.handleModeratePhoto).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/ban", s.handleBan).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/ban", s.handleUnban).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{id}/captain", s.handleGrantCaptain).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id}/captain", s.handleRevokeCaptain).Methods(http.MethodDelete)
}

// handleHealth reports liveness and the state of every registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.WithField("dependency", name).WithError(err).Warn("health check failed")
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":       overall,
		"service":      "userprofile-api",
		"dependencies": deps,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
