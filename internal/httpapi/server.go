package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/service"
)

// Pinger reports storage health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Logger    *zerolog.Logger
	Addr      string
	Auth      *Authenticator
	Registry  *service.PassRegistry
	Tracker   *service.AccessTracker
	Capacity  *service.CapacityEvaluator
	Reporting *service.Reporting
	Locations *service.LocationDirectory
	Tokens    *service.TokenIssuer
	Health    Pinger
}

type Server struct {
	httpServer *http.Server
	logger     *zerolog.Logger
	router     *httprouter.Router

	registry  *service.PassRegistry
	tracker   *service.AccessTracker
	capacity  *service.CapacityEvaluator
	reporting *service.Reporting
	locations *service.LocationDirectory
	tokens    *service.TokenIssuer
	health    Pinger
}

func NewServer(d Dependencies) *Server {
	router := httprouter.New()

	s := &Server{
		logger:    d.Logger,
		router:    router,
		registry:  d.Registry,
		tracker:   d.Tracker,
		capacity:  d.Capacity,
		reporting: d.Reporting,
		locations: d.Locations,
		tokens:    d.Tokens,
		health:    d.Health,
	}

	router.GET("/healthz", s.handleHealth)

	router.POST("/v1/passes", s.handleIssuePass)
	router.GET("/v1/passes/:id", s.handleGetPass)
	router.POST("/v1/passes/:id/revoke", s.handleRevokePass)
	router.GET("/v1/passes/:id/qr", s.handlePassToken)
	router.GET("/v1/me/passes", s.handleMyPasses)
	router.GET("/v1/me/activity", s.handleMyActivity)

	router.GET("/v1/locations", s.handleListLocations)
	router.POST("/v1/locations", s.handleRegisterLocation)
	router.GET("/v1/locations/:id", s.handleGetLocation)
	router.GET("/v1/locations/:id/occupancy", s.handleOccupancy)
	router.GET("/v1/locations/:id/alerts", s.handleAlerts)
	router.POST("/v1/locations/:id/alerts/evaluate", s.handleEvaluateAlerts)
	router.GET("/v1/locations/:id/activity", s.handleLocationActivity)
	router.GET("/v1/locations/:id/stats", s.handleStats)

	router.POST("/v1/access/entry", s.handleEntry)
	router.POST("/v1/access/exit", s.handleExit)
	router.POST("/v1/access/scan", s.handleScan)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})

	var handler http.Handler = router
	handler = authMiddleware(d.Auth, map[string]bool{"/healthz": true}, handler)
	handler = recoveryMiddleware(d.Logger, handler)
	handler = loggingMiddleware(d.Logger, handler)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
