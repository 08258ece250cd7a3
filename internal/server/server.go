// Package server exposes the blood bank service as a JSON HTTP API.
package server

import (
	"bloodsync/internal/core"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server routes HTTP requests to the service.
type Server struct {
	svc      *core.Service
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves the gatherer's metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// New builds the router for svc.
func New(svc *core.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: zap.NewNop(), gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(s)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), Logger(s.logger))
	s.engine = engine
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/statistics", s.statistics)

	donors := api.Group("/donors")
	donors.GET("", s.listDonors)
	donors.POST("", s.registerDonor)
	donors.GET("/search", s.searchDonors)
	donors.GET("/:id", s.getDonor)
	donors.PATCH("/:id", s.updateDonor)
	donors.GET("/:id/dashboard", s.donorDashboard)
	donors.GET("/:id/requests", s.availableRequests)
	donors.POST("/:id/donations", s.recordDonation)
	donors.POST("/:id/requests/:requestID/accept", s.acceptRequest)

	api.POST("/assignments/:id/complete", s.completeAssignment)

	requestors := api.Group("/requestors")
	requestors.POST("", s.registerRequestor)
	requestors.GET("/:id", s.getRequestor)
	requestors.GET("/:id/dashboard", s.requestorDashboard)

	requests := api.Group("/requests")
	requests.GET("", s.listRequests)
	requests.POST("", s.submitRequest)
	requests.GET("/:id", s.requestDetails)
	requests.GET("/:id/match", s.matchRequest)
	requests.POST("/:id/withdrawals", s.withdraw)
	requests.POST("/:id/assignments/:assignmentID/confirm", s.confirmAssignment)

	api.GET("/inventory", s.listInventory)
	api.POST("/inventory/adjust", s.adjustInventory)
	api.POST("/ledger/exports", s.exportLedger)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
