package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	"github.com/smallbiznis/taxledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/taxledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/taxledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/taxledger/internal/observability/tracing"
	"github.com/smallbiznis/taxledger/internal/ratelimit"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Log         *zap.Logger
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.PrometheusMetrics `optional:"true"`
	GLAdapter   glsyncdomain.Adapter          `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.CorrelationMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmiddleware.GinMiddleware(p.Log.Named("http"), obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Verbose,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if reporter, ok := p.GLAdapter.(glsyncdomain.StatusReporter); ok {
			body["gl_adapter"] = reporter.Status()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	nexus      taxdomain.NexusResolver
	calculator taxdomain.Calculator
	taxMgmt    taxdomain.ManagementService
	invoiceSvc invoicedomain.Service
	glsyncSvc  glsyncdomain.Service
	limiter    *ratelimit.TenantLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Nexus      taxdomain.NexusResolver
	Calculator taxdomain.Calculator
	TaxMgmt    taxdomain.ManagementService
	InvoiceSvc invoicedomain.Service
	GLSyncSvc  glsyncdomain.Service
	Limiter    *ratelimit.TenantLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		nexus:      p.Nexus,
		calculator: p.Calculator,
		taxMgmt:    p.TaxMgmt,
		invoiceSvc: p.InvoiceSvc,
		glsyncSvc:  p.GLSyncSvc,
		limiter:    p.Limiter,
	}

	svc.registerTaxRoutes()
	svc.registerInvoiceRoutes()
	svc.registerGLSyncRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerTaxRoutes() {
	tax := s.engine.Group("/v1/tax")

	tax.POST("/nexus", TenantRequired(), s.tenantRateLimit(), s.DetermineNexus)
	tax.POST("/calculate", s.CalculateTax)

	// -------- Catalog --------
	tax.POST("/jurisdictions", s.CreateJurisdiction)
	tax.GET("/jurisdictions", s.ListJurisdictions)
	tax.GET("/jurisdictions/:code", s.GetJurisdictionByCode)
	tax.POST("/codes", s.CreateTaxCode)
	tax.GET("/codes", s.ListTaxCodes)
	tax.POST("/rules", s.CreateTaxRule)
	tax.GET("/rules", s.ListTaxRules)

	tax.POST("/nexus-registrations", TenantRequired(), s.tenantRateLimit(), s.RegisterNexus)
}

func (s *Server) registerInvoiceRoutes() {
	invoices := s.engine.Group("/v1/invoices", TenantRequired(), s.tenantRateLimit())

	invoices.POST("", s.CreateInvoice)
	invoices.GET("/:id", s.GetInvoiceByID)
	invoices.POST("/:id/finalize", s.FinalizeInvoice)
}

func (s *Server) registerGLSyncRoutes() {
	sync := s.engine.Group("/v1/gl-sync", TenantRequired(), s.tenantRateLimit())

	sync.POST("", s.SyncTransaction)
	sync.GET("/:reference_id", s.GetSyncStatus)
	sync.GET("/:reference_id/attempts", s.ListSyncAttempts)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
