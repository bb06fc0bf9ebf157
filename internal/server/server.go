package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/config"
	"github.com/smallbiznis/kost/internal/observability"
	obsmiddleware "github.com/smallbiznis/kost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kost/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kost/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
	"github.com/smallbiznis/kost/internal/scheduler"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// BillRunner triggers a manual generation run. *scheduler.Scheduler
// satisfies it and adds the run lock and job metrics.
type BillRunner interface {
	RunNow(ctx context.Context) (billingdomain.GenerateSummary, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	tenancySvc tenancydomain.Service
	billingSvc billingdomain.Service
	paymentSvc paymentdomain.Service
	runner     BillRunner
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	TenancySvc tenancydomain.Service
	BillingSvc billingdomain.Service
	PaymentSvc paymentdomain.Service
	Scheduler  *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		tenancySvc: p.TenancySvc,
		billingSvc: p.BillingSvc,
		paymentSvc: p.PaymentSvc,
		runner:     p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Bills --------
	api.POST("/bills/generate", s.GenerateBills)
	api.GET("/bills", s.ListBills)
	api.GET("/bills/:number", s.GetBill)
	api.GET("/bills/:number/invoice.pdf", s.RenderInvoice)

	// -------- Payments --------
	api.POST("/bills/:number/payments", s.ReportPayment)
	api.GET("/bills/:number/payments", s.ListBillPayments)
	api.GET("/payments/:id", s.GetPayment)
	api.POST("/payments/:id/confirm", s.ConfirmPayment)
	api.POST("/payments/:id/reject", s.RejectPayment)
	api.GET("/payments/:id/receipt.pdf", s.RenderReceipt)

	// -------- Settings --------
	api.GET("/billing-settings", s.GetBillingSettings)
	api.PUT("/billing-settings", s.UpdateBillingSettings)

	// -------- Tenancy --------
	api.POST("/properties", s.CreateProperty)
	api.POST("/rooms", s.CreateRoom)
	api.POST("/tenants", s.CheckIn)
	api.GET("/tenants", s.ListTenants)
	api.GET("/tenants/:id", s.GetTenant)
	api.POST("/tenants/:id/checkout", s.CheckOut)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
