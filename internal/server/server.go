package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reliefops/disburse/internal/config"
	obslogger "github.com/reliefops/disburse/internal/observability/logger"
	obsmetrics "github.com/reliefops/disburse/internal/observability/metrics"
	"github.com/reliefops/disburse/internal/payment"
	programdomain "github.com/reliefops/disburse/internal/program/domain"
	"github.com/reliefops/disburse/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(pdf.New),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http")))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

// PermissionFunc decides whether a request may perform an action. Identity
// and role management live in an external system; the default allows
// everything and deployments plug in their own check.
type PermissionFunc func(c *gin.Context, action string) error

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	paymentSvc *payment.Service
	programSvc programdomain.Service
	pdfSvc     pdf.Provider
	permission PermissionFunc
	log        *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	PaymentSvc *payment.Service
	ProgramSvc programdomain.Service
	PDFSvc     pdf.Provider
	Permission PermissionFunc `optional:"true"`
	Log        *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		paymentSvc: p.PaymentSvc,
		programSvc: p.ProgramSvc,
		pdfSvc:     p.PDFSvc,
		permission: p.Permission,
		log:        p.Log.Named("server"),
	}
	if svc.permission == nil {
		svc.permission = allowAll
	}

	svc.registerAPIRoutes()

	return svc
}

func allowAll(*gin.Context, string) error { return nil }

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payments --------
	api.POST("/programs/:programId/payments", s.requirePermission(ActionPaymentCreate), s.SubmitPaymentRun)
	api.GET("/programs/:programId/payments/progress", s.requirePermission(ActionPaymentRead), s.GetPaymentProgress)

	// -------- Registrations --------
	api.GET("/registrations/:referenceId/transactions", s.requirePermission(ActionPaymentRead), s.ListTransactions)
	api.GET("/registrations/:referenceId/wallets", s.requirePermission(ActionWalletRead), s.GetWallets)
	api.PUT("/registrations/:referenceId/wallets", s.requirePermission(ActionWalletManage), s.ReissueWallet)

	// -------- Wallets --------
	api.POST("/wallets/:tokenCode/block", s.requirePermission(ActionWalletManage), s.BlockWallet)
	api.POST("/wallets/:tokenCode/unblock", s.requirePermission(ActionWalletManage), s.UnblockWallet)

	// -------- Vouchers --------
	api.GET("/registrations/:referenceId/vouchers/:payment/image", s.requirePermission(ActionVoucherRead), s.GetVoucherImage)
	api.GET("/registrations/:referenceId/vouchers/:payment/balance", s.requirePermission(ActionVoucherRead), s.GetVoucherBalance)
	api.GET("/programs/:programId/vouchers/instructions.pdf", s.requirePermission(ActionVoucherRead), s.GetVoucherInstructions)

	// -------- Delivery callbacks --------
	api.POST("/notifications/status", s.NotificationStatus)
}
