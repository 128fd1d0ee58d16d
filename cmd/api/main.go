package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/taxdesk/taxdesk-api/api/swagger"
	"github.com/taxdesk/taxdesk-api/internal/handler"
	"github.com/taxdesk/taxdesk-api/internal/middleware"
	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	"github.com/taxdesk/taxdesk-api/internal/service"
	"github.com/taxdesk/taxdesk-api/pkg/cache"
	"github.com/taxdesk/taxdesk-api/pkg/config"
	"github.com/taxdesk/taxdesk-api/pkg/database"
	"github.com/taxdesk/taxdesk-api/pkg/logger"
	"github.com/taxdesk/taxdesk-api/pkg/mailer"
	corsmiddleware "github.com/taxdesk/taxdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/taxdesk/taxdesk-api/pkg/middleware/requestid"
	"github.com/taxdesk/taxdesk-api/pkg/storage"
)

// @title TaxDesk API
// @version 1.0.0
// @description Service order and assignment management for the TaxDesk consulting portal
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	docStorage, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}

	// Repositories.
	accountRepo := repository.NewAccountRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	mirrorRepo := repository.NewMirrorRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	idSvc := service.NewIDService(counterRepo, logr)
	walletSvc := service.NewWalletService(walletRepo, logr)

	smtpMailer := mailer.NewSMTPMailer(cfg.Mail)
	notifySvc := service.NewNotificationService(smtpMailer, accountRepo, cfg.Notifications, logr)

	authSvc := service.NewAuthService(accountRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "taxdesk-api",
	})

	assignmentSvc := service.NewAssignmentService(accountRepo, orderRepo, mirrorRepo, walletRepo, paymentRepo, notifySvc, logr)
	accountSvc := service.NewAccountService(accountRepo, idSvc, assignmentSvc, walletSvc, notifySvc, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, orderRepo, cacheRepo, idSvc, cfg.Catalog.CacheTTL, logr)
	orderSvc := service.NewOrderService(orderRepo, catalogRepo, accountRepo, assignmentSvc, idSvc, docStorage, notifySvc, logr)
	leadSvc := service.NewLeadService(leadRepo, catalogRepo, accountRepo, orderSvc, walletSvc, idSvc, notifySvc, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, catalogRepo, orderSvc, accountRepo, walletSvc, cfg.Payments, logr)
	dashboardSvc := service.NewDashboardService(accountRepo, orderRepo, orderSvc, leadRepo, catalogRepo, assignmentSvc, walletSvc, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(orderRepo, leadRepo, paymentRepo, logr, nil, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifySvc.Start(ctx)
	defer notifySvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	accountHandler := handler.NewAccountHandler(accountSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	leadHandler := handler.NewLeadHandler(leadSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	walletHandler := handler.NewWalletHandler(walletSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metricsHandler.Prometheus())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg.APIPrefix, authSvc,
		authHandler, accountHandler, catalogHandler, leadHandler, orderHandler,
		assignmentHandler, paymentHandler, walletHandler, dashboardHandler,
		exportHandler, metricsHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

func registerRoutes(r *gin.Engine, prefix string, authSvc *service.AuthService,
	auth *handler.AuthHandler, accounts *handler.AccountHandler, catalog *handler.CatalogHandler,
	leads *handler.LeadHandler, orders *handler.OrderHandler, assignments *handler.AssignmentHandler,
	payments *handler.PaymentHandler, wallets *handler.WalletHandler, dashboards *handler.DashboardHandler,
	exports *handler.ExportHandler, metrics *handler.MetricsHandler) {

	admin := string(models.RoleAdmin)
	manager := string(models.RoleManager)
	employee := string(models.RoleEmployee)
	customer := string(models.RoleCustomer)

	api := r.Group(prefix)
	authed := api.Group("", middleware.JWT(authSvc))

	// Authentication.
	api.POST("/auth/login", auth.Login)
	api.POST("/auth/refresh", auth.Refresh)
	authed.POST("/auth/logout", auth.Logout)
	authed.GET("/auth/me", auth.Me)

	// Accounts.
	authed.GET("/accounts", middleware.RBAC(admin, manager), accounts.List)
	authed.POST("/accounts", middleware.RBAC(admin, manager), accounts.Create)
	authed.GET("/accounts/:id", middleware.RBAC(admin, manager, "SELF"), accounts.Get)
	authed.PUT("/accounts/:id", middleware.RBAC(admin, manager), accounts.Update)
	authed.PATCH("/accounts/:id/active", middleware.RBAC(admin), accounts.SetActive)
	authed.POST("/accounts/password", accounts.ChangePassword)

	// Catalog. Listings are public so the lead funnel can browse services.
	api.GET("/services", catalog.List)
	api.GET("/services/:id", catalog.Get)
	authed.POST("/services", middleware.RBAC(admin), catalog.Create)
	authed.PUT("/services/:id", middleware.RBAC(admin), catalog.Update)
	authed.PUT("/services/:id/packages/:name", middleware.RBAC(admin, manager), catalog.UpdatePackage)

	// Leads. Creation is the public inquiry form.
	api.POST("/leads", leads.Create)
	authed.GET("/leads", middleware.RBAC(admin, manager, employee), leads.List)
	authed.GET("/leads/:id", middleware.RBAC(admin, manager, employee), leads.Get)
	authed.POST("/leads/:id/assign", middleware.RBAC(admin, manager), leads.Assign)
	authed.POST("/leads/:id/accept", middleware.RBAC(employee), leads.Accept)
	authed.POST("/leads/:id/decline", middleware.RBAC(employee), leads.Decline)
	authed.POST("/leads/:id/convert", middleware.RBAC(admin, manager, employee), leads.Convert)

	// Orders.
	authed.GET("/orders", orders.List)
	authed.POST("/orders", middleware.RBAC(admin, manager), orders.Create)
	authed.GET("/orders/:id", orders.Get)
	authed.PATCH("/orders/:id/status", middleware.RBAC(admin, manager, employee), orders.UpdateStatus)
	authed.POST("/orders/:id/cancel", middleware.RBAC(admin, manager), orders.Cancel)
	authed.POST("/orders/:id/due-date", middleware.RBAC(admin, manager), orders.ExtendDueDate)
	authed.POST("/orders/:id/review", middleware.RBAC(employee), orders.SendForReview)
	authed.POST("/orders/:id/review/complete", middleware.RBAC(admin, manager), orders.CompleteReview)
	authed.POST("/orders/:id/documents", orders.UploadDocument)
	authed.POST("/orders/:id/queries", orders.AddQuery)
	authed.POST("/orders/:id/queries/:queryId/replies", orders.ReplyQuery)
	authed.POST("/orders/:id/feedback", middleware.RBAC(customer), orders.AddFeedback)

	// Assignments.
	authed.POST("/assignments", middleware.RBAC(admin, manager), assignments.Assign)
	authed.POST("/assignments/backfill/:id", middleware.RBAC(admin, manager), assignments.Backfill)
	authed.GET("/assignments/my-customers", middleware.RBAC(employee), assignments.MyCustomers)
	authed.POST("/assignments/refresh/:id", middleware.RBAC(admin, manager), assignments.RefreshMirror)

	// Payments.
	authed.POST("/payments/checkout", middleware.RBAC(customer), payments.Checkout)
	authed.POST("/payments/verify", middleware.RBAC(customer), payments.Verify)
	authed.GET("/payments", middleware.RBAC(customer), payments.History)

	// Wallet.
	authed.GET("/wallet", wallets.Balance)
	authed.POST("/wallet/adjust", middleware.RBAC(admin), wallets.Adjust)

	// Dashboards.
	authed.GET("/dashboard/admin", middleware.RBAC(admin, manager), dashboards.Admin)
	authed.GET("/dashboard/employee", middleware.RBAC(employee), dashboards.Employee)
	authed.GET("/dashboard/customer", middleware.RBAC(customer), dashboards.Customer)

	// Exports.
	authed.GET("/exports/orders", middleware.RBAC(admin, manager), exports.Orders)
	authed.GET("/exports/leads", middleware.RBAC(admin, manager), exports.Leads)
	authed.GET("/exports/payments/:id", middleware.RBAC(admin, manager), exports.CustomerPayments)

	// Metrics summary.
	authed.GET("/metrics/summary", middleware.RBAC(admin), metrics.Snapshot)
}
