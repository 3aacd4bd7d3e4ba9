package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/api/handlers"
	"github.com/NEXESMISSION/KESTI-sub002/internal/api/middleware"
	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

const maxRequestBody = 1 << 20 // 1 MiB

type Server struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
	http   *http.Server
}

func NewServer(db *storage.Database, logger utils.Logger, config *utils.Config) *Server {
	return &Server{db: db, logger: logger, config: config}
}

func (s *Server) Router() *gin.Engine {
	if s.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.Logger(s.logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(s.config.CORS))
	router.Use(middleware.RateLimit(s.config.Security.RateLimitRequests, s.config.Security.RateLimitWindow))
	router.Use(requestSizeLimit(maxRequestBody))

	authHandler := handlers.NewAuthHandler(s.db, s.logger, s.config)
	deviceHandler := handlers.NewDeviceHandler(s.db, s.logger, s.config)
	productHandler := handlers.NewProductHandler(s.db, s.logger, s.config)
	saleHandler := handlers.NewSaleHandler(s.db, s.logger, s.config)
	expenseHandler := handlers.NewExpenseHandler(s.db, s.logger, s.config)
	profileHandler := handlers.NewProfileHandler(s.db, s.logger, s.config)
	adminHandler := handlers.NewAdminHandler(s.db, s.logger, s.config)
	analyticsHandler := handlers.NewAnalyticsHandler(s.db, s.logger)
	contactHandler := handlers.NewContactHandler(s.db, s.logger, s.config)
	healthHandler := handlers.NewHealthHandler(s.db, s.logger)

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/readiness", healthHandler.ReadinessCheck)
	router.GET("/metrics", healthHandler.Metrics)

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/login", middleware.ValidateOrigin(s.config.CORS.AllowedOrigins), authHandler.Login)
		auth.POST("/refresh", s.authenticated(), authHandler.Refresh)
		auth.POST("/logout", s.authenticated(), authHandler.Logout)
	}

	// public so suspended accounts and anonymous visitors can reach support
	v1.POST("/contact", middleware.OptionalJWTAuth(s.config.Security.JWTSecret), contactHandler.Submit)

	// Device routes skip the status gate: a suspended owner must still be
	// able to see which device holds the slot, and the enforcement agent
	// keeps polling while the account is blocked.
	devices := v1.Group("/devices", s.authenticated())
	{
		devices.GET("", deviceHandler.List)
		devices.POST("/register", deviceHandler.Register)
		devices.GET("/authorized", deviceHandler.Authorized)
		devices.POST("/heartbeat", deviceHandler.Heartbeat)
		devices.GET("/pair-qr", deviceHandler.PairQR)
		devices.DELETE("/:id", deviceHandler.Remove)
	}

	profile := v1.Group("/profile", s.authenticated())
	{
		// status stays reachable for blocked accounts so clients can learn
		// why they are blocked
		profile.GET("/status", profileHandler.Status)
		profile.POST("/verify-pin", s.gated(), profileHandler.VerifyPIN)
		profile.PUT("/settings", s.gated(), profileHandler.UpdateSettings)
		profile.POST("/clear-history", s.gated(), profileHandler.ClearHistory)
	}

	business := v1.Group("", s.authenticated(), s.gated())
	{
		products := business.Group("/products")
		{
			products.POST("", productHandler.Create)
			products.GET("", productHandler.List)
			products.GET("/:id", productHandler.Get)
			products.PUT("/:id", productHandler.Update)
			products.DELETE("/:id", productHandler.Delete)
		}

		sales := business.Group("/sales")
		{
			sales.POST("", saleHandler.Create)
			sales.GET("", saleHandler.List)
			sales.GET("/:id", saleHandler.Get)
			sales.DELETE("/:id", saleHandler.Delete)
		}

		expenses := business.Group("/expenses")
		{
			expenses.POST("", expenseHandler.Create)
			expenses.GET("", expenseHandler.List)
			expenses.DELETE("/:id", expenseHandler.Delete)
		}

		analytics := business.Group("/analytics")
		{
			analytics.GET("/dashboard", analyticsHandler.Dashboard)
			analytics.POST("/events", analyticsHandler.TrackEvent)
		}
	}

	admin := v1.Group("/admin", s.authenticated(), middleware.RequireRole(storage.RoleSuperAdmin))
	{
		admin.POST("/businesses", authHandler.Register)
		admin.GET("/businesses", adminHandler.ListBusinesses)
		admin.PUT("/businesses/:id/suspension", adminHandler.Suspend)
		admin.PUT("/businesses/:id/subscription", adminHandler.SetSubscription)
		admin.POST("/businesses/:id/reset-password", adminHandler.ResetPassword)
		admin.DELETE("/businesses/:id", adminHandler.Deactivate)
		admin.GET("/businesses/:id/audit-log", adminHandler.AuditLog)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found", "code": "NOT_FOUND"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed", "code": "METHOD_NOT_ALLOWED"})
	})

	return router
}

func (s *Server) authenticated() gin.HandlerFunc {
	return middleware.JWTAuth(s.config.Security.JWTSecret)
}

func (s *Server) gated() gin.HandlerFunc {
	return middleware.AccountStatusGate(s.db.DB, s.logger)
}

func requestSizeLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func (s *Server) Start(ctx context.Context) error {
	router := s.Router()

	s.http = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:        router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	useTLS := s.config.Security.TLSCertFile != "" && s.config.Security.TLSKeyFile != ""
	if useTLS {
		s.http.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			},
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.http.Addr, "tls", useTLS)
		var err error
		if useTLS {
			err = s.http.ListenAndServeTLS(s.config.Security.TLSCertFile, s.config.Security.TLSKeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("server shutting down")
	return s.http.Shutdown(ctx)
}
