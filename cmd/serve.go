package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	"github.com/soundvault/ms-go-auth/app/controller"
	"github.com/soundvault/ms-go-auth/app/entity"
	"github.com/soundvault/ms-go-auth/app/middleware"
	"github.com/soundvault/ms-go-auth/app/repository"
	"github.com/soundvault/ms-go-auth/app/service"
	"github.com/soundvault/ms-go-auth/app/storage"
	"github.com/soundvault/ms-go-auth/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server for the authentication service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to object storage")
	}
	if err := objectStore.EnsureBucket(context.Background()); err != nil {
		logrus.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	userRepo := repository.NewUserRepository(db)
	mailer := service.NewSMTPMailer(cfg.SMTP)
	authService := service.NewAuthService(userRepo, cfg, mailer, objectStore)
	userService := service.NewUserService(userRepo, cfg, objectStore)

	startHTTPServer(cfg, authService, userService)
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return nil
}

func startHTTPServer(cfg *config.Config, authService *service.AuthService, userService *service.UserService) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	var rdb *redis.Client
	if cfg.RateLimit.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		defer rdb.Close()
	}
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, rdb)

	authController := controller.NewAuthController(authService)
	userController := controller.NewUserController(userService)
	tokenGuard := middleware.NewTokenGuard(authService.AccessCodec(), authService.RefreshCodec())

	auth := e.Group("/auth")
	auth.POST("/signup/:role", authController.Signup, rateLimiter)
	auth.POST("/login", authController.Login, rateLimiter)
	auth.POST("/confirm-email/:token", authController.ConfirmEmail)
	auth.PUT("/reset-password/:token", authController.ResetPassword, rateLimiter)
	auth.GET("/refresh-token", authController.RefreshToken, tokenGuard.RequireRefresh)

	authProtected := auth.Group("")
	authProtected.Use(tokenGuard.RequireAccess)
	authProtected.POST("/resend-confirmation-email", authController.ResendConfirmationEmail)
	authProtected.POST("/forgot-password", authController.ForgotPassword)
	authProtected.DELETE("/logout", authController.Logout)
	authProtected.POST("/product-key", authController.ProductKey, middleware.RequireRoles(entity.RoleAdmin))

	users := e.Group("/users")
	users.Use(tokenGuard.RequireAccess)
	users.GET("", userController.List)
	users.GET("/:id", userController.Get)
	users.PATCH("/:id", userController.Update)
	users.DELETE("/:id", userController.Delete)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}
