// Package server contains the HTTP and WebSocket handlers for the FamilyNova API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"familynova/internal/cache"
	"familynova/internal/config"
	"familynova/internal/database"
	"familynova/internal/middleware"
	"familynova/internal/models"
	"familynova/internal/notifications"
	"familynova/internal/repository"
	"familynova/internal/service"
	"familynova/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// The HTTP collectors register on the default Prometheus registry, which
// rejects a second registration of the same names.
var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = middleware.InitMetrics("familynova-api")
	})
	return prom
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	hub      *notifications.Hub
	notifier *notifications.Notifier

	accountSvc    *service.AccountService
	friendSvc     *service.FriendService
	postSvc       *service.PostService
	commentSvc    *service.CommentService
	messageSvc    *service.MessageService
	moderationSvc *service.ModerationService
	feedSvc       *service.FeedService
	imageSvc      *service.ImageService
	retentionSvc  *service.RetentionService
}

// NewServer connects to the database, Redis and object storage named by cfg
// and builds a Server on top of them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	store, err := storage.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, cache.GetClient(), store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil redisClient disables caching, cross-instance events and ws tickets.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store storage.Store) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("server requires a database")
	}
	cache.SetClient(redisClient)

	accountRepo := repository.NewAccountRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	changeRepo := repository.NewProfileChangeRepository(db)
	moderationRepo := repository.NewModerationRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: httpMetrics(),
		hub:            notifications.NewHub(),
		notifier:       notifications.NewNotifier(redisClient),
	}

	s.accountSvc = service.NewAccountService(accountRepo, friendRepo, codeRepo, s)
	s.friendSvc = service.NewFriendService(friendRepo, accountRepo, codeRepo, s)
	s.postSvc = service.NewPostService(postRepo, accountRepo, s)
	s.commentSvc = service.NewCommentService(commentRepo, postRepo, accountRepo)
	s.messageSvc = service.NewMessageService(messageRepo, friendRepo, accountRepo, s)
	s.moderationSvc = service.NewModerationService(moderationRepo, accountRepo, postRepo, messageRepo, changeRepo, s)
	s.feedSvc = service.NewFeedService(postRepo, commentRepo, messageRepo, friendRepo, accountRepo, changeRepo)
	s.imageSvc = service.NewImageService(store, cfg)

	interval := time.Duration(cfg.RetentionIntervalMinutes) * time.Minute
	s.retentionSvc = service.NewRetentionService(codeRepo, changeRepo, messageRepo, interval)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Request ID and account ID reach the context-aware logger through here.
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "FamilyNova API Metrics",
	}))

	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimitWithPolicy(
		s.redis, 10, 5*time.Minute, middleware.FailClosed, "login"), s.Login)

	// The socket route authenticates with a single-use ticket, so it sits
	// outside the bearer-token group.
	api.Get("/ws", s.AuthRequired(), s.WebsocketHandler())

	protected := api.Group("", s.AuthRequired())

	protected.Post("/ws/ticket", s.IssueWSTicket)

	accounts := protected.Group("/accounts")
	accounts.Get("/me", s.GetMe)
	accounts.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.SearchAccounts)

	parents := protected.Group("/parents")
	parents.Post("/children", s.CreateChild)
	parents.Get("/children", s.ListChildren)
	parents.Post("/children/:childId/parents", s.LinkChild)
	parents.Get("/children/:childId/activity", s.GetActivityReport)
	parents.Get("/dashboard", s.GetDashboard)
	parents.Get("/connections", s.GetParentConnections)

	verification := protected.Group("/verification")
	verification.Post("/parent/:childId", s.VerifyChildAsParent)
	verification.Post("/school", middleware.RateLimit(s.redis, 5, 10*time.Minute, "verify_school"), s.VerifySchool)

	friends := protected.Group("/friends")
	friends.Get("/", s.GetFriends)
	// Specific /requests and /codes routes before generic /:userId
	friends.Post("/requests/:userId", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "friend_request"), s.SendFriendRequest)
	friends.Get("/requests", s.GetPendingRequests)
	friends.Get("/requests/sent", s.GetSentRequests)
	friends.Post("/requests/:requestId/accept", s.AcceptFriendRequest)
	friends.Post("/requests/:requestId/reject", s.RejectFriendRequest)
	friends.Post("/codes", s.IssueFriendCode)
	friends.Post("/codes/redeem", middleware.RateLimit(
		s.redis, 10, 10*time.Minute, "redeem_code"), s.RedeemFriendCode)
	friends.Delete("/:userId", s.RemoveFriend)

	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(s.redis, 5, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Get("/feed", s.GetFeed)
	posts.Post("/:id/like", s.ToggleLike)
	posts.Get("/:id/reactions", s.GetReactions)
	posts.Post("/:id/reactions", middleware.RateLimit(s.redis, 60, time.Minute, "react"), s.ToggleReaction)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", middleware.RateLimit(s.redis, 10, time.Minute, "create_comment"), s.CreateComment)
	posts.Get("/:id", s.GetPost)
	posts.Delete("/:id", s.DeletePost)

	messages := protected.Group("/messages")
	messages.Post("/", middleware.RateLimit(s.redis, 30, time.Minute, "send_message"), s.SendMessage)
	messages.Get("/conversations", s.GetConversations)
	messages.Get("/conversations/:userId", s.GetConversation)
	messages.Post("/conversations/:userId/read", s.MarkConversationRead)

	moderation := protected.Group("/moderation")
	moderation.Get("/queue", s.GetModerationQueue)
	moderation.Post("/:entityType/:id/approve", s.ApproveContent)
	moderation.Post("/:entityType/:id/reject", s.RejectContent)

	changes := protected.Group("/profile-changes")
	changes.Post("/", s.RequestProfileChange)
	changes.Get("/", s.ListProfileChanges)

	protected.Post("/images", middleware.RateLimit(s.redis, 20, 10*time.Minute, "image_upload"), s.UploadImage)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database and Redis answer.
// Redis is optional: a deployment without it is ready but degraded.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired authenticates the caller by a single-use websocket ticket
// (query "ticket") or a bearer JWT.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws") && !strings.HasPrefix(c.Path(), "/api/ws/ticket")

		if isWSPath {
			accountID, ok := s.redeemWSTicket(c.UserContext(), c.Query("ticket"))
			if !ok {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			return s.continueAsActive(c, accountID)
		}

		token, err := middleware.BearerToken(c)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		accountID, err := middleware.ParseToken(s.config.JWTSecret, token)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		return s.continueAsActive(c, accountID)
	}
}

// continueAsActive admits accountID only while the account exists and is open.
// Closing an account takes effect on its next request, whatever the route.
func (s *Server) continueAsActive(c *fiber.Ctx, accountID uint) error {
	account, err := s.accountSvc.GetAccount(c.UserContext(), accountID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Account no longer exists"))
		}
		return mapServiceError(c, err)
	}
	if !account.IsActive {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Account is closed"))
	}

	middleware.SetAccountID(c, accountID)
	return c.Next()
}

// redeemWSTicket atomically consumes ticket and returns the account it was issued to.
func (s *Server) redeemWSTicket(ctx context.Context, ticket string) (uint, bool) {
	if ticket == "" || s.redis == nil {
		return 0, false
	}
	raw, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		if err != redis.Nil {
			slog.WarnContext(ctx, "ws ticket lookup failed", slog.String("error", err.Error()))
		}
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// newApp builds the Fiber app with middleware and routes.
func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "FamilyNova API",
		BodyLimit: (max(s.config.ImageMaxUploadSizeMB, service.DefaultImageMaxUploadSizeMB) + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			slog.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// App returns the configured Fiber app, building it on first use.
func (s *Server) App() *fiber.App {
	if s.app == nil {
		s.app = s.newApp()
	}
	return s.app
}

// Start wires realtime delivery, launches the retention worker and serves
// HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier.Enabled() {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				slog.Error("failed to start hub wiring", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	s.retentionSvc.Start(s.shutdownCtx)

	slog.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		slog.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := cache.Close(); rerr != nil {
			slog.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	slog.Info("server shutdown complete")
	return nil
}
