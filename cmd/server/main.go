// Package main runs the live classroom HTTP server with WebSocket
// endpoints and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/activities"
	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/courses"
	"github.com/classpulse/backend/internal/join"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/internal/submissions"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var pubsub session.PubSub
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub = realtime.NewRedisPubSub(rdb.Client, logger)
	} else {
		logger.Info("redis disabled, broadcasts stay in-process")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	registry := session.NewRegistry(logger, pubsub)

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go registry.Sweep(
		time.Duration(cfg.Session.SweepIntervalMin)*time.Minute,
		time.Duration(cfg.Session.EvictAfterHours)*time.Hour,
		sweepStop,
	)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Courses and rosters
	courseRepo := courses.NewRepository(pool)
	courseHandler := courses.NewHandler(courseRepo, registry)

	// Join flow
	joinService := join.NewService(courseRepo, registry, logger)
	joinHandler := join.NewHandler(joinService, logger)

	// Activities
	activityRepo := activities.NewRepository(pool)
	activityService := activities.NewService(activityRepo, registry, logger)
	activityHandler := activities.NewHandler(activityService, courseRepo)

	// Submissions
	submissionRepo := submissions.NewRepository(pool)
	submissionService := submissions.NewService(submissionRepo, activityRepo, registry, logger)
	submissionHandler := submissions.NewHandler(submissionService, activityRepo, courseRepo)

	instructorValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.InstructorID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Student-facing (no JWT; session tokens gate the socket)
	router.POST("/join", joinHandler.Join)
	router.GET("/courses/:id/activities/feed", activityHandler.ListForStudents)
	router.GET("/activities/:id/student", activityHandler.GetForStudent)
	router.POST("/activities/:id/submissions/quiz", submissionHandler.SubmitQuiz)
	router.POST("/activities/:id/submissions/poll", submissionHandler.SubmitPoll)
	router.POST("/activities/:id/submissions/discussion", submissionHandler.SubmitDiscussion)
	router.GET("/activities/:id/submissions/:studentID", submissionHandler.GetMine)
	router.GET("/activities/:id/tally", submissionHandler.Tally)
	router.GET("/activities/:id/discussion", submissionHandler.ListDiscussion)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Courses
		api.POST("/courses", courseHandler.Create)
		api.GET("/courses", courseHandler.List)
		api.GET("/courses/:id", courseHandler.Get)
		api.PUT("/courses/:id", courseHandler.Update)
		api.DELETE("/courses/:id", courseHandler.Delete)
		api.GET("/courses/:id/online", courseHandler.Online)

		// Rosters
		api.POST("/courses/:id/enrollments", courseHandler.Enroll)
		api.GET("/courses/:id/enrollments", courseHandler.ListEnrollments)
		api.DELETE("/courses/:id/enrollments/:studentID", courseHandler.RemoveEnrollment)

		// Activities
		api.POST("/courses/:id/activities", activityHandler.Create)
		api.GET("/courses/:id/activities", activityHandler.ListByCourse)
		api.GET("/activities/:id", activityHandler.Get)
		api.PATCH("/activities/:id", activityHandler.Edit)
		api.POST("/activities/:id/activate", activityHandler.Activate)
		api.POST("/activities/:id/deactivate", activityHandler.Deactivate)
		api.DELETE("/activities/:id", activityHandler.Delete)

		// Submissions (instructor views)
		api.GET("/activities/:id/submissions", submissionHandler.ListByActivity)
		api.PATCH("/submissions/:id/approve", submissionHandler.Approve)
	}

	// WebSocket (tokens in query; no Authorization header required)
	router.GET("/ws/student", realtime.ServeStudent(registry, logger))
	router.GET("/ws/instructor", realtime.ServeInstructor(registry, courseRepo, instructorValidate, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
