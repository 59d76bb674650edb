package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/api"
	"board-sync/domain"
	"board-sync/email"
	"board-sync/realtime"
	"board-sync/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.TablesFromEnv()
	emailQueue := os.Getenv("EMAIL_QUEUE")
	if connStr == "" || !tables.Complete() || emailQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tables)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))
	cacheTTL := envDur("CACHE_TTL", 10*time.Minute)
	if cacheTTL <= 0 {
		log.Fatal("invalid CACHE_TTL: must be greater than zero")
	}
	cache := storage.NewCache(store, rc, cacheTTL)

	auth := newAuth()

	logger := log.StandardLogger()
	metrics := realtime.NewMetrics(prometheus.DefaultRegisterer)
	channel := realtime.NewRedisChannel(rc, metrics)
	hub := realtime.NewHub(metrics)
	sessions := realtime.NewSessionRegistry(metrics)

	queue, err := email.NewQueueClient(connStr, emailQueue)
	if err != nil {
		log.Fatalf("email queue: %v", err)
	}
	sender := email.NewSender(queue, email.ConfigFromEnv(), logger)

	notifications := domain.NewNotificationService(store, channel, logger)
	broadcaster := domain.NewBoardBroadcaster(channel, logger)
	svc := api.Services{
		Tasks:         domain.NewTaskService(store, cache, cache, notifications, sender, broadcaster, logger),
		Boards:        domain.NewBoardService(cache, store, cache, broadcaster, logger),
		Completions:   domain.NewCompletionService(store, store, cache, notifications, sender, broadcaster, logger),
		Notifications: notifications,
		Reports:       domain.NewReportService(store, store, cache, cache, logger),
		Users:         domain.NewUserService(cache),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go realtime.Subscribe(ctx, logger, rc, hub)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("board_sync"))
	e.GET("/metrics", echoprometheus.NewHandler())
	api.Register(e, svc, auth, hub, sessions, logger)

	listenAddr := ":" + envString("LISTEN_PORT", "8080")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	sender.Close()
	sessions.Clear()
	if err := rc.Close(); err != nil {
		log.WithError(err).Warn("redis close")
	}
}

func newAuth() *api.Auth {
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	jwtAudience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if jwtAudience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
}
