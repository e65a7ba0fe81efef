package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/remindly/followup-gateway/internal/config"
	"github.com/remindly/followup-gateway/internal/followup"
	"github.com/remindly/followup-gateway/internal/http/middleware"
	"github.com/remindly/followup-gateway/internal/lease"
	"github.com/remindly/followup-gateway/internal/metrics"
	"github.com/remindly/followup-gateway/internal/provider"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/schedule"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) (*Server, error) {
	// repos (MySQL)
	mailboxesRepo := repository.NewMailboxesRepository(mysqlDB)
	emailsRepo := repository.NewTrackedEmailsRepository(mysqlDB)
	followupsRepo := repository.NewFollowupsRepository(mysqlDB)
	bouncesRepo := repository.NewBouncesRepository(mysqlDB)
	subsRepo := repository.NewSubscriptionsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// provider client
	client := provider.NewHTTPClient(
		cfg.Provider.BaseURL,
		cfg.Provider.NotificationURL,
		cfg.Provider.ClientState,
		cfg.Provider.TimeoutMs,
		cfg.Provider.Breaker.FailThreshold,
		cfg.Provider.Breaker.OpenForMs,
	)

	// core
	hours, err := schedule.Parse(cfg.WorkingHours)
	if err != nil {
		return nil, err
	}
	orch := followup.New(emailsRepo, followupsRepo, bouncesRepo, client, hours, cfg.Followups)
	leaseMgr := lease.NewManager(subsRepo, mailboxesRepo, client,
		time.Duration(cfg.Provider.LeaseMaxHours)*time.Hour, cfg.Provider.RenewalThreshold)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// provider-facing webhook: authenticated by clientState, not API key
	e.POST("/webhook/notifications", webhookHandler(outboxRepo, cfg.Provider.ClientState, cfg.Kafka.Topic))

	// middlewares
	authMW := middleware.APIKeyMiddleware(mailboxesRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:mbox:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)

	v1.POST("/emails", trackEmailHandler(orch))
	v1.GET("/emails", listEmailsHandler(emailsRepo))
	v1.GET("/emails/stats", emailStatsHandler(emailsRepo))
	v1.GET("/emails/:id/followups", listFollowupsHandler(emailsRepo, followupsRepo))
	v1.POST("/emails/:id/stop", stopEmailHandler(orch, emailsRepo))
	v1.POST("/emails/:id/resume", resumeEmailHandler(orch, emailsRepo))
	v1.DELETE("/emails/:id", deleteEmailHandler(orch, emailsRepo))

	v1.GET("/bounces", listBouncesHandler(bouncesRepo))

	v1.POST("/leases", createLeaseHandler(leaseMgr))
	v1.DELETE("/leases/:id", deleteLeaseHandler(leaseMgr, subsRepo))
	v1.GET("/leases/health", leaseHealthHandler(leaseMgr))

	v1.GET("/reports/events", listEventsHandler(chEventsRepo))

	return &Server{e: e}, nil
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
