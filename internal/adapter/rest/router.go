package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/server"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	adminTokenHeader    = "X-Admin-Token"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler, cfg *config.Config, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), server.RequestID(), server.AccessLogger(logger))

	router.GET("/healthz", h.health)

	me := router.Group("/v1/me")
	me.Use(Authenticate(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	{
		me.GET("/ledger", h.getLedger)
		me.GET("/attempt", h.canAttempt)
		me.POST("/answers", h.submitAnswer)
		me.POST("/wrong-answers", h.wrongAnswer)
		me.POST("/completions", h.recordCompletion)
	}

	webhooks := router.Group("/webhooks")
	webhooks.Use(RequireSecret(webhookSecretHeader, cfg.Auth.WebhookSecret))
	{
		webhooks.POST("/identity", h.identityWebhook)
		webhooks.POST("/payments", h.paymentsWebhook)
	}

	internal := router.Group("/internal")
	internal.Use(RequireSecret(adminTokenHeader, cfg.Auth.AdminToken))
	{
		internal.POST("/sweep", h.runSweep)
		internal.GET("/ledgers", h.listLedgers)
	}
	return router
}
