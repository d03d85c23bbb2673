package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tunerelay/internal/auth"
	"tunerelay/internal/logger"
	"tunerelay/internal/models"
	"tunerelay/internal/worker"
)

type WorkerManager interface {
	Enqueue(ctx context.Context, upd *models.Update) (worker.Admission, error)
}

// WebhookRegistrar points the bot's update delivery at this service.
type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, webhookURL, secret string) error
}

type UpdateObserver interface {
	ObserveUpdate(result string)
}

const tokenParam = "token"

// update results reported to the observer besides worker admissions
const (
	resultMalformed = "malformed"
	resultBusy      = "busy"
	resultClosed    = "closed"
	resultError     = "error"
)

type Options struct {
	Token            string
	ExternalHostname string
	Metrics          http.Handler
	Observer         UpdateObserver
	Logger           logger.Logger
}

// Handler wires HTTP routes to the relay workers and the webhook registration.
type Handler struct {
	workers   WorkerManager
	registrar WebhookRegistrar
	auth      *auth.Service
	token     string
	hostname  string
	metrics   http.Handler
	observer  UpdateObserver
	log       logger.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(workers WorkerManager, registrar WebhookRegistrar, authService *auth.Service, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		workers:   workers,
		registrar: registrar,
		auth:      authService,
		token:     opts.Token,
		hostname:  opts.ExternalHostname,
		metrics:   opts.Metrics,
		observer:  opts.Observer,
		log:       log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.requestLogger())
	router.GET("/", h.setWebhook)
	router.GET("/healthz", h.healthz)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
	router.POST("/:"+tokenParam, h.auth.Middleware(tokenParam), h.receiveUpdate)
}

func (h *Handler) receiveUpdate(c *gin.Context) {
	var upd models.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		h.observe(resultMalformed)
		c.String(http.StatusBadRequest, "bad request")
		return
	}
	adm, err := h.workers.Enqueue(c.Request.Context(), &upd)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			// 503 makes Telegram redeliver the update later
			h.observe(resultBusy)
			h.log.Warn("relay queue full", "update_id", upd.UpdateID)
			c.String(http.StatusServiceUnavailable, "busy")
		case errors.Is(err, worker.ErrDispatcherClosed):
			h.observe(resultClosed)
			c.String(http.StatusServiceUnavailable, "shutting down")
		default:
			h.observe(resultError)
			h.log.Error("enqueue update", "update_id", upd.UpdateID, "err", err)
			c.String(http.StatusInternalServerError, "error")
		}
		return
	}
	h.observe(string(adm))
	c.String(http.StatusOK, "ok")
}

func (h *Handler) setWebhook(c *gin.Context) {
	if h.hostname == "" {
		c.String(http.StatusInternalServerError, "Webhook error: external hostname not configured")
		return
	}
	webhookURL := fmt.Sprintf("https://%s/%s", h.hostname, h.token)
	if err := h.registrar.SetWebhook(c.Request.Context(), webhookURL, h.auth.Secret()); err != nil {
		h.log.Error("set webhook", "host", h.hostname, "err", err)
		c.String(http.StatusInternalServerError, fmt.Sprintf("Webhook error: %v", err))
		return
	}
	h.log.Info("webhook registered", "host", h.hostname)
	c.String(http.StatusOK, "Webhook set!")
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) observe(result string) {
	if h.observer != nil {
		h.observer.ObserveUpdate(result)
	}
}

// requestLogger logs the route template rather than the raw path, which
// would leak the bot token.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		h.log.Info("http request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
