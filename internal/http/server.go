package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ignatij/shopfloor/internal/log"
	"github.com/ignatij/shopfloor/internal/metrics"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/ignatij/shopfloor/pkg/service"
	"github.com/ignatij/shopfloor/pkg/storage"
	"github.com/pkg/errors"
)

// ErrNoTokens is returned by StartServer when no bearer token is configured
// and insecure mode was not requested.
var ErrNoTokens = errors.New("no API tokens configured")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StartServer serves the job card API on addr until it fails. It refuses to
// start without tokens unless insecure is set.
func StartServer(addr string, store storage.Store, tokens []string, insecure bool) error {
	if len(tokens) == 0 {
		if !insecure {
			return errors.Wrap(ErrNoTokens, "set server.tokens or API_TOKENS, or pass --insecure")
		}
		log.GetLogger().Warnf("No API tokens configured, authentication is disabled")
	}
	gin.SetMode(gin.ReleaseMode)
	svc := service.NewJobCardService(store, log.GetLogger())
	router := NewRouter(svc, metrics.New(), tokens)
	log.GetLogger().Infof("Starting shopfloor server on %s", addr)
	return http.ListenAndServe(addr, router)
}

// NewRouter builds the API. An empty tokens list disables authentication;
// StartServer only allows that in insecure mode.
func NewRouter(svc *service.JobCardService, m *metrics.Metrics, tokens []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metricsMiddleware(m), requestLogger())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	h := &handlers{svc: svc, metrics: m}
	api := router.Group("/api/v1", bearerAuth(tokens))
	api.GET("/session", h.session)
	api.GET("/job-cards", h.listJobCards)
	api.POST("/job-cards", h.importJobCards)
	api.GET("/job-cards/:id", h.getJobCard)
	api.PATCH("/job-cards/:id", h.updateJobCard)
	api.GET("/job-cards/:id/logs", h.listLogs)
	return router
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type handlers struct {
	svc     *service.JobCardService
	metrics *metrics.Metrics
}

func (h *handlers) session(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *handlers) listJobCards(c *gin.Context) {
	var filter models.JobCardFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respond(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	cards, err := h.svc.ListJobCards(filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *handlers) importJobCards(c *gin.Context) {
	var cards []models.JobCard
	if err := c.ShouldBindJSON(&cards); err != nil {
		respond(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.svc.ImportJobCards(cards); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": len(cards)})
}

func (h *handlers) getJobCard(c *gin.Context) {
	card, err := h.svc.GetJobCard(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *handlers) updateJobCard(c *gin.Context) {
	var patch models.JobCardPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	card, err := h.svc.UpdateJobCard(c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	h.metrics.RecordJobCardUpdate(string(card.Status))
	c.JSON(http.StatusOK, card)
}

func (h *handlers) listLogs(c *gin.Context) {
	logs, err := h.svc.ListLogs(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respond(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrValidation):
		respond(c, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, service.ErrConflict):
		respond(c, http.StatusConflict, "conflict", err.Error())
	default:
		log.GetLogger().Errorf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		respond(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func respond(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

func bearerAuth(tokens []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		allowed[t] = struct{}{}
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if _, valid := allowed[token]; !ok || !valid {
			respond(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		c.Next()
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid recursion
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath() // route pattern, not actual path
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.GetLogger().Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start))
	}
}
