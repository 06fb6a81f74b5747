package fingerprint

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sixfinger/sixfinger/internal/logging"
	"github.com/sixfinger/sixfinger/internal/pagination"
	"github.com/sixfinger/sixfinger/internal/risk"
	"github.com/sixfinger/sixfinger/internal/validation"
)

// Handler provides HTTP handlers for the fingerprint API.
type Handler struct {
	service *Service
}

// NewHandler creates a new fingerprint handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the fingerprint routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/fingerprint", h.Submit)
	r.GET("/fingerprint/:hash", validation.HashParamMiddleware("hash"), h.Get)
	r.GET("/risk-score/:hash", validation.HashParamMiddleware("hash"), h.RiskScore)
	r.GET("/fingerprints", h.List)
	r.POST("/evaluate", h.Evaluate)
	r.GET("/rules", h.Rules)
}

// Submit handles POST /v1/fingerprint
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("hash", req.Hash),
		validation.ValidHash("hash", req.Hash),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_hash",
			"message": errs.Error(),
		})
		return
	}
	if req.Components == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": ErrMissingPayload.Error(),
		})
		return
	}

	fp, _, err := h.service.Submit(c.Request.Context(), req.Hash, *req.Components)
	if err != nil {
		h.fail(c, err, "Failed to process fingerprint")
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		Hash:       fp.Hash,
		RiskScore:  fp.RiskScore,
		IsBot:      fp.IsBot,
		VisitCount: fp.VisitCount,
		FirstSeen:  fp.FirstSeen,
	})
}

// Get handles GET /v1/fingerprint/:hash
func (h *Handler) Get(c *gin.Context) {
	fp, err := h.service.Get(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.fail(c, err, "Failed to load fingerprint")
		return
	}
	c.JSON(http.StatusOK, fp)
}

// RiskScore handles GET /v1/risk-score/:hash
func (h *Handler) RiskScore(c *gin.Context) {
	a, err := h.service.Assess(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.fail(c, err, "Failed to compute risk score")
		return
	}
	c.JSON(http.StatusOK, a)
}

// List handles GET /v1/fingerprints
func (h *Handler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}
	botsOnly := c.Query("bots") == "true"

	page, err := h.service.List(c.Request.Context(), limit, c.Query("cursor"), botsOnly)
	if err != nil {
		h.fail(c, err, "Failed to list fingerprints")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Evaluate handles POST /v1/evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	visits := 1
	if req.VisitCount != nil {
		visits = *req.VisitCount
	}

	result, err := h.service.Evaluate(req.Components, visits)
	if err != nil {
		h.fail(c, err, "Failed to evaluate components")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"risk_score": result.RiskScore,
		"is_bot":     result.IsBot,
		"confidence": risk.Confidence(result.RiskScore),
		"factors":    result.Factors,
	})
}

// Rules handles GET /v1/rules
func (h *Handler) Rules(c *gin.Context) {
	e := h.service.Engine()
	c.JSON(http.StatusOK, gin.H{
		"bot_threshold": e.BotThreshold(),
		"max_score":     e.MaxScore(),
		"rules":         e.Rules(),
	})
}

// fail maps service errors to responses. Unexpected errors are logged and
// reported without detail.
func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidHash):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_hash",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Fingerprint not found",
		})
	case errors.Is(err, pagination.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": err.Error(),
		})
	case errors.Is(err, risk.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error(message, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": message,
		})
	}
}
