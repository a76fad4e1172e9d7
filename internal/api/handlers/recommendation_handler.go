package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/fastfish/assortment-engine/internal/domain"
	"github.com/fastfish/assortment-engine/internal/service"
)

type RecommendationHandler struct {
	service *service.RecommendationService
}

func NewRecommendationHandler(svc *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{service: svc}
}

// GetRecommendations returns consolidated rows, filterable by period, store,
// SPU and state, with optional pagination.
func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	filter := domain.RecommendationFilter{
		PeriodLabel: strings.TrimSpace(c.Query("period")),
		StoreCodes:  splitParam(c.Query("store")),
		SPUCodes:    splitParam(c.Query("spu")),
		States:      splitParam(c.Query("state")),
		Page:        intParam(c, "page", 1),
		PageSize:    intParam(c, "page_size", 0),
	}

	recs, total, err := h.service.GetRecommendations(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get recommendations"})
		return
	}
	if recs == nil {
		recs = make([]domain.Recommendation, 0)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  recs,
		"total": total,
	})
}

// GetSummary returns the per-period aggregate used by the dashboard.
func (h *RecommendationHandler) GetSummary(c *gin.Context) {
	period := strings.TrimSpace(c.Query("period"))
	if period == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period is required"})
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), period)
	if err != nil {
		log.Error().Err(err).Str("period", period).Msg("failed to get summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetPeriods lists the period labels with stored recommendations.
func (h *RecommendationHandler) GetPeriods(c *gin.Context) {
	periods, err := h.service.GetAvailablePeriods(c.Request.Context(), intParam(c, "limit", 30))
	if err != nil {
		log.Error().Err(err).Msg("failed to get periods")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get periods"})
		return
	}
	if periods == nil {
		periods = make([]string, 0)
	}

	c.JSON(http.StatusOK, gin.H{"data": periods})
}

func splitParam(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
