package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/fastfish/assortment-engine/internal/pipeline"
)

type RunHandler struct {
	repo *pipeline.Repository
}

func NewRunHandler(repo *pipeline.Repository) *RunHandler {
	return &RunHandler{repo: repo}
}

// GetRuns lists recent engine runs with their stage progress.
func (h *RunHandler) GetRuns(c *gin.Context) {
	runs, err := h.repo.ListRecentRuns(c.Request.Context(), intParam(c, "limit", 20))
	if err != nil {
		log.Error().Err(err).Msg("failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = make([]*pipeline.Run, 0)
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

// GetRunStages lists the stage jobs for one run.
func (h *RunHandler) GetRunStages(c *gin.Context) {
	runID, err := parseInt64(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	jobs, err := h.repo.GetStageJobsByRunID(c.Request.Context(), runID)
	if err != nil {
		log.Error().Err(err).Int64("run_id", runID).Msg("failed to list stage jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stage jobs"})
		return
	}
	if jobs == nil {
		jobs = make([]*pipeline.StageJob, 0)
	}

	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func parseInt64(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}
