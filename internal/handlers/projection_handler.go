package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"famfin/internal/services"
)

// ProjectionHandler handles period projection requests.
type ProjectionHandler struct {
	projectionService services.ProjectionServicer
	aggregatorService services.AggregatorServicer
}

// NewProjectionHandler creates a new ProjectionHandler.
func NewProjectionHandler(projectionService services.ProjectionServicer, aggregatorService services.AggregatorServicer) *ProjectionHandler {
	return &ProjectionHandler{projectionService: projectionService, aggregatorService: aggregatorService}
}

// GetProjection handles retrieving a single period projection
// @Summary     Get a projection
// @Description Get one obligation's standing within one period
// @Tags        projections
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Projection ID (obligation id and period id joined by an underscore)"
// @Success     200 {object} models.PeriodProjection "Projection"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Projection not found"
// @Router      /projections/{id} [get]
func (h *ProjectionHandler) GetProjection(c *gin.Context) {
	principal, err := getPrincipal(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	projection, err := h.projectionService.Get(c.Request.Context(), principal, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projection": projection})
}

// RecomputeProjection handles an on-demand aggregate refresh
// @Summary     Recompute a projection
// @Description Recompute the paid, allocated and status fields of one projection from its splits
// @Tags        projections
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Projection ID"
// @Success     200 {object} models.PeriodProjection "Recomputed projection"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Projection not found"
// @Failure     409 {object} ErrorResponse "Concurrent modification, retry later"
// @Router      /projections/{id}/recompute [post]
func (h *ProjectionHandler) RecomputeProjection(c *gin.Context) {
	principal, err := getPrincipal(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if _, err := h.projectionService.Get(c.Request.Context(), principal, id); err != nil {
		respondWithError(c, err)
		return
	}

	projection, err := h.aggregatorService.Recompute(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projection": projection})
}
