package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "famfin/internal/errors"
	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
	"famfin/internal/services"
)

// PeriodHandler serves the shared period lattice.
type PeriodHandler struct {
	periodService services.SourcePeriodServicer
	now           func() time.Time
}

// NewPeriodHandler creates a new PeriodHandler.
func NewPeriodHandler(periodService services.SourcePeriodServicer) *PeriodHandler {
	return &PeriodHandler{periodService: periodService, now: time.Now}
}

// ListPeriods handles listing source periods
// @Summary     List source periods
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Param       type      query string false "Filter by period type (WEEKLY, BI_MONTHLY, MONTHLY)"
// @Param       from      query string false "Periods ending on or after (RFC3339 or YYYY-MM-DD)"
// @Param       to        query string false "Periods starting on or before (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} pagination.PageResponse[models.SourcePeriod] "Paginated periods"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /periods [get]
func (h *PeriodHandler) ListPeriods(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var (
		filter services.PeriodFilter
		err    error
	)
	if v := c.Query("type"); v != "" {
		pt := period.Type(v)
		if !pt.Valid() {
			respondWithError(c, apperrors.ErrInvalidPeriodType)
			return
		}
		filter.Type = &pt
	}
	if filter.From, err = queryTime(c, "from"); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.periodService.List(c.Request.Context(), filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCurrentPeriods handles resolving today's period in each lattice
// @Summary     Current periods
// @Description Get the period containing today for one lattice, or for all three
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       type query string false "Period type (WEEKLY, BI_MONTHLY, MONTHLY)"
// @Success     200 {object} map[string]models.SourcePeriod "Current period per type"
// @Failure     400 {object} ErrorResponse "Invalid period type"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /periods/current [get]
func (h *PeriodHandler) GetCurrentPeriods(c *gin.Context) {
	types := period.Types
	if v := c.Query("type"); v != "" {
		pt := period.Type(v)
		if !pt.Valid() {
			respondWithError(c, apperrors.ErrInvalidPeriodType)
			return
		}
		types = []period.Type{pt}
	}

	now := h.now()
	current := make(map[period.Type]*models.SourcePeriod, len(types))
	for _, t := range types {
		p, err := h.periodService.GetCurrent(c.Request.Context(), t, now)
		if err != nil {
			respondWithError(c, err)
			return
		}
		current[t] = p
	}

	c.JSON(http.StatusOK, gin.H{"periods": current})
}

// GetPeriod handles retrieving one source period
// @Summary     Get a source period
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID (e.g. 2025M01, 2025BM02B, 2025W05)"
// @Success     200 {object} models.SourcePeriod "Period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Router      /periods/{id} [get]
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	p, err := h.periodService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": p})
}
