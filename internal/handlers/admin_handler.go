package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "famfin/internal/errors"
	"famfin/internal/period"
	"famfin/internal/services"
)

// AdminHandler exposes the maintenance jobs that the sweeper normally runs.
type AdminHandler struct {
	periodService       services.SourcePeriodServicer
	materializerService services.MaterializerServicer
	reconcileService    services.ReconcileServicer
	auditService        services.AuditServicer
	leadMonths          int
	now                 func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	periodService services.SourcePeriodServicer,
	materializerService services.MaterializerServicer,
	reconcileService services.ReconcileServicer,
	auditService services.AuditServicer,
	leadMonths int,
) *AdminHandler {
	return &AdminHandler{
		periodService:       periodService,
		materializerService: materializerService,
		reconcileService:    reconcileService,
		auditService:        auditService,
		leadMonths:          leadMonths,
		now:                 time.Now,
	}
}

// GeneratePeriodsRequest represents the request payload for generating a lattice
type GeneratePeriodsRequest struct {
	Type       period.Type `json:"type" binding:"omitempty,period_type"`
	Anchor     string      `json:"anchor"`
	HorizonEnd string      `json:"horizon_end"`
}

// GeneratePeriods handles lattice generation
// @Summary     Generate source periods
// @Description Upsert one lattice over [anchor, horizon_end], or every lattice through the configured lead when the body is empty
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body GeneratePeriodsRequest false "Lattice and window"
// @Success     200 {object} map[string]int64 "Number of new periods"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /admin/periods/generate [post]
func (h *AdminHandler) GeneratePeriods(c *gin.Context) {
	principal, err := getPrincipal(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req GeneratePeriodsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	var created int64
	if req.Type == "" {
		created, err = h.periodService.EnsureHorizon(c.Request.Context(), h.now(), h.leadMonths)
	} else {
		anchor, parseErr := parseFlexibleTime(req.Anchor)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "anchor: "+parseErr.Error()))
			return
		}
		end, parseErr := parseFlexibleTime(req.HorizonEnd)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "horizon_end: "+parseErr.Error()))
			return
		}
		if end.Before(anchor) {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "horizon_end is before anchor"))
			return
		}
		created, err = h.periodService.GeneratePeriods(c.Request.Context(), req.Type, anchor, end)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(principal.ID, "GENERATE_PERIODS", "source_period", string(req.Type), c.ClientIP(),
		map[string]interface{}{"created": created})

	c.JSON(http.StatusOK, gin.H{"created": created})
}

// SweepPeriods handles the current-period sweep
// @Summary     Sweep current periods
// @Description Re-flag the period containing today in each lattice
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.SweepResult "Sweep result"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /admin/periods/sweep [post]
func (h *AdminHandler) SweepPeriods(c *gin.Context) {
	result, err := h.periodService.SweepCurrent(c.Request.Context(), h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// MaterializeAll handles a full materialization pass
// @Summary     Materialize all active obligations
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.MaterializeSummary "Materialization summary"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /admin/materialize [post]
func (h *AdminHandler) MaterializeAll(c *gin.Context) {
	summary, err := h.materializerService.MaterializeAllActive(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": summary})
}

// ReconcileStale handles repairing stale projections
// @Summary     Reconcile stale projections
// @Description Refresh projections whose copy of their obligation is behind the obligation's version
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.ReconcileSummary "Reconcile summary"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /admin/reconcile [post]
func (h *AdminHandler) ReconcileStale(c *gin.Context) {
	summary, err := h.reconcileService.ReconcileStale(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": summary})
}
