package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "famfin/internal/errors"
	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
	"famfin/internal/services"
)

// ObligationHandler handles obligation-related requests.
type ObligationHandler struct {
	obligationService   services.ObligationServicer
	materializerService services.MaterializerServicer
	projectionService   services.ProjectionServicer
	auditService        services.AuditServicer
}

// NewObligationHandler creates a new ObligationHandler.
func NewObligationHandler(
	obligationService services.ObligationServicer,
	materializerService services.MaterializerServicer,
	projectionService services.ProjectionServicer,
	auditService services.AuditServicer,
) *ObligationHandler {
	return &ObligationHandler{
		obligationService:   obligationService,
		materializerService: materializerService,
		projectionService:   projectionService,
		auditService:        auditService,
	}
}

// CreateObligationRequest represents the request payload for creating an obligation
type CreateObligationRequest struct {
	Kind           models.ObligationKind `json:"kind" binding:"required,obligation_kind"`
	Name           string                `json:"name" binding:"required,min=1,max=100"`
	Category       string                `json:"category" binding:"max=100"`
	AmountCents    int64                 `json:"amount_cents" binding:"required,gt=0"`
	Frequency      string                `json:"frequency" binding:"required,obligation_frequency"`
	StartDate      *string               `json:"start_date"`
	EndDate        *string               `json:"end_date"`
	NextDueDate    *string               `json:"next_due_date"`
	StreamID       *string               `json:"stream_id" binding:"omitempty,max=128"`
	AccountID      *string               `json:"account_id"`
	Shared         bool                  `json:"shared"`
	AnchorPeriodID string                `json:"anchor_period_id" binding:"omitempty,period_id"`
}

// UpdateObligationRequest represents the request payload for updating an obligation
type UpdateObligationRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Category    *string `json:"category" binding:"omitempty,max=100"`
	AmountCents *int64  `json:"amount_cents" binding:"omitempty,gt=0"`
	Frequency   *string `json:"frequency" binding:"omitempty,obligation_frequency"`
	EndDate     *string `json:"end_date"`
	NextDueDate *string `json:"next_due_date"`
}

// MaterializeRequest represents the optional request payload for materializing an obligation
type MaterializeRequest struct {
	AnchorPeriodID string `json:"anchor_period_id" binding:"omitempty,period_id"`
	HorizonMonths  int    `json:"horizon_months" binding:"omitempty,min=1"`
}

// FillGapRequest represents the request payload for backfilling a single period
type FillGapRequest struct {
	PeriodID string `json:"period_id" binding:"required,period_id"`
}

// CreateObligation handles the creation of a new obligation
// @Summary     Create an obligation
// @Description Create a budget, bill or income and materialize its period projections
// @Tags        obligations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateObligationRequest true "Obligation details"
// @Success     201 {object} models.Obligation "Obligation created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /obligations [post]
func (h *ObligationHandler) CreateObligation(c *gin.Context) {
	principal, err := getPrincipal(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in := services.CreateObligationInput{
		Kind:           req.Kind,
		Name:           req.Name,
		Category:       req.Category,
		AmountCents:    req.AmountCents,
		Frequency:      req.Frequency,
		StreamID:       req.StreamID,
		AccountID:      req.AccountID,
		Shared:         req.Shared,
		AnchorPeriodID: req.AnchorPeriodID,
	}
	if in.StartDate, err = parseOptionalTime(req.StartDate); err != nil {
		respondWithError(c, err)
		return
	}
	if in.EndDate, err = parseOptionalTime(req.EndDate); err != nil {
		respondWithError(c, err)
		return
	}
	if in.NextDueDate, err = parseOptionalTime(req.NextDueDate); err != nil {
		respondWithError(c, err)
		return
	}

	obligation, err := h.obligationService.Create(c.Request.Context(), principal, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(principal.ID, "CREATE_OBLIGATION", "obligation", obligation.ID, c.ClientIP(),
		map[string]interface{}{"kind": req.Kind, "amount_cents": req.AmountCents, "frequency": req.Frequency})

	c.JSON(http.StatusCreated, gin.H{"obligation": obligation})
}

// ListObligations handles listing the obligations visible to the caller
// @Summary     List obligations
// @Description Get a paginated list of the caller's and the caller's group's obligations
// @Tags        obligations
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Param       kind      query string false "Filter by kind (budget, outflow, inflow)"
// @Param       is_active query bool   false "Filter by active flag"
// @Success     200 {object} pagination.PageResponse[models.Obligation] "Paginated obligations"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /obligations [get]
func (h *ObligationHandler) ListObligations(c *gin.Context) {
	principal, err := getPrincipal(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter services.ObligationFilter
	if v := c.Query("kind"); v != "" {
		kind := models.ObligationKind(v)
		switch kind {
		case models.ObligationKindBudget, models.ObligationKindOutflow, models.ObligationKindInflow:
			filter.Kind = &kind
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid kind, must be budget, outflow, or inflow"))
			return
		}
	}
	if v := c.Query("is_active"); v != "" {
		active, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid is_active"))
			return
		}
		filter.IsActive = &active
	}

	result, err := h.obligationService.List(c.Request.Context(), principal, filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetObligation handles retrieving a single obligation
// @Summary     Get an obligation
// @Tags        obligations
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Obligation ID"
// @Success     200 {object} models.Obligation "Obligation"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Obligation not found"
// @Router      /obligations/{id} [get]
func (h *ObligationHandler) GetObligation(c *gin.Context) {
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

	obligation, err := h.obligationService.Get(c.Request.Context(), principal, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"obligation": obligation})
}

// UpdateObligation handles editing an obligation
// @Summary     Update an obligation
// @Description Edit an obligation; open projections are re-derived from the new values
// @Tags        obligations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true "Obligation ID"
// @Param       request body UpdateObligationRequest true "Fields to change"
// @Success     200 {object} models.Obligation "Obligation updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Obligation not found"
// @Failure     409 {object} ErrorResponse "Obligation inactive"
// @Router      /obligations/{id} [put]
func (h *ObligationHandler) UpdateObligation(c *gin.Context) {
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

	var req UpdateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in := services.UpdateObligationInput{
		Name:        req.Name,
		Category:    req.Category,
		AmountCents: req.AmountCents,
		Frequency:   req.Frequency,
	}
	if in.EndDate, err = parseOptionalTime(req.EndDate); err != nil {
		respondWithError(c, err)
		return
	}
	if in.NextDueDate, err = parseOptionalTime(req.NextDueDate); err != nil {
		respondWithError(c, err)
		return
	}

	obligation, err := h.obligationService.Update(c.Request.Context(), principal, id, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(principal.ID, "UPDATE_OBLIGATION", "obligation", obligation.ID, c.ClientIP(),
		map[string]interface{}{"version": obligation.Version})

	c.JSON(http.StatusOK, gin.H{"obligation": obligation})
}

// DeactivateObligation handles deactivating an obligation
// @Summary     Deactivate an obligation
// @Description Stop an obligation from producing new projections; history is kept
// @Tags        obligations
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Obligation ID"
// @Success     200 {object} MessageResponse "Obligation deactivated"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Obligation not found"
// @Router      /obligations/{id} [delete]
func (h *ObligationHandler) DeactivateObligation(c *gin.Context) {
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

	if _, err := h.obligationService.Deactivate(c.Request.Context(), principal, id); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(principal.ID, "DEACTIVATE_OBLIGATION", "obligation", id, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Obligation deactivated successfully"})
}

// MaterializeObligation handles an on-demand materialization
// @Summary     Materialize an obligation
// @Description Create any missing period projections up to the obligation's horizon
// @Tags        obligations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true  "Obligation ID"
// @Param       request body MaterializeRequest false "Anchor and horizon overrides"
// @Success     200 {object} services.MaterializeResult "Materialization result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Obligation not found"
// @Failure     409 {object} ErrorResponse "Obligation inactive"
// @Router      /obligations/{id}/materialize [post]
func (h *ObligationHandler) MaterializeObligation(c *gin.Context) {
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

	var req MaterializeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	// Visibility check before touching the materializer, which is unscoped.
	if _, err := h.obligationService.Get(c.Request.Context(), principal, id); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.materializerService.Materialize(c.Request.Context(), id, services.MaterializeOptions{
		AnchorPeriodID: req.AnchorPeriodID,
		HorizonMonths:  req.HorizonMonths,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// FillGap handles backfilling one period of an obligation
// @Summary     Backfill a period
// @Description Create the obligation's projection for one period if it falls within the obligation's life
// @Tags        obligations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string         true "Obligation ID"
// @Param       request body FillGapRequest true "Period to backfill"
// @Success     200 {object} services.FillGapResult "Gap-fill result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Obligation or period not found"
// @Router      /obligations/{id}/fill-gap [post]
func (h *ObligationHandler) FillGap(c *gin.Context) {
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

	var req FillGapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if _, err := h.obligationService.Get(c.Request.Context(), principal, id); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.materializerService.FillGap(c.Request.Context(), id, req.PeriodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListProjections handles listing an obligation's period projections
// @Summary     List an obligation's projections
// @Tags        obligations
// @Produce     json
// @Security    BearerAuth
// @Param       id          path  string true  "Obligation ID"
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Param       period_type query string false "Filter by period type (WEEKLY, BI_MONTHLY, MONTHLY)"
// @Param       from        query string false "Periods ending on or after (RFC3339 or YYYY-MM-DD)"
// @Param       to          query string false "Periods starting on or before (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} pagination.PageResponse[models.PeriodProjection] "Paginated projections"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Obligation not found"
// @Router      /obligations/{id}/projections [get]
func (h *ObligationHandler) ListProjections(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter services.ProjectionFilter
	if v := c.Query("period_type"); v != "" {
		pt := period.Type(v)
		if !pt.Valid() {
			respondWithError(c, apperrors.ErrInvalidPeriodType)
			return
		}
		filter.PeriodType = &pt
	}
	if filter.From, err = queryTime(c, "from"); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.projectionService.ListForObligation(c.Request.Context(), principal, id, filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
