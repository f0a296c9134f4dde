package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "famfin/internal/errors"
	"famfin/internal/services"
)

// FeedHandler handles events from the external transaction feed.
type FeedHandler struct {
	feedService  services.FeedServicer
	auditService services.AuditServicer
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(feedService services.FeedServicer, auditService services.AuditServicer) *FeedHandler {
	return &FeedHandler{feedService: feedService, auditService: auditService}
}

// FeedEventRequest represents one dated monetary event from the feed
type FeedEventRequest struct {
	ExternalID  string  `json:"external_id" binding:"required,max=128"`
	AmountCents int64   `json:"amount_cents" binding:"required,gt=0"`
	Date        string  `json:"date" binding:"required"`
	StreamID    string  `json:"stream_id" binding:"required,max=128"`
	Cadence     string  `json:"cadence"`
	AccountID   *string `json:"account_id"`
	Description string  `json:"description" binding:"max=500"`
}

// WebhookEventRequest is a feed event delivered by the aggregator's webhook, which
// names the owner itself.
type WebhookEventRequest struct {
	FeedEventRequest
	OwnerID string `json:"owner_id" binding:"required"`
	GroupID string `json:"group_id"`
}

func (r FeedEventRequest) toEvent() (services.FeedEvent, error) {
	date, err := parseFlexibleTime(r.Date)
	if err != nil {
		return services.FeedEvent{}, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
	return services.FeedEvent{
		ExternalID:  r.ExternalID,
		AmountCents: r.AmountCents,
		Date:        date,
		StreamID:    r.StreamID,
		Cadence:     r.Cadence,
		AccountID:   r.AccountID,
		Description: r.Description,
	}, nil
}

// IngestEvent handles a feed event posted by an authenticated caller
// @Summary     Ingest a feed event
// @Description Record a feed transaction against the obligation linked to its recurrence stream
// @Tags        feed
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body FeedEventRequest true "Feed event"
// @Success     201 {object} services.FeedResult "Event recorded"
// @Success     200 {object} services.FeedResult "Event already recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stream not linked"
// @Router      /feed/events [post]
func (h *FeedHandler) IngestEvent(c *gin.Context) {
	principal, err := getPrincipal(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req FeedEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	h.ingest(c, principal, req)
}

// IngestWebhook handles a feed event pushed by the aggregator
// @Summary     Feed webhook
// @Description Server-to-server delivery of a feed event on behalf of the named owner
// @Tags        feed
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body WebhookEventRequest true "Feed event with owner"
// @Success     201 {object} services.FeedResult "Event recorded"
// @Success     200 {object} services.FeedResult "Event already recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Stream not linked"
// @Router      /feed/webhook [post]
func (h *FeedHandler) IngestWebhook(c *gin.Context) {
	var req WebhookEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	h.ingest(c, services.Principal{ID: req.OwnerID, GroupID: req.GroupID}, req.FeedEventRequest)
}

func (h *FeedHandler) ingest(c *gin.Context, principal services.Principal, req FeedEventRequest) {
	ev, err := req.toEvent()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.feedService.IngestFeedEvent(c.Request.Context(), principal, ev)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, result)
		return
	}

	h.auditService.Log(principal.ID, "INGEST_FEED_EVENT", "transaction", result.Transaction.ID, c.ClientIP(),
		map[string]interface{}{"external_id": req.ExternalID, "stream_id": req.StreamID})

	c.JSON(http.StatusCreated, result)
}
