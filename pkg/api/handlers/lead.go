package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/joselopes-lab/brokerdesk/pkg/api/errors"
	"github.com/joselopes-lab/brokerdesk/pkg/leads"
	"github.com/joselopes-lab/brokerdesk/pkg/metrics"
	"github.com/joselopes-lab/brokerdesk/pkg/middleware"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/transition"
)

// LeadHandler exposes the kanban board, manual lead entry, stage moves
// and the transition history.
type LeadHandler struct {
	leads       *leads.Service
	transitions *transition.Service
	metrics     *metrics.Metrics
}

// NewLeadHandler creates a new lead handler. metrics may be nil.
func NewLeadHandler(leadSvc *leads.Service, transitionSvc *transition.Service, m *metrics.Metrics) *LeadHandler {
	return &LeadHandler{
		leads:       leadSvc,
		transitions: transitionSvc,
		metrics:     m,
	}
}

// Board returns the broker's leads grouped by pipeline stage.
func (h *LeadHandler) Board(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	board, err := h.leads.Board(ctx, middleware.BrokerID(c))
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, board)
}

// Create registers a manually entered lead.
func (h *LeadHandler) Create(c echo.Context) error {
	var req models.CreateLeadRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	lead, err := h.leads.Create(ctx, middleware.BrokerID(c), req)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusCreated, lead)
}

// Move performs a stage move for the dragged lead and returns the
// updated lead for board feedback.
func (h *LeadHandler) Move(c echo.Context) error {
	leadID := c.Param("id")

	var req models.MoveLeadRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	brokerID := middleware.BrokerID(c)

	// Ownership check before the engine touches anything.
	if _, err := h.leads.Get(ctx, brokerID, leadID); err != nil {
		return apierrors.FromDomain(c, err)
	}

	lead, err := h.transitions.MoveLead(ctx, leadID, req.ToStageID, brokerID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	if h.metrics != nil {
		h.metrics.LeadMoves.Inc()
	}
	return c.JSON(http.StatusOK, lead)
}

// History returns the lead's transition entries, oldest first.
func (h *LeadHandler) History(c echo.Context) error {
	leadID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.leads.Get(ctx, middleware.BrokerID(c), leadID); err != nil {
		return apierrors.FromDomain(c, err)
	}

	entries, err := h.transitions.History(ctx, leadID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}
