package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/joselopes-lab/brokerdesk/pkg/api/errors"
	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/metrics"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/routing"
)

// PublicHandler exposes the unauthenticated lead capture endpoint the
// marketing site posts to.
type PublicHandler struct {
	routing *routing.Service
	metrics *metrics.Metrics
}

// NewPublicHandler creates a new public handler. metrics may be nil.
func NewPublicHandler(routingSvc *routing.Service, m *metrics.Metrics) *PublicHandler {
	return &PublicHandler{routing: routingSvc, metrics: m}
}

// CaptureLead routes the visitor to a broker serving the requested city
// and replies with the WhatsApp handoff link.
func (h *PublicHandler) CaptureLead(c echo.Context) error {
	var req models.PublicLeadRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	resp, err := h.routing.RouteLead(ctx, req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RoutingFailures.WithLabelValues(domain.GetErrorCode(err)).Inc()
		}
		return apierrors.FromDomain(c, err)
	}

	if h.metrics != nil {
		h.metrics.LeadsRouted.
			WithLabelValues(models.CityKey(req.PropertyState, req.PropertyCity)).
			Inc()
	}
	return c.JSON(http.StatusCreated, resp)
}
