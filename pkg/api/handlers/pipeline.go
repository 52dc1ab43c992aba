package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/joselopes-lab/brokerdesk/pkg/api/errors"
	"github.com/joselopes-lab/brokerdesk/pkg/middleware"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/pipeline"
)

const requestTimeout = 10 * time.Second

// PipelineHandler exposes the pipeline editor endpoints.
type PipelineHandler struct {
	service *pipeline.Service
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(service *pipeline.Service) *PipelineHandler {
	return &PipelineHandler{service: service}
}

// Get returns the broker's pipeline, seeding the defaults on first
// access.
func (h *PipelineHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	stages, err := h.service.GetOrCreate(ctx, middleware.BrokerID(c))
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, stages)
}

// Save applies the editor's proposed stage list.
func (h *PipelineHandler) Save(c echo.Context) error {
	var req models.SaveStagesRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	stages, err := h.service.SaveEdits(ctx, middleware.BrokerID(c), req.Stages, req.DeletedStageIDs)
	if err != nil {
		if errors.Is(err, pipeline.ErrNothingToSave) {
			return c.JSON(http.StatusOK, map[string]any{
				"message": "nothing to save",
			})
		}
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, stages)
}
