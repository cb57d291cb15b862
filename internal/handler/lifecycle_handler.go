package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type lifecycleService interface {
	Create(ctx context.Context, req dto.CreateConfigRequest) (*models.TimetableConfig, error)
	Clone(ctx context.Context, req dto.CloneConfigRequest) (*models.TimetableConfig, error)
	Get(ctx context.Context, id string) (*models.TimetableConfig, error)
	Publish(ctx context.Context, id string, req dto.PublishConfigRequest) (*models.TimetableConfig, error)
	Lock(ctx context.Context, id string) (*models.TimetableConfig, error)
	Archive(ctx context.Context, id string) (*models.TimetableConfig, error)
	SetPinned(ctx context.Context, id string, pinned bool) (*models.TimetableConfig, error)
}

// LifecycleHandler exposes configuration lifecycle endpoints.
type LifecycleHandler struct {
	service lifecycleService
}

// NewLifecycleHandler builds a new handler.
func NewLifecycleHandler(service lifecycleService) *LifecycleHandler {
	return &LifecycleHandler{service: service}
}

// Create registers a fresh DRAFT configuration.
func (h *LifecycleHandler) Create(c *gin.Context) {
	var req dto.CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid configuration payload"))
		return
	}
	cfg, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// Clone copies an existing configuration into a new DRAFT for another term.
func (h *LifecycleHandler) Clone(c *gin.Context) {
	var req dto.CloneConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clone payload"))
		return
	}
	if req.FromConfigID == "" {
		req.FromConfigID = c.Param("id")
	}
	cfg, err := h.service.Clone(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// Get returns a configuration and records the access.
func (h *LifecycleHandler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Publish moves a configuration to PUBLISHED, gated on completeness. An
// empty body publishes with the default threshold.
func (h *LifecycleHandler) Publish(c *gin.Context) {
	var req dto.PublishConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid publish payload"))
		return
	}
	cfg, err := h.service.Publish(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Lock freezes a configuration for the semester.
func (h *LifecycleHandler) Lock(c *gin.Context) {
	cfg, err := h.service.Lock(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Archive retires a configuration.
func (h *LifecycleHandler) Archive(c *gin.Context) {
	cfg, err := h.service.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Pin toggles the pinned flag.
func (h *LifecycleHandler) Pin(c *gin.Context) {
	var req dto.PinConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pin payload"))
		return
	}
	cfg, err := h.service.SetPinned(c.Request.Context(), c.Param("id"), req.Pinned)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
