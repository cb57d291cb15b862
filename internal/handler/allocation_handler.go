package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type allocationService interface {
	Checkout(ctx context.Context, configID string) (*service.EditSession, error)
	Probe(ctx context.Context, configID string, req dto.ProbeRequest) (*dto.ProbeResponse, error)
	CommittedAssignments(ctx context.Context, configID string) ([]models.ClassAssignment, error)
}

// AllocationHandler exposes the allocation engine over HTTP. Each mutating
// request checks out an exclusive edit session, applies the change, and
// commits; a rejected change discards without persisting.
type AllocationHandler struct {
	service allocationService
}

// NewAllocationHandler builds a new handler.
func NewAllocationHandler(service allocationService) *AllocationHandler {
	return &AllocationHandler{service: service}
}

// List returns the committed assignment set for a configuration.
func (h *AllocationHandler) List(c *gin.Context) {
	assignments, err := h.service.CommittedAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Probe reports whether a drop would pass validation, plus room availability.
func (h *AllocationHandler) Probe(c *gin.Context) {
	var req dto.ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid probe payload"))
		return
	}
	result, err := h.service.Probe(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Propose validates and inserts one assignment.
func (h *AllocationHandler) Propose(c *gin.Context) {
	var payload dto.AssignmentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	ctx := c.Request.Context()
	session, err := h.service.Checkout(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := session.Propose(payload)
	if err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	if !result.Accepted {
		session.Discard()
		response.JSON(c, http.StatusUnprocessableEntity, result, nil)
		return
	}
	commit, err := session.Commit(ctx)
	if err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"result": result, "commit": commit})
}

// Move relocates an assignment to a new timeslot and room atomically.
func (h *AllocationHandler) Move(c *gin.Context) {
	var req dto.MoveAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid move payload"))
		return
	}
	ctx := c.Request.Context()
	session, err := h.service.Checkout(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := session.Move(c.Param("assignmentId"), req)
	if err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	if !result.Accepted {
		session.Discard()
		response.JSON(c, http.StatusUnprocessableEntity, result, nil)
		return
	}
	commit, err := session.Commit(ctx)
	if err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"result": result, "commit": commit}, nil)
}

// Remove deletes an assignment. userDirected=true overrides a row lock.
func (h *AllocationHandler) Remove(c *gin.Context) {
	userDirected, _ := strconv.ParseBool(c.DefaultQuery("userDirected", "false"))
	ctx := c.Request.Context()
	session, err := h.service.Checkout(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := session.Remove(c.Param("assignmentId"), userDirected); err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	if _, err := session.Commit(ctx); err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkApply applies a batch of changes transactionally.
func (h *AllocationHandler) BulkApply(c *gin.Context) {
	var req dto.BulkApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	ctx := c.Request.Context()
	session, err := h.service.Checkout(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := session.BulkApply(req)
	if err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	if !result.Applied {
		session.Discard()
		response.JSON(c, http.StatusUnprocessableEntity, result, nil)
		return
	}
	commit, err := session.Commit(ctx)
	if err != nil {
		session.Discard()
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"result": result, "commit": commit}, nil)
}
