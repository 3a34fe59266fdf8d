package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
	"github.com/proctorhq/examhall-backend/internal/validator"
)

// CandidateHandler handles admin management of candidate accounts.
type CandidateHandler struct {
	candidateService *service.CandidateService
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(candidateService *service.CandidateService) *CandidateHandler {
	return &CandidateHandler{candidateService: candidateService}
}

func candidateIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("candidate_id"))
	if err != nil || id < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// List godoc
// GET /api/v1/admin/candidates?status=&page=&per_page=
func (h *CandidateHandler) List(c *gin.Context) {
	var statusFilter *model.CandidateStatus
	if raw := c.Query("status"); raw != "" {
		status := model.CandidateStatus(raw)
		switch status {
		case model.CandidateStatusActive, model.CandidateStatusPending, model.CandidateStatusDisabled:
			statusFilter = &status
		default:
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
	}

	page, perPage := paginationQuery(c)
	candidates, pagination, err := h.candidateService.List(c.Request.Context(), statusFilter, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"candidates": candidates}, pagination)
}

// Get godoc
// GET /api/v1/admin/candidates/:candidate_id
func (h *CandidateHandler) Get(c *gin.Context) {
	id, ok := candidateIDParam(c)
	if !ok {
		return
	}

	candidate, err := h.candidateService.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"candidate": candidate})
}

// Create godoc
// POST /api/v1/admin/candidates
func (h *CandidateHandler) Create(c *gin.Context) {
	var req model.RegisterCandidateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	candidate, err := h.candidateService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"candidate": candidate})
}

// Update godoc
// PUT /api/v1/admin/candidates/:candidate_id
// Disabling a candidate also revokes their active session.
func (h *CandidateHandler) Update(c *gin.Context) {
	id, ok := candidateIDParam(c)
	if !ok {
		return
	}

	var req model.UpdateCandidateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	candidate, err := h.candidateService.Update(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"candidate": candidate})
}

// Delete godoc
// DELETE /api/v1/admin/candidates/:candidate_id
func (h *CandidateHandler) Delete(c *gin.Context) {
	id, ok := candidateIDParam(c)
	if !ok {
		return
	}

	if err := h.candidateService.Delete(c.Request.Context(), id); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "deleted"})
}

// ResetSession godoc
// POST /api/v1/admin/candidates/:candidate_id/reset-session
// Releases the single-device lock so the candidate can log in again after a
// crashed or abandoned session.
func (h *CandidateHandler) ResetSession(c *gin.Context) {
	id, ok := candidateIDParam(c)
	if !ok {
		return
	}

	if err := h.candidateService.ResetSession(c.Request.Context(), id); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "session_reset"})
}
