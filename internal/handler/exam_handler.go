package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/proctorhq/examhall-backend/internal/middleware"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
	"github.com/proctorhq/examhall-backend/internal/validator"
)

// ExamHandler handles admin exam CRUD and lifecycle transitions.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

func paginationQuery(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// List godoc
// GET /api/v1/admin/exams?status=&page=&per_page=
func (h *ExamHandler) List(c *gin.Context) {
	var statusFilter *model.ExamStatus
	if raw := c.Query("status"); raw != "" {
		status := model.ExamStatus(raw)
		switch status {
		case model.ExamStatusDraft, model.ExamStatusScheduled, model.ExamStatusOngoing, model.ExamStatusClosed:
			statusFilter = &status
		default:
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
	}

	page, perPage := paginationQuery(c)
	exams, pagination, err := h.examService.List(c.Request.Context(), statusFilter, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// Get godoc
// GET /api/v1/admin/exams/:exam_id
// Returns the exam with its full question set, answer keys included.
func (h *ExamHandler) Get(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetWithQuestions(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Create godoc
// POST /api/v1/admin/exams
func (h *ExamHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:        req.Title,
		Code:         req.Code,
		Department:   req.Department,
		Instructor:   req.Instructor,
		Description:  req.Description,
		DurationMins: req.DurationMins,
		PassScore:    req.PassScore,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Status:       model.ExamStatusDraft,
		AuthorID:     claims.UserID,
	}

	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// Update godoc
// PUT /api/v1/admin/exams/:exam_id
func (h *ExamHandler) Update(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Department != "" {
		exam.Department = req.Department
	}
	if req.Instructor != nil {
		exam.Instructor = *req.Instructor
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.DurationMins > 0 {
		exam.DurationMins = req.DurationMins
	}
	if req.PassScore != nil {
		exam.PassScore = *req.PassScore
	}
	if req.StartDate != nil {
		exam.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		exam.EndDate = req.EndDate
	}

	if err := h.examService.Update(c.Request.Context(), claims.UserID, exam); err != nil {
		switch {
		case errors.Is(err, service.ErrNotExamAuthor):
			response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
		case errors.Is(err, repository.ErrDuplicateCode):
			response.Fail(c, http.StatusConflict, response.ErrConflict)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateStatus godoc
// PATCH /api/v1/admin/exams/:exam_id/status
// Moves the exam through its lifecycle. Entering a startable status warms the
// Redis caches; leaving one evicts them.
func (h *ExamHandler) UpdateStatus(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.UpdateExamStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.UpdateStatus(c.Request.Context(), examID, req.Status); err != nil {
		switch {
		case errors.Is(err, service.ErrBadTransition):
			response.Fail(c, http.StatusConflict, response.ErrConflict)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": req.Status})
}

// Delete godoc
// DELETE /api/v1/admin/exams/:exam_id
// Only DRAFT exams may be deleted.
func (h *ExamHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotExamAuthor):
			response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
		case errors.Is(err, service.ErrExamNotDraft):
			response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "deleted"})
}
