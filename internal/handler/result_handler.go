package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
)

// ResultHandler handles the admin results and monitoring surface.
type ResultHandler struct {
	attemptService *service.AttemptService
	violationRepo  *repository.ViolationRepository
	attemptRepo    *repository.AttemptRepository
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(
	attemptService *service.AttemptService,
	violationRepo *repository.ViolationRepository,
	attemptRepo *repository.AttemptRepository,
) *ResultHandler {
	return &ResultHandler{
		attemptService: attemptService,
		violationRepo:  violationRepo,
		attemptRepo:    attemptRepo,
	}
}

// ListByExam godoc
// GET /api/v1/admin/exams/:exam_id/results?page=&per_page=
// Per-candidate results for an exam, newest submissions first.
func (h *ResultHandler) ListByExam(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	page, perPage := paginationQuery(c)
	results, total, err := h.attemptService.ListResultsByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	pagination := &response.Pagination{Page: page, PerPage: perPage}
	if total != nil {
		pagination.TotalItems = *total
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// Overview godoc
// GET /api/v1/admin/exams/:exam_id/overview
// Live proctoring snapshot: in-progress count and per-candidate violation
// totals from the durable log.
func (h *ResultHandler) Overview(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	inProgress, err := h.attemptRepo.CountInProgressByExam(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	violationCounts, err := h.violationRepo.CountsByExam(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"in_progress_count": inProgress,
		"violation_counts":  violationCounts,
	})
}

// ViolationLog godoc
// GET /api/v1/admin/exams/:exam_id/candidates/:candidate_id/violations
// The ordered violation log for one attempt.
func (h *ResultHandler) ViolationLog(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	candidateID, ok := candidateIDParam(c)
	if !ok {
		return
	}

	records, err := h.violationRepo.ListByAttempt(c.Request.Context(), examID, candidateID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if records == nil {
		records = []repository.ViolationRecord{}
	}

	response.Success(c, http.StatusOK, gin.H{"violations": records})
}
