package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/middleware"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
	"github.com/proctorhq/examhall-backend/internal/session"
	"github.com/proctorhq/examhall-backend/internal/validator"
)

// PortalHandler handles the candidate-facing exam surface: listing, starting,
// the attempt hot path, and results.
type PortalHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(attemptService *service.AttemptService, examService *service.ExamService) *PortalHandler {
	return &PortalHandler{attemptService: attemptService, examService: examService}
}

// failAttemptError maps domain errors from the attempt engine onto response
// codes. Unknown errors become 500s.
func failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrExamNotAvailable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, session.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, session.ErrAttemptNotFound), errors.Is(err, session.ErrNotStarted):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrIndexOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestion)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func examIDParam(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

// ListExams godoc
// GET /api/v1/candidate/exams
// Lists exams the candidate may currently enter, with their attempt status
// overlaid so the client can route to entry, resume, or results.
func (h *PortalHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.examService.ListStartable(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	attempts, err := h.attemptService.ListMyAttempts(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	attemptByExam := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		attemptByExam[attempts[i].ExamID] = &attempts[i]
	}

	type portalExam struct {
		model.Exam
		AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
		Score         *int                 `json:"score,omitempty"`
	}

	entries := make([]portalExam, 0, len(exams))
	for _, e := range exams {
		entry := portalExam{Exam: e}
		if a, ok := attemptByExam[e.ID]; ok {
			entry.AttemptStatus = &a.Status
			entry.Score = a.Score
		}
		entries = append(entries, entry)
	}

	response.Success(c, http.StatusOK, gin.H{"exams": entries})
}

// StartAttempt godoc
// POST /api/v1/candidate/exams/:exam_id/start
// Creates or resumes the single attempt for this pair and returns the attempt
// together with the sanitized exam payload. A pair that already submitted gets
// ALREADY_SUBMITTED with the prior submission attached.
func (h *PortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	attempt, payload, err := h.attemptService.StartAttempt(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadySubmitted) {
			status, statusErr := h.attemptService.GetSubmissionStatus(c.Request.Context(), examID, claims.UserID)
			if statusErr == nil {
				response.FailWithData(c, http.StatusConflict, response.ErrAlreadySubmitted, gin.H{"submission": status})
				return
			}
		}
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt, "exam": payload})
}

// GetState godoc
// GET /api/v1/candidate/exams/:exam_id/state
// Resume payload after a reload: answers, flags, violations, remaining time.
func (h *PortalHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// RecordAnswer godoc
// PUT /api/v1/candidate/exams/:exam_id/answers/:question_id
// Incremental autosave of a single answer.
func (h *PortalHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	questionID := c.Param("question_id")
	if _, err := uuid.Parse(questionID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestion)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.RecordAnswer(c.Request.Context(), examID, claims.UserID, questionID, req.OptionID); err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// ToggleFlag godoc
// POST /api/v1/candidate/exams/:exam_id/flags/:question_id
func (h *PortalHandler) ToggleFlag(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	questionID := c.Param("question_id")
	if _, err := uuid.Parse(questionID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestion)
		return
	}

	flagged, err := h.attemptService.ToggleFlag(c.Request.Context(), examID, claims.UserID, questionID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "flagged": flagged})
}

// RecordViolation godoc
// POST /api/v1/candidate/exams/:exam_id/violations
// Counts one focus-loss event and returns the updated total.
func (h *PortalHandler) RecordViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Kind string `json:"kind" binding:"required,oneof=VISIBILITY_HIDDEN WINDOW_BLUR"`
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	count, err := h.attemptService.RecordViolation(c.Request.Context(), examID, claims.UserID, session.ViolationKind(req.Kind))
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"violations_count": count})
}

// Navigate godoc
// POST /api/v1/candidate/exams/:exam_id/navigate
// Records the candidate's current question index for resume.
func (h *PortalHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Index *int `json:"index" binding:"required,min=0"`
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Navigate(c.Request.Context(), examID, claims.UserID, *req.Index); err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"index": *req.Index})
}

// AcknowledgeWarning godoc
// POST /api/v1/candidate/exams/:exam_id/warning-ack
func (h *PortalHandler) AcknowledgeWarning(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	if err := h.attemptService.AcknowledgeWarning(c.Request.Context(), examID, claims.UserID); err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "acknowledged"})
}

// Submit godoc
// POST /api/v1/candidate/exams/:exam_id/submit
// Finalizes the attempt. Idempotent: a repeat call returns the same result.
func (h *PortalHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.FinalizeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Finalize(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetSubmissionStatus godoc
// GET /api/v1/candidate/exams/:exam_id/submission
// Entry screen pre-check: has this candidate already submitted?
func (h *PortalHandler) GetSubmissionStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	status, err := h.attemptService.GetSubmissionStatus(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// GetResult godoc
// GET /api/v1/candidate/exams/:exam_id/result
func (h *PortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetLastResult godoc
// GET /api/v1/candidate/last-result
// Serves the most recent finalized result from the display cache. Used by the
// results screen right after submit, before the client learns the exam id.
func (h *PortalHandler) GetLastResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	result, err := h.attemptService.GetLastResult(c.Request.Context(), claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ListMyResults godoc
// GET /api/v1/candidate/results
func (h *PortalHandler) ListMyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListMyAttempts(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
