package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
	"github.com/proctorhq/examhall-backend/internal/validator"
)

// QuestionHandler handles admin question CRUD within an exam.
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

func questionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// List godoc
// GET /api/v1/admin/exams/:exam_id/questions
func (h *QuestionHandler) List(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	questions, err := h.questionService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// Create godoc
// POST /api/v1/admin/exams/:exam_id/questions
// Adds a question and recomputes the exam's total marks.
func (h *QuestionHandler) Create(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q := &model.Question{
		ExamID:          examID,
		Text:            req.Text,
		Description:     req.Description,
		Options:         req.Options,
		CorrectOptionID: req.CorrectOptionID,
		Explanation:     req.Explanation,
		Marks:           req.Marks,
		Position:        req.Position,
	}

	if err := h.questionService.Create(c.Request.Context(), q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidQuestion,
			map[string]string{"question": err.Error()})
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// Update godoc
// PUT /api/v1/admin/exams/:exam_id/questions/:question_id
func (h *QuestionHandler) Update(c *gin.Context) {
	if _, ok := examIDParam(c); !ok {
		return
	}
	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	var req model.UpdateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questionService.GetByID(c.Request.Context(), questionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if req.Text != "" {
		q.Text = req.Text
	}
	if req.Description != nil {
		q.Description = *req.Description
	}
	if len(req.Options) > 0 {
		q.Options = req.Options
	}
	if req.CorrectOptionID != "" {
		q.CorrectOptionID = req.CorrectOptionID
	}
	if req.Explanation != nil {
		q.Explanation = *req.Explanation
	}
	if req.Marks > 0 {
		q.Marks = req.Marks
	}
	if req.Position != nil {
		q.Position = *req.Position
	}

	if err := h.questionService.Update(c.Request.Context(), q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidQuestion,
			map[string]string{"question": err.Error()})
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Delete godoc
// DELETE /api/v1/admin/exams/:exam_id/questions/:question_id
func (h *QuestionHandler) Delete(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), examID, questionID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "deleted"})
}
