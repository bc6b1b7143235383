package controller

import (
	"examhub_backend/internal/middleware"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	CatalogService *service.CatalogService
	AttemptService *service.AttemptService
	ResultService  *service.ResultService
}

func NewExamController(catalog *service.CatalogService, attempts *service.AttemptService, results *service.ResultService) *ExamController {
	return &ExamController{
		CatalogService: catalog,
		AttemptService: attempts,
		ResultService:  results,
	}
}

type ExamListResponse struct {
	Exams []service.ExamSummary `json:"exams"`
}

type AnswerRequest struct {
	AttemptID      uint `json:"attemptId" binding:"required"`
	QuestionID     uint `json:"questionId" binding:"required"`
	SelectedOption *int `json:"selectedOption"`
}

type AnswerResponse struct {
	Success bool `json:"success"`
}

type FinishRequest struct {
	AttemptID   uint    `json:"attemptId" binding:"required"`
	StudentNote *string `json:"studentNote"`
}

// ListExams godoc
// @Summary 可参加的考试
// @Description 启用中的考试及当前用户的作答次数、最高分、是否通过、是否可以开始
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} ExamListResponse
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	exams, err := c.CatalogService.ListAvailable(ctx.Request.Context(), user.ID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, ExamListResponse{Exams: exams})
}

// Start godoc
// @Summary 开始或继续考试
// @Description 存在进行中的记录时返回同一记录、已保存的答案与剩余时间
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "考试ID"
// @Success 200 {object} service.StartResult
// @Failure 400 {object} util.ErrorResponse "截止、已通过、次数用完、超时或无题目"
// @Failure 404 {object} util.ErrorResponse "考试不存在"
// @Router /api/exams/{id}/start [post]
func (c *ExamController) Start(ctx *gin.Context) {
	examID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	user := middleware.CurrentUser(ctx)
	result, err := c.AttemptService.Start(ctx.Request.Context(), user.ID, examID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Answer godoc
// @Summary 保存答案
// @Description 同一题多次提交以最后一次为准；selectedOption 为 null 表示清空
// @Tags 考试
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "考试ID"
// @Param   body body AnswerRequest true "答案"
// @Success 200 {object} AnswerResponse
// @Failure 400 {object} util.ErrorResponse
// @Router /api/exams/{id}/answer [post]
func (c *ExamController) Answer(ctx *gin.Context) {
	examID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req AnswerRequest
	if !bindJSON(ctx, &req) {
		return
	}

	user := middleware.CurrentUser(ctx)
	err := c.AttemptService.RecordAnswer(ctx.Request.Context(), user.ID, examID, req.AttemptID, req.QuestionID, req.SelectedOption)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, AnswerResponse{Success: true})
}

// Finish godoc
// @Summary 交卷
// @Tags 考试
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "考试ID"
// @Param   body body FinishRequest true "交卷"
// @Success 200 {object} service.FinishResult
// @Failure 400 {object} util.ErrorResponse
// @Router /api/exams/{id}/finish [post]
func (c *ExamController) Finish(ctx *gin.Context) {
	examID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req FinishRequest
	if !bindJSON(ctx, &req) {
		return
	}

	user := middleware.CurrentUser(ctx)
	result, err := c.AttemptService.Finish(ctx.Request.Context(), user.ID, examID, req.AttemptID, req.StudentNote)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// AttemptDetail godoc
// @Summary 考试结果
// @Description 通过或用完全部次数后才返回逐题回顾
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "记录ID"
// @Success 200 {object} service.ReviewDetail
// @Failure 404 {object} util.ErrorResponse
// @Router /api/exams/attempt/{id} [get]
func (c *ExamController) AttemptDetail(ctx *gin.Context) {
	attemptID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	user := middleware.CurrentUser(ctx)
	detail, err := c.ResultService.ReviewDetail(ctx.Request.Context(), user.ID, attemptID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}
