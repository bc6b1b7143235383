package controller

import (
	"bytes"
	"examhub_backend/internal/middleware"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

const exportFilename = "exam-results.csv"

type AdminController struct {
	AdminService *service.AdminService
}

func NewAdminController(admin *service.AdminService) *AdminController {
	return &AdminController{AdminService: admin}
}

type AdminExamListResponse struct {
	Exams []service.AdminExam `json:"exams"`
}

type AdminQuestionListResponse struct {
	Questions []service.AdminQuestion `json:"questions"`
}

type AdminResultListResponse struct {
	Results []service.ResultRow `json:"results"`
}

type RankingResponse struct {
	Ranking []service.RankingEntry `json:"ranking"`
}

type AdminUserListResponse struct {
	Users []service.AdminUser `json:"users"`
}

type ExamCreatedResponse struct {
	Message string `json:"message"`
	ExamID  uint   `json:"examId"`
}

type ExamDeletedResponse struct {
	Message     string `json:"message"`
	Deactivated bool   `json:"deactivated"`
}

// Stats godoc
// @Summary 总体统计
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} service.AdminStats
// @Failure 403 {object} util.ErrorResponse
// @Router /api/admin/stats [get]
func (c *AdminController) Stats(ctx *gin.Context) {
	stats, err := c.AdminService.Stats(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// Results godoc
// @Summary 最近 500 条已完成记录
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} AdminResultListResponse
// @Router /api/admin/results [get]
func (c *AdminController) Results(ctx *gin.Context) {
	results, err := c.AdminService.Results(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, AdminResultListResponse{Results: results})
}

// ResultDetail godoc
// @Summary 记录详情（含逐题回顾）
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "记录ID"
// @Success 200 {object} service.ReviewDetail
// @Failure 404 {object} util.ErrorResponse
// @Router /api/admin/results/{id} [get]
func (c *AdminController) ResultDetail(ctx *gin.Context) {
	attemptID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.AdminService.ResultDetail(ctx.Request.Context(), attemptID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// Ranking godoc
// @Summary 学生排行榜
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} RankingResponse
// @Router /api/admin/ranking [get]
func (c *AdminController) Ranking(ctx *gin.Context) {
	ranking, err := c.AdminService.Ranking(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, RankingResponse{Ranking: ranking})
}

// Users godoc
// @Summary 用户列表
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} AdminUserListResponse
// @Router /api/admin/users [get]
func (c *AdminController) Users(ctx *gin.Context) {
	users, err := c.AdminService.Users(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, AdminUserListResponse{Users: users})
}

// ListExams godoc
// @Summary 全部考试
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} AdminExamListResponse
// @Router /api/admin/exams [get]
func (c *AdminController) ListExams(ctx *gin.Context) {
	exams, err := c.AdminService.ListExams(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, AdminExamListResponse{Exams: exams})
}

// Questions godoc
// @Summary 考试题目（含答案与解析）
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "考试ID"
// @Success 200 {object} AdminQuestionListResponse
// @Failure 404 {object} util.ErrorResponse
// @Router /api/admin/exams/{id}/questions [get]
func (c *AdminController) Questions(ctx *gin.Context) {
	examID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	questions, err := c.AdminService.Questions(ctx.Request.Context(), examID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, AdminQuestionListResponse{Questions: questions})
}

// CreateExam godoc
// @Summary 创建考试
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.CreateExamInput true "考试与题目"
// @Success 201 {object} ExamCreatedResponse
// @Failure 400 {object} util.ErrorResponse
// @Router /api/admin/exams [post]
func (c *AdminController) CreateExam(ctx *gin.Context) {
	var req service.CreateExamInput
	if !bindJSON(ctx, &req) {
		return
	}

	user := middleware.CurrentUser(ctx)
	exam, err := c.AdminService.CreateExam(ctx.Request.Context(), user.ID, &req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, ExamCreatedResponse{Message: "exam created", ExamID: exam.ID})
}

// UpdateExam godoc
// @Summary 编辑考试
// @Description 未提供的字段保持不变；提供 questions 时整体替换题目
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "考试ID"
// @Param   body body service.UpdateExamInput true "要修改的字段"
// @Success 200 {object} util.MessageResponse
// @Failure 400 {object} util.ErrorResponse
// @Failure 404 {object} util.ErrorResponse
// @Router /api/admin/exams/{id} [put]
func (c *AdminController) UpdateExam(ctx *gin.Context) {
	examID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req service.UpdateExamInput
	if !bindJSON(ctx, &req) {
		return
	}

	if _, err := c.AdminService.UpdateExam(ctx.Request.Context(), examID, &req); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Message(ctx, "exam updated")
}

// DeleteExam godoc
// @Summary 删除考试
// @Description 已有作答记录的考试只会被停用
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "考试ID"
// @Success 200 {object} ExamDeletedResponse
// @Failure 404 {object} util.ErrorResponse
// @Router /api/admin/exams/{id} [delete]
func (c *AdminController) DeleteExam(ctx *gin.Context) {
	examID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	deactivated, err := c.AdminService.DeleteExam(ctx.Request.Context(), examID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	msg := "exam deleted"
	if deactivated {
		msg = "exam deactivated (it has attempts)"
	}
	util.Success(ctx, ExamDeletedResponse{Message: msg, Deactivated: deactivated})
}

// ExportResults godoc
// @Summary 导出成绩 CSV
// @Tags 管理
// @Produce  text/csv
// @Security BearerAuth
// @Success 200 {file} file
// @Router /api/admin/export/results [get]
func (c *AdminController) ExportResults(ctx *gin.Context) {
	var buf bytes.Buffer
	if err := c.AdminService.ExportResults(ctx.Request.Context(), &buf); err != nil {
		util.RespondError(ctx, err)
		return
	}

	ctx.Header("Content-Disposition", "attachment; filename="+exportFilename)
	ctx.Data(http.StatusOK, util.MimeCSV+"; charset=utf-8", buf.Bytes())
}
