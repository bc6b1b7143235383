package controller

import (
	"examhub_backend/internal/middleware"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ResultController struct {
	ResultService *service.ResultService
}

func NewResultController(results *service.ResultService) *ResultController {
	return &ResultController{ResultService: results}
}

type HistoryResponse struct {
	Results []service.AttemptSummary `json:"results"`
}

type CertificateResponse struct {
	Certificate *service.Certificate `json:"certificate"`
}

// History godoc
// @Summary 历史成绩
// @Tags 成绩
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} HistoryResponse
// @Router /api/results/history [get]
func (c *ResultController) History(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	results, err := c.ResultService.History(ctx.Request.Context(), user.ID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, HistoryResponse{Results: results})
}

// Certificate godoc
// @Summary 证书
// @Description 只对已通过的记录签发，同一记录的证书编号不变
// @Tags 成绩
// @Produce  json
// @Security BearerAuth
// @Param   attemptId path int true "记录ID"
// @Success 200 {object} CertificateResponse
// @Failure 400 {object} util.ErrorResponse "未通过"
// @Failure 404 {object} util.ErrorResponse
// @Router /api/results/certificate/{attemptId} [get]
func (c *ResultController) Certificate(ctx *gin.Context) {
	attemptID, ok := parseIDParam(ctx, "attemptId")
	if !ok {
		return
	}

	user := middleware.CurrentUser(ctx)
	cert, err := c.ResultService.Certificate(ctx.Request.Context(), user.ID, attemptID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, CertificateResponse{Certificate: cert})
}

// Stats godoc
// @Summary 个人统计
// @Tags 成绩
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} service.PersonalStats
// @Router /api/results/stats [get]
func (c *ResultController) Stats(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	stats, err := c.ResultService.PersonalStats(ctx.Request.Context(), user.ID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
