package controller

import (
	"examhub_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseIDParam 解析路径中的正整数 id，失败时直接返回 400
func parseIDParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func bindJSON(ctx *gin.Context, obj interface{}) bool {
	if err := ctx.ShouldBindJSON(obj); err != nil {
		util.BadRequest(ctx, util.ValidationMessage(err))
		return false
	}
	return true
}
