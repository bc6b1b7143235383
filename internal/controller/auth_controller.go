package controller

import (
	"examhub_backend/internal/middleware"
	"examhub_backend/internal/model"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// LoginRequest 学生只需 DNI（首次登录需姓名），管理员需要密码
// swagger:model LoginRequest
type LoginRequest struct {
	DNI      string  `json:"dni" binding:"required"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

type UserResponse struct {
	User *model.User `json:"user"`
}

type AvatarRequest struct {
	Avatar string `json:"avatar" binding:"required"`
}

type AvatarResponse struct {
	Message string `json:"message"`
	Avatar  string `json:"avatar"`
}

// Login godoc
// @Summary 登录 / 学生首次登录自动注册
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body LoginRequest true "登录信息"
// @Success 200 {object} service.LoginResult
// @Failure 400 {object} util.ErrorResponse "参数错误或缺少密码"
// @Failure 401 {object} util.ErrorResponse "密码错误"
// @Router /api/auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if !bindJSON(ctx, &req) {
		return
	}

	result, err := c.AuthService.Login(ctx.Request.Context(), &service.LoginInput{
		Code:     req.DNI,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// Me godoc
// @Summary 当前用户
// @Tags 认证
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} util.ErrorResponse
// @Router /api/auth/me [get]
func (c *AuthController) Me(ctx *gin.Context) {
	util.Success(ctx, UserResponse{User: middleware.CurrentUser(ctx)})
}

// UpdateAvatar godoc
// @Summary 更新头像
// @Description 接收 base64 data URL（最大 500KB），上传到配置的存储
// @Tags 认证
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body AvatarRequest true "头像"
// @Success 200 {object} AvatarResponse
// @Failure 400 {object} util.ErrorResponse
// @Router /api/auth/avatar [put]
func (c *AuthController) UpdateAvatar(ctx *gin.Context) {
	var req AvatarRequest
	if !bindJSON(ctx, &req) {
		return
	}

	user := middleware.CurrentUser(ctx)
	url, err := c.AuthService.UpdateAvatar(ctx.Request.Context(), user.ID, req.Avatar)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, AvatarResponse{Message: "avatar updated", Avatar: url})
}

// Logout godoc
// @Summary 退出登录
// @Description 启用 Redis 时当前 token 立即失效
// @Tags 认证
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.MessageResponse
// @Router /api/auth/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	if err := c.AuthService.Logout(ctx.Request.Context(), util.GetUserFromContext(ctx)); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Message(ctx, "logged out")
}
