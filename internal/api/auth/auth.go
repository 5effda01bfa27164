package auth

import (
	"log/slog"
	"net/http"

	"uptask/internal/api/httpx"
	"uptask/internal/api/middleware"
	"uptask/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 提供账号相关接口。
type Handler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *service.AuthService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type createAccountRequest struct {
	Name                 string `json:"name" binding:"required"`
	Email                string `json:"email" binding:"required,email"`
	Password             string `json:"password" binding:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type newPasswordRequest struct {
	Password             string `json:"password" binding:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

type profileRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type updatePasswordRequest struct {
	CurrentPassword      string `json:"current_password" binding:"required"`
	Password             string `json:"password" binding:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

type checkPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Register 注册路由。public 不需要认证，authed 已挂载认证中间件。
func (h *Handler) Register(public, authed gin.IRoutes, loginLimit gin.HandlerFunc) {
	public.POST("/create-account", h.CreateAccount)
	public.POST("/confirm-account", h.ConfirmAccount)
	public.POST("/login", loginLimit, h.Login)
	public.POST("/request-code", h.RequestCode)
	public.POST("/forgot-password", h.ForgotPassword)
	public.POST("/validate-token", h.ValidateToken)
	public.POST("/update-password/:token", h.UpdatePasswordWithToken)

	authed.GET("/user", h.User)
	authed.PUT("/profile", h.UpdateProfile)
	authed.POST("/update-password", h.UpdatePassword)
	authed.POST("/check-password", h.CheckPassword)
}

// CreateAccount 注册新账号并发送确认邮件。
func (h *Handler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.CreateAccount(c.Request.Context(), req.Name, req.Email, req.Password); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Account created, check your email to confirm it")
}

// ConfirmAccount 使用验证码确认账号。
func (h *Handler) ConfirmAccount(c *gin.Context) {
	var req tokenRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.ConfirmAccount(c.Request.Context(), req.Token); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Account confirmed")
}

// Login 校验用户并返回 JWT 字符串。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, token)
}

// RequestCode 重新发送确认验证码。
func (h *Handler) RequestCode(c *gin.Context) {
	var req emailRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.RequestConfirmationCode(c.Request.Context(), req.Email); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "A new token was sent to your email")
}

// ForgotPassword 发送密码找回验证码。
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Check your email for instructions")
}

// ValidateToken 校验验证码是否有效。
func (h *Handler) ValidateToken(c *gin.Context) {
	var req tokenRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.ValidateToken(c.Request.Context(), req.Token); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Valid token, set your new password")
}

// UpdatePasswordWithToken 使用验证码设置新密码。
//
// POST /api/auth/update-password/:token
func (h *Handler) UpdatePasswordWithToken(c *gin.Context) {
	var req newPasswordRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.UpdatePasswordWithToken(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Password updated")
}

// User 返回当前登录用户。
func (h *Handler) User(c *gin.Context) {
	user, err := h.svc.CurrentUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile 修改姓名与邮箱。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.UpdateProfile(c.Request.Context(), middleware.UserID(c), req.Name, req.Email); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Profile updated")
}

// UpdatePassword 校验当前密码后修改密码。
func (h *Handler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.UpdatePassword(c.Request.Context(), middleware.UserID(c), req.CurrentPassword, req.Password); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Password updated")
}

// CheckPassword 校验当前用户的密码。
func (h *Handler) CheckPassword(c *gin.Context) {
	var req checkPasswordRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := h.svc.CheckPassword(c.Request.Context(), middleware.UserID(c), req.Password); err != nil {
		httpx.WriteError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, "Password is correct")
}
