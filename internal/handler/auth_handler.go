package handler

import (
	"net/http"

	"archive-depot-go/internal/service"
	"archive-depot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责用共享密钥换取访问令牌。
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// TokenRequest 定义了获取令牌 API 的请求体结构。
type TokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// IssueToken 校验共享密钥并签发令牌。
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("IssueToken: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载：secret 不能为空")
		return
	}

	tok, expiresAt, err := h.authService.Login(req.Secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "共享密钥错误", "data": nil})
		return
	}

	log.Info("Token issued successfully")
	writeOK(c, http.StatusOK, "success", gin.H{
		"token":     tok,
		"expiresAt": expiresAt.Unix(),
	})
}
