package delivery

import (
	"net/http"

	authdto "keepr-backend/internal/auth/dto"
	"keepr-backend/internal/auth/usecase"
	"keepr-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler serves session tokens for local development, where no external sign-in is available
type AuthHandler struct {
	authUsecase usecase.AuthUsecase
	logger      *zap.Logger
}

func NewAuthHandler(authUsecase usecase.AuthUsecase, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authUsecase: authUsecase, logger: logger}
}

// DevToken handles POST /api/auth/dev-token
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req authdto.DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	resp, err := h.authUsecase.DevSignIn(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
