package delivery

import (
	"net/http"

	"keepr-backend/internal/serviceinfo/usecase"
	"keepr-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ServiceInfoHandler struct {
	lookup *usecase.LookupUsecase
	logger *zap.Logger
}

func NewServiceInfoHandler(lookup *usecase.LookupUsecase, logger *zap.Logger) *ServiceInfoHandler {
	return &ServiceInfoHandler{lookup: lookup, logger: logger}
}

// GetServiceInfo resolves cancellation and support contacts for a merchant
// GET /api/service-info?merchant=<name>
func (h *ServiceInfoHandler) GetServiceInfo(c *gin.Context) {
	result, err := h.lookup.Lookup(c.Request.Context(), c.Query("merchant"))
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
