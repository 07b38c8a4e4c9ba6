package v1

import (
	"net/http"

	"go-interview-backend/internal/delivery/http/middleware"
	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUC domain.AuthUsecase
}

func NewAuthHandler(protected *gin.RouterGroup, authUC domain.AuthUsecase) {
	handler := &AuthHandler{authUC: authUC}

	protectedAuth := protected.Group("/auth")
	{
		protectedAuth.GET("/me", handler.Me)
	}
}

// Me godoc
// @Summary      Current user
// @Description  Returns the authenticated user with the company used to scope interviews
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
// @Security     BearerAuth
func (h *AuthHandler) Me(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	user, err := h.authUC.GetCurrentUser(c.Request.Context(), actor.UserID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "User details", gin.H{
		"user":  user,
		"actor": gin.H{"role": actor.Role, "company_id": actor.CompanyID},
	})
}
