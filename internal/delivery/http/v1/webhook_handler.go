package v1

import (
	"net/http"

	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	webhookUC domain.WebhookUsecase
}

func NewWebhookHandler(public *gin.RouterGroup, webhookUC domain.WebhookUsecase, limit gin.HandlerFunc) {
	handler := &WebhookHandler{webhookUC: webhookUC}
	public.POST("/webhooks/calendar/:provider", limit, handler.Notify)
}

// Notify godoc
// @Summary      Calendar push notification
// @Description  Receives provider change notifications and schedules a reconcile of the organizer's interviews
// @Tags         webhooks
// @Produce      json
// @Param        provider                path    string  true   "Calendar provider"
// @Param        X-Goog-Channel-ID       header  string  false  "Channel id"
// @Param        X-Goog-Channel-Token    header  string  true   "Channel token"
// @Param        X-Goog-Resource-State   header  string  false  "sync, exists or not_exists"
// @Param        X-Goog-Message-Number   header  string  false  "Message number"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /webhooks/calendar/{provider} [post]
func (h *WebhookHandler) Notify(c *gin.Context) {
	n := domain.WebhookNotification{
		ChannelID:     c.GetHeader("X-Goog-Channel-ID"),
		ChannelToken:  c.GetHeader("X-Goog-Channel-Token"),
		ResourceState: c.GetHeader("X-Goog-Resource-State"),
		MessageNumber: c.GetHeader("X-Goog-Message-Number"),
	}
	if err := h.webhookUC.HandleNotification(c.Request.Context(), c.Param("provider"), n); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Notification accepted", nil)
}
