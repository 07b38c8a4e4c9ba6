package v1

import (
	"net/http"
	"net/url"

	"go-interview-backend/internal/delivery/http/middleware"
	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type CalendarHandler struct {
	calendarAuthUC domain.CalendarAuthUsecase
	webhookUC      domain.WebhookUsecase
	// redirectURL receives the browser after the consent callback. Empty means JSON.
	redirectURL string
}

func NewCalendarHandler(
	public, protected *gin.RouterGroup,
	calendarAuthUC domain.CalendarAuthUsecase,
	webhookUC domain.WebhookUsecase,
	redirectURL string,
	oauthLimit gin.HandlerFunc,
) {
	handler := &CalendarHandler{calendarAuthUC: calendarAuthUC, webhookUC: webhookUC, redirectURL: redirectURL}

	public.GET("/calendar/:provider/callback", oauthLimit, handler.Callback)

	calendar := protected.Group("/calendar/:provider")
	{
		calendar.GET("/authorize", oauthLimit, handler.Authorize)
		calendar.GET("/channel-token", handler.ChannelToken)
		calendar.DELETE("", handler.Disconnect)
	}
}

// Authorize godoc
// @Summary      Start calendar consent
// @Description  Returns the provider consent URL carrying a signed state
// @Tags         calendar
// @Produce      json
// @Param        provider  path      string  true  "Calendar provider (google)"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /calendar/{provider}/authorize [get]
// @Security     BearerAuth
func (h *CalendarHandler) Authorize(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	consentURL, err := h.calendarAuthUC.AuthorizationURL(c.Request.Context(), actor.UserID, c.Param("provider"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Authorization URL generated", gin.H{"url": consentURL})
}

// Callback godoc
// @Summary      Calendar consent callback
// @Description  Verifies the state, exchanges the code and stores the token
// @Tags         calendar
// @Produce      json
// @Param        provider  path      string  true  "Calendar provider"
// @Param        code      query     string  true  "Authorization code"
// @Param        state     query     string  true  "Signed state"
// @Success      200  {object}  response.Response
// @Success      302
// @Failure      403  {object}  response.Response
// @Router       /calendar/{provider}/callback [get]
func (h *CalendarHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	if denied := c.Query("error"); denied != "" {
		h.finish(c, provider, "denied", apperror.BadRequest("Calendar consent was not granted: "+denied))
		return
	}

	if _, err := h.calendarAuthUC.HandleCallback(c.Request.Context(), provider, c.Query("code"), c.Query("state")); err != nil {
		h.finish(c, provider, "failed", err)
		return
	}
	h.finish(c, provider, "connected", nil)
}

func (h *CalendarHandler) finish(c *gin.Context, provider, status string, err error) {
	if h.redirectURL == "" {
		if err != nil {
			c.Error(err)
			return
		}
		response.Success(c, http.StatusOK, "Calendar connected", gin.H{"provider": provider})
		return
	}

	q := url.Values{"calendar": {provider}, "status": {status}}
	c.Redirect(http.StatusFound, h.redirectURL+"?"+q.Encode())
}

// ChannelToken godoc
// @Summary      Issue a webhook channel token
// @Description  Token to register on a provider watch channel for the caller's calendar
// @Tags         calendar
// @Produce      json
// @Param        provider  path      string  true  "Calendar provider"
// @Success      200  {object}  response.Response
// @Router       /calendar/{provider}/channel-token [get]
// @Security     BearerAuth
func (h *CalendarHandler) ChannelToken(c *gin.Context) {
	token, err := h.webhookUC.ChannelToken(middleware.CurrentActor(c).UserID, c.Param("provider"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Channel token issued", gin.H{"token": token})
}

// Disconnect godoc
// @Summary      Disconnect a calendar
// @Description  Revokes the grant at the provider and deletes the stored token
// @Tags         calendar
// @Produce      json
// @Param        provider  path      string  true  "Calendar provider"
// @Success      200  {object}  response.Response
// @Router       /calendar/{provider} [delete]
// @Security     BearerAuth
func (h *CalendarHandler) Disconnect(c *gin.Context) {
	if err := h.calendarAuthUC.Disconnect(c.Request.Context(), middleware.CurrentActor(c).UserID, c.Param("provider")); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Calendar disconnected", nil)
}
