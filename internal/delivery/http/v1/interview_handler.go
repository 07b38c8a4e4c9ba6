package v1

import (
	"net/http"
	"strings"

	"go-interview-backend/internal/delivery/http/middleware"
	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type InterviewHandler struct {
	schedulingUC domain.SchedulingUsecase
	reconciler   domain.SyncReconciler
}

func NewInterviewHandler(protected *gin.RouterGroup, schedulingUC domain.SchedulingUsecase, reconciler domain.SyncReconciler) {
	handler := &InterviewHandler{schedulingUC: schedulingUC, reconciler: reconciler}

	interviews := protected.Group("/interviews")
	{
		interviews.POST("", handler.Schedule)
		interviews.GET("", handler.List)
		interviews.GET("/:id", handler.Get)
		interviews.PATCH("/:id/schedule", handler.Reschedule)
		interviews.POST("/:id/cancel", handler.Cancel)
		interviews.POST("/:id/complete", handler.Complete)
		interviews.POST("/:id/sync", handler.Sync)
		interviews.POST("/:id/access/verify", handler.VerifyAccess)
	}
}

type VerifyAccessRequest struct {
	Passcode string `json:"passcode" binding:"required"`
}

// Schedule godoc
// @Summary      Schedule an interview
// @Description  Creates the interview and its event on the organizer's connected calendar. Send Idempotency-Key to make retries safe.
// @Tags         interviews
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                 false  "Retry key"
// @Param        interview        body      domain.InterviewDraft  true   "Interview draft"
// @Success      201  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /interviews [post]
// @Security     BearerAuth
func (h *InterviewHandler) Schedule(c *gin.Context) {
	var draft domain.InterviewDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	actor := middleware.CurrentActor(c)
	if draft.OwnerCompanyID == "" {
		draft.OwnerCompanyID = actor.CompanyID
	}
	if draft.RequestKey == "" {
		draft.RequestKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	iv, err := h.schedulingUC.ScheduleInterview(c.Request.Context(), actor, draft)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, "Interview scheduled", iv)
}

// List godoc
// @Summary      List interviews
// @Description  Lists interviews of an owner ordered by start time
// @Tags         interviews
// @Produce      json
// @Param        scope     query     string  false  "company, candidate or organizer"
// @Param        owner_id  query     string  false  "Owner id (defaults to the caller)"
// @Param        from      query     string  false  "RFC3339 lower bound on start"
// @Param        to        query     string  false  "RFC3339 upper bound on start"
// @Param        status    query     string  false  "Comma separated statuses"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /interviews [get]
// @Security     BearerAuth
func (h *InterviewHandler) List(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	scope, err := parseScope(c, actor)
	if err != nil {
		c.Error(err)
		return
	}
	from, err := parseTime(c, "from")
	if err != nil {
		c.Error(err)
		return
	}
	to, err := parseTime(c, "to")
	if err != nil {
		c.Error(err)
		return
	}

	filter := domain.InterviewFilter{Role: scope.Role, From: from, To: to}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.InterviewStatus(strings.TrimSpace(s))
			if !status.Valid() {
				c.Error(apperror.BadRequest("unknown status " + string(status)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	interviews, err := h.schedulingUC.ListInterviews(c.Request.Context(), actor, scope, filter)
	if err != nil {
		c.Error(err)
		return
	}
	if interviews == nil {
		interviews = []*domain.Interview{}
	}
	response.Success(c, http.StatusOK, "Interviews retrieved", interviews)
}

// Get godoc
// @Summary      Get an interview
// @Tags         interviews
// @Produce      json
// @Param        id   path      string  true  "Interview ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /interviews/{id} [get]
// @Security     BearerAuth
func (h *InterviewHandler) Get(c *gin.Context) {
	iv, err := h.schedulingUC.GetInterview(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Interview retrieved", iv)
}

// Reschedule godoc
// @Summary      Reschedule an interview
// @Description  Moves the interview to a new window. expected_version guards against lost updates.
// @Tags         interviews
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Interview ID"
// @Param        request  body      domain.RescheduleRequest  true  "New window"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /interviews/{id}/schedule [patch]
// @Security     BearerAuth
func (h *InterviewHandler) Reschedule(c *gin.Context) {
	var req domain.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	iv, err := h.schedulingUC.RescheduleInterview(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Interview rescheduled", iv)
}

// Cancel godoc
// @Summary      Cancel an interview
// @Description  Idempotent: cancelling a cancelled interview succeeds without changes.
// @Tags         interviews
// @Produce      json
// @Param        id   path      string  true  "Interview ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /interviews/{id}/cancel [post]
// @Security     BearerAuth
func (h *InterviewHandler) Cancel(c *gin.Context) {
	iv, err := h.schedulingUC.CancelInterview(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Interview cancelled", iv)
}

// Complete godoc
// @Summary      Mark an interview completed
// @Tags         interviews
// @Produce      json
// @Param        id   path      string  true  "Interview ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /interviews/{id}/complete [post]
// @Security     BearerAuth
func (h *InterviewHandler) Complete(c *gin.Context) {
	iv, err := h.schedulingUC.MarkCompleted(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Interview completed", iv)
}

// Sync godoc
// @Summary      Reconcile an interview with its calendar event
// @Tags         interviews
// @Produce      json
// @Param        id   path      string  true  "Interview ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /interviews/{id}/sync [post]
// @Security     BearerAuth
func (h *InterviewHandler) Sync(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.CurrentActor(c)

	iv, err := h.schedulingUC.GetInterview(ctx, actor, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if !actor.CanManage(iv.OwnerCompanyID) {
		c.Error(apperror.Forbidden("Only the owning company can sync this interview"))
		return
	}

	outcome, err := h.reconciler.ReconcileInterview(ctx, iv.ID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Interview reconciled", gin.H{"outcome": outcome})
}

// VerifyAccess godoc
// @Summary      Verify a meeting passcode
// @Tags         interviews
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Interview ID"
// @Param        request  body      VerifyAccessRequest  true  "Passcode"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /interviews/{id}/access/verify [post]
// @Security     BearerAuth
func (h *InterviewHandler) VerifyAccess(c *gin.Context) {
	var req VerifyAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	ok, err := h.schedulingUC.VerifyMeetingAccess(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req.Passcode)
	if err != nil {
		c.Error(err)
		return
	}
	if !ok {
		c.Error(apperror.Forbidden("Invalid passcode"))
		return
	}
	response.Success(c, http.StatusOK, "Passcode accepted", gin.H{"valid": true})
}
