package v1

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"go-interview-backend/internal/delivery/http/middleware"
	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type StatsHandler struct {
	statsUC domain.StatsUsecase
}

func NewStatsHandler(protected *gin.RouterGroup, statsUC domain.StatsUsecase) {
	handler := &StatsHandler{statsUC: statsUC}

	stats := protected.Group("/stats")
	{
		stats.GET("", handler.Get)
		stats.GET("/export", handler.Export)
	}
}

// Get godoc
// @Summary      Interview statistics
// @Description  Counts total, rescheduled, cancelled, completed and upcoming interviews for an owner
// @Tags         stats
// @Produce      json
// @Param        scope     query     string  false  "company, candidate or organizer"
// @Param        owner_id  query     string  false  "Owner id (defaults to the caller)"
// @Param        from      query     string  false  "RFC3339 window start"
// @Param        to        query     string  false  "RFC3339 window end"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /stats [get]
// @Security     BearerAuth
func (h *StatsHandler) Get(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	scope, err := parseScope(c, actor)
	if err != nil {
		c.Error(err)
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.Error(err)
		return
	}

	snap, err := h.statsUC.ComputeStats(c.Request.Context(), actor, scope, window)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Stats retrieved", snap)
}

// Export godoc
// @Summary      Export the interview ledger
// @Description  Downloads the owner's interviews and summary as an XLSX workbook
// @Tags         stats
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        scope     query     string  false  "company, candidate or organizer"
// @Param        owner_id  query     string  false  "Owner id (defaults to the caller)"
// @Param        from      query     string  false  "RFC3339 window start"
// @Param        to        query     string  false  "RFC3339 window end"
// @Success      200  {file}    file
// @Failure      403  {object}  response.Response
// @Router       /stats/export [get]
// @Security     BearerAuth
func (h *StatsHandler) Export(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	scope, err := parseScope(c, actor)
	if err != nil {
		c.Error(err)
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.Error(err)
		return
	}

	// Buffer first so a failure still renders as a JSON error.
	var buf bytes.Buffer
	if err := h.statsUC.ExportLedger(c.Request.Context(), actor, scope, window, &buf); err != nil {
		c.Error(err)
		return
	}

	filename := fmt.Sprintf("interviews-%s-%s.xlsx", scope.Role, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
