package v1

import (
	"fmt"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// parseTime reads an optional RFC3339 query parameter.
func parseTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperror.BadRequest(fmt.Sprintf("%s must be an RFC3339 timestamp", name))
	}
	return t, nil
}

// parseWindow reads from/to. Both or neither must be present.
func parseWindow(c *gin.Context) (*domain.TimeWindow, error) {
	from, err := parseTime(c, "from")
	if err != nil {
		return nil, err
	}
	to, err := parseTime(c, "to")
	if err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return nil, nil
	}
	if from.IsZero() || to.IsZero() {
		return nil, apperror.BadRequest("from and to must be given together")
	}
	return &domain.TimeWindow{Start: from, End: to}, nil
}

// parseScope resolves scope/owner_id, defaulting the owner to the caller.
func parseScope(c *gin.Context, actor domain.Actor) (domain.OwnerScope, error) {
	role := domain.OwnerRole(c.DefaultQuery("scope", defaultScopeRole(actor)))
	if !role.Valid() {
		return domain.OwnerScope{}, apperror.BadRequest("scope must be company, candidate or organizer")
	}

	ownerID := c.Query("owner_id")
	if ownerID == "" {
		if role == domain.OwnerRoleCompany {
			ownerID = actor.CompanyID
		} else {
			ownerID = actor.UserID
		}
	}
	if ownerID == "" {
		return domain.OwnerScope{}, apperror.BadRequest("owner_id is required")
	}
	return domain.OwnerScope{OwnerID: ownerID, Role: role}, nil
}

func defaultScopeRole(actor domain.Actor) string {
	if actor.Role == domain.RoleCandidate {
		return string(domain.OwnerRoleCandidate)
	}
	return string(domain.OwnerRoleCompany)
}
