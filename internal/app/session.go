package app

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"calendar-console/internal/kv"
	"calendar-console/internal/syncer"
)

type sessionRequest struct {
	Token string  `json:"token" binding:"required"`
	User  kv.User `json:"user"`
}

// PUT /api/session
// Stores the staff member's booking-API token and account. Customers are not
// staff and are refused.
func (a *App) PutSessionHandler(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.User.Role == "" || req.User.Role == "customer" || !slices.Contains(a.staffRoles(), req.User.Role) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
		return
	}
	ctx := c.Request.Context()
	if err := a.KV.Set(ctx, kv.KeyToken, req.Token); err != nil {
		a.fail(c, err)
		return
	}
	if err := kv.SaveUser(ctx, a.KV, req.User); err != nil {
		a.fail(c, err)
		return
	}
	a.Logger.Info().Str("user_id", req.User.ID).Str("role", req.User.Role).Msg("staff session stored")

	// pull snapshots right away instead of waiting for the next tick
	for name, s := range map[string]*syncer.Synchronizer{"calendar": a.Calendar, "bell": a.Bell} {
		if err := s.Refresh(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("view", name).Msg("refresh after login failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"user": req.User})
}

// GET /api/session
func (a *App) GetSessionHandler(c *gin.Context) {
	u, err := kv.LoadUser(c.Request.Context(), a.KV)
	if errors.Is(err, kv.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no staff session"})
		return
	}
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// DELETE /api/session
func (a *App) DeleteSessionHandler(c *gin.Context) {
	ctx := c.Request.Context()
	for _, k := range []string{kv.KeyToken, kv.KeyUser} {
		if err := a.KV.Delete(ctx, k); err != nil {
			a.fail(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (a *App) staffRoles() []string {
	if len(a.Roles) > 0 {
		return a.Roles
	}
	return []string{"owner", "admin", "receptionist"}
}
