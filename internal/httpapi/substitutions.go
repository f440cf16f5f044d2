package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom/internal/auth"
)

type acceptRequest struct {
	ReplacementID string `json:"replacement_instructor_id"`
}

func (a *api) acceptSubstitution(c *gin.Context) {
	var req acceptRequest
	if err := bindOptional(c, &req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.substitutions.AcceptSubstitution(c.Request.Context(), c.Param("id"), req.ReplacementID, requester(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) declineSubstitution(c *gin.Context) {
	req, err := a.substitutions.DeclineSubstitution(c.Request.Context(), c.Param("id"), requester(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (a *api) pendingSubstitutions(c *gin.Context) {
	list, err := a.substitutions.ListPendingSubstitutions(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"substitutions": nonNil(list)})
}

func (a *api) getSubstitution(c *gin.Context) {
	req, err := a.substitutions.GetSubstitution(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func requester(c *gin.Context) string {
	return auth.Requester(c)
}
