package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classroom/internal/attendance"
)

type markRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

func (a *api) markPresence(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.attendance.MarkPresence(c.Request.Context(), attendance.Mark{
		SessionID: c.Param("id"),
		StudentID: req.StudentID,
		Status:    req.Status,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) getStreak(c *gin.Context) {
	id := c.Param("id")
	st, err := a.attendance.GetStreak(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student_id":   id,
		"streak":       st.Current,
		"last_present": st.LastPresent,
		"bonus":        st.Bonus,
	})
}

func (a *api) leaderboard(c *gin.Context) {
	n := 0
	if v := c.Query("top"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			a.badRequest(c, fmt.Errorf("top must be a positive integer, got %q", v))
			return
		}
		n = parsed
	}
	entries, err := a.attendance.Top(c.Request.Context(), n)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": nonNil(entries)})
}
