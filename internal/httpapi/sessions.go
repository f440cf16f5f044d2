package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom/internal/model"
	"classroom/internal/scheduling"
	"classroom/internal/substitution"
)

type statusRequest struct {
	Status        string      `json:"status" binding:"required"`
	TargetDate    *model.Date `json:"target_date"`
	ReplacementID string      `json:"replacement_instructor_id"`
	RoomID        string      `json:"room_id"`
	StartTime     string      `json:"start_time"`
	EndTime       string      `json:"end_time"`
	InstructorID  string      `json:"instructor_id"`
}

type absenceRequest struct {
	AbsentInstructorID string `json:"absent_instructor_id"`
	Reason             string `json:"reason"`
}

func (a *api) scheduleSession(c *gin.Context) {
	var req scheduling.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	out, err := a.sessions.Schedule(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (a *api) getSession(c *gin.Context) {
	sess, err := a.sessions.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *api) setSessionStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	applied, err := a.sessions.SetStatus(c.Request.Context(), c.Param("id"), req.Status, scheduling.Params{
		TargetDate:    req.TargetDate,
		ReplacementID: req.ReplacementID,
		RoomID:        req.RoomID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		InstructorID:  req.InstructorID,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"before":  applied.Before,
		"session": applied.Session,
		"made_up": applied.MadeUp,
		"changed": applied.Changed(),
		"sync":    applied.Outcome,
	})
}

func (a *api) declareAbsence(c *gin.Context) {
	var req absenceRequest
	if err := bindOptional(c, &req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.substitutions.DeclareAbsence(c.Request.Context(), substitution.Absence{
		SessionID:          c.Param("id"),
		AbsentInstructorID: req.AbsentInstructorID,
		Reason:             req.Reason,
		RequestedBy:        requester(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *api) availableInstructors(c *gin.Context) {
	list, err := a.substitutions.ListAvailableInstructors(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instructors": nonNil(list)})
}

func (a *api) classSchedule(c *gin.Context) {
	list, err := a.sessions.ClassSchedule(c.Request.Context(), c.Param("id"))
	a.sessionList(c, list, err)
}

func (a *api) instructorSchedule(c *gin.Context) {
	list, err := a.sessions.InstructorSchedule(c.Request.Context(), c.Param("id"))
	a.sessionList(c, list, err)
}

func (a *api) roomOccupancy(c *gin.Context) {
	list, err := a.sessions.RoomOccupancy(c.Request.Context(), c.Param("id"))
	a.sessionList(c, list, err)
}

func (a *api) sessionList(c *gin.Context, list []model.Session, err error) {
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": nonNil(list)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
