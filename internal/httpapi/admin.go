package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (a *api) resyncIndex(c *gin.Context) {
	report, err := a.resync(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	a.log.Info("slot index resynced",
		zap.String("by", requester(c)),
		zap.Int("sessions", report.Sessions),
		zap.Int("substitutions", report.Substitutions),
		zap.Duration("took", report.Duration))
	c.JSON(http.StatusOK, report)
}

func (a *api) rebuildStreaks(c *gin.Context) {
	n, err := a.attendance.RebuildCache(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	a.log.Info("streak cache rebuilt", zap.String("by", requester(c)), zap.Int("students", n))
	c.JSON(http.StatusOK, gin.H{"students": n})
}
