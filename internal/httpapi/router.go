// Package httpapi exposes the coordination services over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classroom/internal/attendance"
	"classroom/internal/auth"
	"classroom/internal/httpmiddleware"
	"classroom/internal/model"
	"classroom/internal/scheduling"
	"classroom/internal/slotindex"
	"classroom/internal/substitution"
)

// Sessions is the scheduling surface used by the handlers.
type Sessions interface {
	Schedule(ctx context.Context, req scheduling.ScheduleRequest) (scheduling.Scheduled, error)
	Session(ctx context.Context, id string) (model.Session, error)
	SetStatus(ctx context.Context, id, status string, p scheduling.Params) (scheduling.Applied, error)
	ClassSchedule(ctx context.Context, classID string) ([]model.Session, error)
	InstructorSchedule(ctx context.Context, instructorID string) ([]model.Session, error)
	RoomOccupancy(ctx context.Context, roomID string) ([]model.Session, error)
}

// Substitutions is the substitution workflow surface.
type Substitutions interface {
	DeclareAbsence(ctx context.Context, a substitution.Absence) (substitution.Result, error)
	ListAvailableInstructors(ctx context.Context, sessionID string) ([]model.Instructor, error)
	AcceptSubstitution(ctx context.Context, requestID, replacementID, respondedBy string) (substitution.Result, error)
	DeclineSubstitution(ctx context.Context, requestID, respondedBy string) (model.SubstitutionRequest, error)
	ListPendingSubstitutions(ctx context.Context) ([]model.SubstitutionRequest, error)
	GetSubstitution(ctx context.Context, id string) (model.SubstitutionRequest, error)
}

// Attendance is the streak engine and leaderboard surface.
type Attendance interface {
	MarkPresence(ctx context.Context, m attendance.Mark) (attendance.Result, error)
	GetStreak(ctx context.Context, studentID string) (model.Streak, error)
	Top(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
	RebuildCache(ctx context.Context) (int, error)
}

// ResyncFunc rebuilds the slot index from the session store.
type ResyncFunc func(ctx context.Context) (slotindex.ResyncReport, error)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the router.
type Deps struct {
	Sessions      Sessions
	Substitutions Substitutions
	Attendance    Attendance
	Resync        ResyncFunc
	Health        map[string]HealthCheck

	SigningKey string
	Issuer     string

	// Limiter runs after authentication; nil disables rate limiting.
	Limiter *httpmiddleware.RateLimiter
	Log     *zap.Logger
}

type api struct {
	sessions      Sessions
	substitutions Substitutions
	attendance    Attendance
	resync        ResyncFunc
	health        map[string]HealthCheck
	log           *zap.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &api{
		sessions:      d.Sessions,
		substitutions: d.Substitutions,
		attendance:    d.Attendance,
		resync:        d.Resync,
		health:        d.Health,
		log:           d.Log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.Logger(d.Log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", a.healthz)

	v1 := r.Group("/v1", auth.Bearer(d.SigningKey, d.Issuer))
	if d.Limiter != nil {
		v1.Use(d.Limiter.GinMiddleware())
	}

	v1.POST("/sessions", a.scheduleSession)
	v1.GET("/sessions/:id", a.getSession)
	v1.POST("/sessions/:id/status", a.setSessionStatus)
	v1.POST("/sessions/:id/absence", a.declareAbsence)
	v1.GET("/sessions/:id/available-instructors", a.availableInstructors)
	v1.POST("/sessions/:id/attendance", a.markPresence)

	v1.GET("/classes/:id/sessions", a.classSchedule)
	v1.GET("/instructors/:id/sessions", a.instructorSchedule)
	v1.GET("/rooms/:id/sessions", a.roomOccupancy)

	v1.GET("/substitutions/pending", a.pendingSubstitutions)
	v1.GET("/substitutions/:id", a.getSubstitution)

	v1.GET("/students/:id/streak", a.getStreak)
	v1.GET("/leaderboard", a.leaderboard)

	admin := v1.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/substitutions/:id/accept", a.acceptSubstitution)
	admin.POST("/substitutions/:id/decline", a.declineSubstitution)
	admin.POST("/admin/resync", a.resyncIndex)
	admin.POST("/admin/streaks/rebuild", a.rebuildStreaks)

	return r
}

func (a *api) healthz(c *gin.Context) {
	body := gin.H{}
	healthy := true
	for name, check := range a.health {
		ok := check(c.Request.Context())
		body[name] = ok
		healthy = healthy && ok
	}
	status := http.StatusOK
	body["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
