// Package attendance records presence marks and keeps the streak counters and
// leaderboard built on them.
package attendance

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/model"
	"classroom/internal/store"
)

// MarkStore is the authoritative attendance and streaks tables.
type MarkStore interface {
	LockStudent(ctx context.Context, studentID string) error
	Mark(ctx context.Context, sessionID, studentID string) (model.AttendanceStatus, bool, error)
	UpsertMark(ctx context.Context, sessionID, studentID string, status model.AttendanceStatus, at time.Time) error
	Streak(ctx context.Context, studentID string) (model.Streak, bool, error)
	SaveStreak(ctx context.Context, studentID string, st model.Streak, bonusDelta int, at time.Time) (int, error)
	TopStreaks(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
	AllStreaks(ctx context.Context) (map[string]model.Streak, error)
	WithTx(q store.DBTX) MarkStore
}

// StreakCache is the fast path for streaks and the leaderboard.
type StreakCache interface {
	Get(ctx context.Context, studentID string) (model.Streak, bool, error)
	Put(ctx context.Context, studentID string, st model.Streak) error
	Replace(ctx context.Context, streaks map[string]model.Streak) error
	Top(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
}

// SessionReader resolves the session a mark is for.
type SessionReader interface {
	Session(ctx context.Context, id string) (model.Session, error)
}

// Students resolves students.
type Students interface {
	Student(ctx context.Context, id string) (model.Student, error)
}

// Deps wires a Service.
type Deps struct {
	Marks        MarkStore
	Tx           store.Transactor
	Sessions     SessionReader
	Students     Students
	Cache        StreakCache
	CacheTimeout time.Duration
	Now          func() time.Time
	Log          *zap.Logger
}

// Service coordinates presence marks, streaks and the leaderboard.
type Service struct {
	repo         MarkStore
	tx           store.Transactor
	sessions     SessionReader
	students     Students
	cache        StreakCache
	cacheTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewService creates a service.
func NewService(d Deps) *Service {
	if d.CacheTimeout <= 0 {
		d.CacheTimeout = 2 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		repo:         d.Marks,
		tx:           d.Tx,
		sessions:     d.Sessions,
		students:     d.Students,
		cache:        d.Cache,
		cacheTimeout: d.CacheTimeout,
		now:          d.Now,
		log:          d.Log,
	}
}

// Mark is a presence mark for one student in one session.
type Mark struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
}

// Result is the streak after a mark.
type Result struct {
	SessionID  string                 `json:"session_id"`
	StudentID  string                 `json:"student_id"`
	Status     model.AttendanceStatus `json:"status"`
	Streak     model.Streak           `json:"streak"`
	BonusDelta int                    `json:"bonus_delta"`
	Unchanged  bool                   `json:"unchanged"`
}

// MarkPresence records a mark and advances the student's streak. Repeating a
// mark is a no-op.
func (s *Service) MarkPresence(ctx context.Context, m Mark) (Result, error) {
	status, err := model.ParseAttendanceStatus(m.Status)
	if err != nil {
		return Result{}, apperr.Validation(apperr.CodeInvalidStatus, "%v", err)
	}
	m.SessionID = strings.TrimSpace(m.SessionID)
	m.StudentID = strings.TrimSpace(m.StudentID)
	if m.SessionID == "" || m.StudentID == "" {
		return Result{}, apperr.Validation(apperr.CodeInvalidArgument, "session and student are required")
	}

	sess, err := s.sessions.Session(ctx, m.SessionID)
	if err != nil {
		return Result{}, err
	}
	if sess.Status == model.SessionCancelled || sess.Status == model.SessionPostponed {
		return Result{}, apperr.Validation(apperr.CodeSessionNotHeld, "session %s is %s", sess.ID, sess.Status).
			WithMeta("status", string(sess.Status))
	}
	if _, err := s.students.Student(ctx, m.StudentID); err != nil {
		return Result{}, err
	}

	res := Result{SessionID: m.SessionID, StudentID: m.StudentID, Status: status}
	err = s.tx.InTx(ctx, func(q store.DBTX) error {
		repo := s.repo.WithTx(q)
		if err := repo.LockStudent(ctx, m.StudentID); err != nil {
			return err
		}
		prev, marked, err := repo.Mark(ctx, m.SessionID, m.StudentID)
		if err != nil {
			return err
		}
		durable, _, err := repo.Streak(ctx, m.StudentID)
		if err != nil {
			return err
		}
		if marked && prev == status {
			res.Streak = durable
			res.Unchanged = true
			return nil
		}

		next, delta := Advance(durable, status, sess.Date)
		now := s.clock()
		if err := repo.UpsertMark(ctx, m.SessionID, m.StudentID, status, now); err != nil {
			return err
		}
		bonus, err := repo.SaveStreak(ctx, m.StudentID, next, delta, now)
		if err != nil {
			return err
		}
		next.Bonus = bonus
		res.Streak = next
		res.BonusDelta = delta

		// Written under the student lock so concurrent marks reach the cache in
		// commit order.
		s.cachePut(ctx, m.StudentID, next)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if !res.Unchanged {
		metrics.PresenceMarks.WithLabelValues(string(status)).Inc()
		if res.BonusDelta > 0 {
			metrics.BonusUnits.Add(float64(res.BonusDelta))
			s.log.Info("streak bonus awarded",
				zap.String("student_id", m.StudentID),
				zap.Int("streak", res.Streak.Current),
				zap.Int("bonus", res.Streak.Bonus))
		}
	}
	return res, nil
}

// cachePut mirrors a durable streak into the cache. A failed write leaves the
// cache stale until the next mark or rebuild.
func (s *Service) cachePut(ctx context.Context, studentID string, st model.Streak) {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	if err := s.cache.Put(cctx, studentID, st); err != nil {
		metrics.CacheFallbacks.WithLabelValues("mark").Inc()
		s.log.Warn("streak cache write failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

// GetStreak returns a student's streak from the cache, or from the durable
// store on a miss, repopulating the cache.
func (s *Service) GetStreak(ctx context.Context, studentID string) (model.Streak, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	st, hit, cerr := s.cache.Get(cctx, studentID)
	if cerr == nil && hit {
		return st, nil
	}
	if cerr != nil {
		metrics.CacheFallbacks.WithLabelValues("streak").Inc()
		s.log.Warn("streak cache read failed", zap.String("student_id", studentID), zap.Error(cerr))
	}

	if _, err := s.students.Student(ctx, studentID); err != nil {
		return model.Streak{}, err
	}
	st, _, err := s.repo.Streak(ctx, studentID)
	if err != nil {
		return model.Streak{}, err
	}
	if cerr == nil {
		if err := s.cache.Put(cctx, studentID, st); err != nil {
			s.log.Warn("streak cache repopulate failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return st, nil
}

// RebuildCache reloads every durable streak into the cache.
func (s *Service) RebuildCache(ctx context.Context) (int, error) {
	all, err := s.repo.AllStreaks(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Replace(ctx, all); err != nil {
		return 0, apperr.Unavailable(apperr.CodeCacheUnavailable, err, "rebuild streak cache")
	}
	s.log.Info("streak cache rebuilt", zap.Int("students", len(all)))
	return len(all), nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
