package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/session"
)

// Domain Errors
var (
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrNoLiveSession    = errors.New("no live session for student")
)

// AttemptChecker reports whether the student already finished the exam, either
// through a stored attempt or a completed session.
type AttemptChecker interface {
	HasFinished(ctx context.Context, studentID int, examID string) (bool, error)
}

type sessionKey struct {
	studentID int
	examID    string
}

type liveEntry struct {
	student model.Student
	sess    *session.Session
}

// LiveSession is the proctor's view of one live session.
type LiveSession struct {
	StudentID        int    `json:"student_id"`
	Name             string `json:"name"`
	ClassID          int    `json:"class_id,omitempty"`
	AnsweredCount    int    `json:"answered_count"`
	QuestionCount    int    `json:"question_count"`
	RemainingSeconds int    `json:"remaining_seconds"`
	ViolationCount   int    `json:"violation_count"`
	IsCompleted      bool   `json:"is_completed"`
	Degraded         bool   `json:"degraded"`
}

// SessionManager owns the live sessions of this instance, one per
// (student, exam). A reconnect replaces the previous session.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[sessionKey]liveEntry

	loader   *session.Loader
	exams    session.ExamSource
	scorer   session.Scorer
	journal  session.Journal
	attempts AttemptChecker
	cfg      *config.Config
	log      zerolog.Logger
}

// NewSessionManager creates a new SessionManager. journal may be nil.
func NewSessionManager(
	loader *session.Loader,
	exams session.ExamSource,
	scorer session.Scorer,
	journal session.Journal,
	attempts AttemptChecker,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionManager {
	return &SessionManager{
		sessions: make(map[sessionKey]liveEntry),
		loader:   loader,
		exams:    exams,
		scorer:   scorer,
		journal:  journal,
		attempts: attempts,
		cfg:      cfg,
		log:      log.With().Str("component", "session_manager").Logger(),
	}
}

// OpenParams are the per-connection inputs of a session.
type OpenParams struct {
	Student    model.Student
	ExamID     string
	Announcer  session.Announcer
	OnComplete func(score, totalPoints int)
	OnNotice   func(session.Notice)
}

// Open starts a session for the student. It refuses an exam the student
// already submitted and disposes any session the student still had open.
func (m *SessionManager) Open(ctx context.Context, p OpenParams) (*session.Session, error) {
	done, err := m.attempts.HasFinished(ctx, p.Student.ID, p.ExamID)
	if err != nil {
		m.log.Warn().Err(err).Str("exam_id", p.ExamID).Msg("Attempt lookup failed, opening session anyway")
	}
	if done {
		return nil, ErrAlreadySubmitted
	}

	s := session.New(session.Deps{
		Loader:    m.loader,
		Exams:     m.exams,
		Scorer:    m.scorer,
		Announcer: p.Announcer,
		Journal:   m.journal,
		Log:       m.log,
	}, session.Options{
		Student:        p.Student,
		DefaultMinutes: m.cfg.DefaultExamMinutes,
		TickInterval:   time.Second,
		OptionsDelay:   m.cfg.OptionsAnnounceDelay,
		ExitWarningFor: m.cfg.ExitWarningDuration,
		OnComplete:     p.OnComplete,
		OnNotice:       p.OnNotice,
	})

	key := sessionKey{studentID: p.Student.ID, examID: p.ExamID}
	m.mu.Lock()
	previous := m.sessions[key].sess
	m.sessions[key] = liveEntry{student: p.Student, sess: s}
	m.mu.Unlock()

	if previous != nil {
		m.log.Info().Int("student_id", p.Student.ID).Str("exam_id", p.ExamID).Msg("Replacing live session")
		previous.Dispose()
	}

	if err := s.Start(ctx, p.ExamID); err != nil {
		m.Close(p.Student.ID, p.ExamID, s)
		return nil, err
	}
	return s, nil
}

// Close disposes s and forgets it, unless it was already replaced.
func (m *SessionManager) Close(studentID int, examID string, s *session.Session) {
	key := sessionKey{studentID: studentID, examID: examID}
	m.mu.Lock()
	if m.sessions[key].sess == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	s.Dispose()
}

// ForceSubmit submits a student's live session on behalf of a proctor.
func (m *SessionManager) ForceSubmit(ctx context.Context, studentID int, examID string) (*scoring.Result, error) {
	m.mu.Lock()
	s := m.sessions[sessionKey{studentID: studentID, examID: examID}].sess
	m.mu.Unlock()
	if s == nil {
		return nil, ErrNoLiveSession
	}

	res, err := s.Submit(ctx, model.SubmitModeForced)
	if err != nil && res == nil {
		return nil, fmt.Errorf("force submit: %w", err)
	}
	return res, err
}

// Live returns the number of live sessions.
func (m *SessionManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns the live sessions of an exam, ordered by student id.
func (m *SessionManager) List(examID string) []LiveSession {
	m.mu.Lock()
	entries := make([]liveEntry, 0)
	for k, e := range m.sessions {
		if k.examID == examID {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()

	out := make([]LiveSession, 0, len(entries))
	for _, e := range entries {
		st := e.sess.State()
		out = append(out, LiveSession{
			StudentID:        e.student.ID,
			Name:             e.student.Name,
			ClassID:          e.student.ClassID,
			AnsweredCount:    st.AnsweredCount,
			QuestionCount:    st.QuestionCount,
			RemainingSeconds: st.RemainingSeconds,
			ViolationCount:   st.ViolationCount,
			IsCompleted:      st.IsCompleted,
			Degraded:         st.Degraded,
		})
	}
	slices.SortFunc(out, func(a, b LiveSession) int { return cmp.Compare(a.StudentID, b.StudentID) })
	return out
}

// Shutdown disposes every live session without submitting and waits for
// in-flight submissions to finish or ctx to expire.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*session.Session, 0, len(m.sessions))
	for k, e := range m.sessions {
		live = append(live, e.sess)
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, s := range live {
			s.Dispose()
			s.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		m.log.Info().Int("sessions", len(live)).Msg("Live sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
