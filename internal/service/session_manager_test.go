package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type questionsFunc func(ctx context.Context, examID string) ([]model.Question, error)

func (f questionsFunc) LoadQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	return f(ctx, examID)
}

// memAttempts is an in-memory scoring.AttemptStore.
type memAttempts struct {
	mu      sync.Mutex
	saved   []*model.ExamAttemptRecord
	saveErr error
}

func (m *memAttempts) HasAttempt(context.Context, int, string) (bool, error) { return false, nil }

func (m *memAttempts) SaveAttempt(_ context.Context, r *model.ExamAttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, r)
	return nil
}

func (m *memAttempts) UpdateAttempt(context.Context, *model.ExamAttemptRecord) error { return nil }

const managerExam = "exam-1"

func newManager(t *testing.T, attempts AttemptChecker) (*SessionManager, *memAttempts) {
	t.Helper()

	source := questionsFunc(func(_ context.Context, examID string) ([]model.Question, error) {
		if examID != managerExam {
			return nil, session.ErrNotFound
		}
		return []model.Question{
			{ID: "q1", QuestionText: "Pick B", Options: []string{"A", "B"}, CorrectAnswer: "B", QuestionType: model.QuestionTypeMultipleChoice, Points: 1, Number: 1},
		}, nil
	})
	store := &memAttempts{}
	cfg := &config.Config{
		DefaultExamMinutes:   30,
		OptionsAnnounceDelay: time.Hour,
		ExitWarningDuration:  time.Millisecond,
	}

	m := NewSessionManager(
		session.NewLoader(source, false, zerolog.Nop()),
		nil,
		scoring.NewPipeline(scoring.LevenshteinSimilarity{}, store, zerolog.Nop()),
		nil,
		attempts,
		cfg,
		zerolog.Nop(),
	)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, store
}

func noAttempt() *MockAttemptChecker {
	c := new(MockAttemptChecker)
	c.On("HasFinished", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	return c
}

func openParams(studentID int) OpenParams {
	return OpenParams{Student: model.Student{ID: studentID, Name: "Rina"}, ExamID: managerExam}
}

func TestSessionManager_RefusesSubmittedExam(t *testing.T) {
	checker := new(MockAttemptChecker)
	checker.On("HasFinished", mock.Anything, 7, managerExam).Return(true, nil)
	m, _ := newManager(t, checker)

	_, err := m.Open(context.Background(), openParams(7))

	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, 0, m.Live())
}

// Completion is recorded even when the attempt row could not be written, so a
// restart must be refused from the completion alone.
func TestSessionManager_RefusesAfterUnsavedSubmit(t *testing.T) {
	checker := new(MockAttemptChecker)
	checker.On("HasFinished", mock.Anything, 7, managerExam).Return(false, nil).Once()
	m, store := newManager(t, checker)
	store.saveErr = errors.New("db down")
	ctx := context.Background()

	s, err := m.Open(ctx, openParams(7))
	require.NoError(t, err)
	res, err := s.Submit(ctx, model.SubmitModeManual)
	require.ErrorIs(t, err, scoring.ErrPersistence)
	require.False(t, res.Persisted)
	m.Close(7, managerExam, s)

	checker.On("HasFinished", mock.Anything, 7, managerExam).Return(true, nil)
	_, err = m.Open(ctx, openParams(7))

	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, 0, m.Live())
}

func TestSessionManager_OpensWhenLookupFails(t *testing.T) {
	checker := new(MockAttemptChecker)
	checker.On("HasFinished", mock.Anything, 7, managerExam).Return(false, errors.New("db down"))
	m, _ := newManager(t, checker)

	_, err := m.Open(context.Background(), openParams(7))

	require.NoError(t, err)
	assert.Equal(t, 1, m.Live())
}

func TestSessionManager_ReconnectReplacesSession(t *testing.T) {
	m, _ := newManager(t, noAttempt())
	ctx := context.Background()

	first, err := m.Open(ctx, openParams(7))
	require.NoError(t, err)
	second, err := m.Open(ctx, openParams(7))
	require.NoError(t, err)

	assert.Equal(t, 1, m.Live())
	assert.ErrorIs(t, first.SelectAnswer("B"), session.ErrDisposed)
	assert.NoError(t, second.SelectAnswer("B"))

	// Closing the stale connection must not drop the new session.
	m.Close(7, managerExam, first)
	assert.Equal(t, 1, m.Live())
	m.Close(7, managerExam, second)
	assert.Equal(t, 0, m.Live())
}

func TestSessionManager_StartFailureIsNotLive(t *testing.T) {
	m, _ := newManager(t, noAttempt())

	_, err := m.Open(context.Background(), OpenParams{Student: model.Student{ID: 7}, ExamID: "missing"})

	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, 0, m.Live())
}

func TestSessionManager_ForceSubmit(t *testing.T) {
	m, store := newManager(t, noAttempt())
	ctx := context.Background()

	_, err := m.ForceSubmit(ctx, 7, managerExam)
	assert.ErrorIs(t, err, ErrNoLiveSession)

	s, err := m.Open(ctx, openParams(7))
	require.NoError(t, err)
	require.NoError(t, s.SelectAnswer("B"))

	res, err := m.ForceSubmit(ctx, 7, managerExam)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, model.SubmitModeForced, res.Mode)
	assert.True(t, s.IsCompleted())
	require.Len(t, store.saved, 1)
	assert.Equal(t, model.SubmitModeForced, store.saved[0].SubmitMode)

	// A second proctor click returns the same result.
	again, err := m.ForceSubmit(ctx, 7, managerExam)
	require.NoError(t, err)
	assert.Same(t, res, again)
}

func TestSessionManager_Shutdown(t *testing.T) {
	m, _ := newManager(t, noAttempt())
	ctx := context.Background()

	a, err := m.Open(ctx, openParams(7))
	require.NoError(t, err)
	b, err := m.Open(ctx, openParams(8))
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, 0, m.Live())
	assert.ErrorIs(t, a.SelectAnswer("A"), session.ErrDisposed)
	assert.ErrorIs(t, b.SelectAnswer("A"), session.ErrDisposed)
}

func TestSessionManager_List(t *testing.T) {
	m, _ := newManager(t, noAttempt())
	ctx := context.Background()

	b, err := m.Open(ctx, OpenParams{Student: model.Student{ID: 9, Name: "Budi", ClassID: 2}, ExamID: managerExam})
	require.NoError(t, err)
	require.NoError(t, b.SelectAnswer("A"))
	_, err = m.Open(ctx, openParams(7))
	require.NoError(t, err)

	live := m.List(managerExam)

	require.Len(t, live, 2)
	assert.Equal(t, 7, live[0].StudentID)
	assert.Equal(t, 9, live[1].StudentID)
	assert.Equal(t, "Budi", live[1].Name)
	assert.Equal(t, 1, live[1].AnsweredCount)
	assert.Equal(t, 1, live[1].QuestionCount)
	assert.Empty(t, m.List("other-exam"))
}
