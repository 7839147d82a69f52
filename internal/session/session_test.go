package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAttemptStore is a mock implementation of scoring.AttemptStore
type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) HasAttempt(ctx context.Context, studentID int, examID string) (bool, error) {
	args := m.Called(ctx, studentID, examID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptStore) SaveAttempt(ctx context.Context, record *model.ExamAttemptRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAttemptStore) UpdateAttempt(ctx context.Context, record *model.ExamAttemptRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type staticExams struct{ exam *model.Exam }

func (s staticExams) GetExam(_ context.Context, _ string) (*model.Exam, error) {
	return s.exam, nil
}

type recorder struct {
	mu   sync.Mutex
	said []string
}

func (r *recorder) Announce(text string) {
	r.mu.Lock()
	r.said = append(r.said, text)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.said)
}

func (r *recorder) last() string {
	all := r.all()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

func (r *recorder) containing(sub string) int {
	n := 0
	for _, s := range r.all() {
		if strings.Contains(s, sub) {
			n++
		}
	}
	return n
}

func examQuestions() []model.Question {
	return []model.Question{
		{ID: "sa", QuestionText: "Process plants use to make food?", CorrectAnswer: "photosynthesis", QuestionType: model.QuestionTypeShortAnswer, Points: 1, Number: 3},
		{ID: "mc", QuestionText: "Pick B", Options: []string{"A", "B", "C"}, CorrectAnswer: "B", QuestionType: model.QuestionTypeMultipleChoice, Points: 2, Number: 1},
		{ID: "tf", QuestionText: "The sky is green.", Options: []string{"True", "False"}, CorrectAnswer: "False", QuestionType: model.QuestionTypeTrueFalse, Points: 1, Number: 2},
	}
}

type fixture struct {
	session *Session
	store   *MockAttemptStore
	said    *recorder
}

type memJournal struct {
	mu          sync.Mutex
	progress    *Progress
	resumed     int
	completions []*scoring.Result
}

func (j *memJournal) Resume(context.Context, string, int) (*Progress, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resumed++
	return j.progress, nil
}

func (j *memJournal) RecordOrder(context.Context, string, int, []string) error { return nil }

func (j *memJournal) RecordAnswer(context.Context, string, int, string, string) error { return nil }

func (j *memJournal) RecordViolation(context.Context, string, int, Violation) error { return nil }

func (j *memJournal) RecordCompletion(_ context.Context, _ string, _ int, res *scoring.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completions = append(j.completions, res)
	return nil
}

func (j *memJournal) completed() []*scoring.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.completions)
}

func newFixture(t *testing.T, minutes int, tweak func(*Options)) *fixture {
	t.Helper()
	return newFixtureWith(t, minutes, nil, tweak)
}

// newFixtureWith lets a test swap collaborators before the session is built.
func newFixtureWith(t *testing.T, minutes int, deps func(*Deps), tweak func(*Options)) *fixture {
	t.Helper()

	src := new(MockQuestionSource)
	src.On("LoadQuestions", mock.Anything, "exam-1").Return(examQuestions(), nil)

	store := new(MockAttemptStore)
	store.On("HasAttempt", mock.Anything, 7, "exam-1").Return(false, nil)
	store.On("SaveAttempt", mock.Anything, mock.Anything).Return(nil)
	store.On("UpdateAttempt", mock.Anything, mock.Anything).Return(nil)

	said := &recorder{}
	opts := Options{
		Student:        model.Student{ID: 7, Name: "Rina"},
		TickInterval:   time.Hour,
		OptionsDelay:   time.Hour,
		ExitWarningFor: time.Millisecond,
	}
	if tweak != nil {
		tweak(&opts)
	}
	d := Deps{
		Loader:    NewLoader(src, false, zerolog.Nop()),
		Exams:     staticExams{exam: &model.Exam{ID: "exam-1", Title: "Science", DurationMinutes: minutes}},
		Scorer:    scoring.NewPipeline(scoring.LevenshteinSimilarity{}, store, zerolog.Nop()),
		Announcer: said,
		Log:       zerolog.Nop(),
	}
	if deps != nil {
		deps(&d)
	}
	s := New(d, opts)
	t.Cleanup(func() {
		s.Dispose()
		s.Wait()
	})
	return &fixture{session: s, store: store, said: said}
}

func TestSession_StartAnnouncesExamAndFirstQuestion(t *testing.T) {
	f := newFixture(t, 30, nil)

	require.NoError(t, f.session.Start(context.Background(), "exam-1"))

	all := f.said.all()
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, "Exam Science started. 3 questions. You have 30 minutes.", all[0])
	assert.Equal(t, "Question 1 of 3. Pick B", all[1])

	st := f.session.State()
	assert.Equal(t, 3, st.QuestionCount)
	assert.Equal(t, "mc", st.CurrentQuestion.ID)
	assert.Equal(t, 30*60, st.RemainingSeconds)
	assert.False(t, st.IsCompleted)

	assert.ErrorIs(t, f.session.Start(context.Background(), "exam-1"), ErrAlreadyStarted)
}

func TestSession_OperationsBeforeStart(t *testing.T) {
	f := newFixture(t, 30, nil)

	assert.ErrorIs(t, f.session.SelectAnswer("B"), ErrNotStarted)
	_, err := f.session.Navigate(context.Background(), NavNext)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = f.session.Submit(context.Background(), model.SubmitModeManual)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.False(t, f.session.ReportViolation("APP_SWITCH"))
}

func TestSession_AnswerNavigateAndSubmit(t *testing.T) {
	f := newFixture(t, 30, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))

	require.NoError(t, f.session.SelectAnswer("B"))
	assert.Equal(t, "Selected: B.", f.said.last())

	sig, err := f.session.Navigate(ctx, NavNext)
	require.NoError(t, err)
	assert.Equal(t, SignalNone, sig)
	require.NoError(t, f.session.SelectAnswer("True"))

	_, _ = f.session.Navigate(ctx, NavNext)
	require.NoError(t, f.session.SelectAnswer("Photosynthesis"))

	sig, err = f.session.Navigate(ctx, NavNext)
	require.NoError(t, err)
	assert.Equal(t, SignalNoNext, sig)

	res, err := f.session.Submit(ctx, model.SubmitModeManual)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 4, res.TotalPoints)
	assert.Equal(t, "Exam submitted. Your score is 3 out of 4.", f.said.last())

	st := f.session.State()
	assert.True(t, st.IsCompleted)
	require.NotNil(t, st.Score)
	assert.Equal(t, 3, *st.Score)

	_, err = f.session.Navigate(ctx, NavPrevious)
	assert.ErrorIs(t, err, ErrCompleted)
	assert.ErrorIs(t, f.session.SelectAnswer("A"), ErrCompleted)
}

func TestSession_SubmitIsIdempotent(t *testing.T) {
	var completions int
	var mu sync.Mutex
	f := newFixture(t, 30, func(o *Options) {
		o.OnComplete = func(int, int) { mu.Lock(); completions++; mu.Unlock() }
	})
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))
	require.NoError(t, f.session.SelectAnswer("B"))

	var wg sync.WaitGroup
	results := make([]*scoring.Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = f.session.Submit(ctx, model.SubmitModeManual)
		}()
	}
	wg.Wait()

	f.store.AssertNumberOfCalls(t, "SaveAttempt", 1)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, 2, r.Score)
	}
	mu.Lock()
	assert.Equal(t, 1, completions)
	mu.Unlock()
}

func TestSession_TimeoutSubmitsAutomatically(t *testing.T) {
	f := newFixture(t, 1, func(o *Options) { o.TickInterval = 2 * time.Millisecond })
	require.NoError(t, f.session.Start(context.Background(), "exam-1"))
	require.NoError(t, f.session.SelectAnswer("B"))

	require.Eventually(t, func() bool { return f.session.Result() != nil }, 5*time.Second, 5*time.Millisecond)

	f.store.AssertCalled(t, "SaveAttempt", mock.Anything, mock.MatchedBy(func(r *model.ExamAttemptRecord) bool {
		return r.SubmitMode == model.SubmitModeTimeout && r.Score == 2
	}))
	assert.Equal(t, 1, f.said.containing("Critical warning: 1 minute remaining"))
	assert.Equal(t, 1, f.said.containing("Time is up"))
}

func TestSession_StaleOptionsAnnouncementDropped(t *testing.T) {
	f := newFixture(t, 30, func(o *Options) { o.OptionsDelay = 30 * time.Millisecond })
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))

	_, err := f.session.Navigate(ctx, NavNext)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.said.containing("Option A: True.") == 1
	}, time.Second, time.Millisecond)
	f.session.Dispose()
	f.session.Wait()

	assert.Zero(t, f.said.containing("Option A: A."), "options of a question the student left")
}

func TestSession_FocusAndActivate(t *testing.T) {
	f := newFixture(t, 30, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))

	_, _ = f.session.Navigate(ctx, NavFocusNext)
	_, _ = f.session.Navigate(ctx, NavFocusNext)
	assert.Equal(t, "Option B: B.", f.said.last())

	_, err := f.session.Navigate(ctx, NavActivate)
	require.NoError(t, err)
	assert.Equal(t, "B", f.session.State().CurrentAnswer)

	_, _ = f.session.Navigate(ctx, NavFocusPrevious)
	_, _ = f.session.Navigate(ctx, NavFocusNext)
	assert.Equal(t, "Option B: B. Selected.", f.said.last())

	_, _ = f.session.Navigate(ctx, NavFocusPrevious)
	_, _ = f.session.Navigate(ctx, NavFocusPrevious)
	_, _ = f.session.Navigate(ctx, NavFocusPrevious)
	assert.Equal(t, "Submit exam button. 1 of 3 questions answered.", f.said.last())

	_, err = f.session.Navigate(ctx, NavActivate)
	require.NoError(t, err)
	assert.True(t, f.session.IsCompleted())
}

// Keyboard and gesture input map to the same actions, so any sequence of actions
// must leave two sessions in the same state.
func TestSession_ModalitiesConverge(t *testing.T) {
	ctx := context.Background()
	keyboard := newFixture(t, 30, nil).session
	gesture := newFixture(t, 30, nil).session
	require.NoError(t, keyboard.Start(ctx, "exam-1"))
	require.NoError(t, gesture.Start(ctx, "exam-1"))

	steps := []NavAction{NavNext, NavFocusNext, NavActivate, NavEnterReview, NavReviewNext, NavExitReview, NavPrevious}
	for _, a := range steps {
		ks, kerr := keyboard.Navigate(ctx, a)
		gs, gerr := gesture.Navigate(ctx, a)
		assert.Equal(t, ks, gs, a)
		assert.Equal(t, kerr, gerr, a)
	}

	assert.Equal(t, keyboard.State(), gesture.State())
}

func TestSession_ReviewRoutesNextAndPrevious(t *testing.T) {
	f := newFixture(t, 30, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))
	require.NoError(t, f.session.SelectAnswer("B"))

	sig, err := f.session.Navigate(ctx, NavEnterReview)
	require.NoError(t, err)
	require.Equal(t, SignalNone, sig)
	assert.Equal(t, "tf", f.session.State().CurrentQuestion.ID)

	sig, _ = f.session.Navigate(ctx, NavNext)
	assert.Equal(t, SignalNone, sig)
	assert.Equal(t, "sa", f.session.State().CurrentQuestion.ID)

	sig, _ = f.session.Navigate(ctx, NavNext)
	assert.Equal(t, SignalNoNextUnanswered, sig)

	st := f.session.State()
	assert.True(t, st.IsReviewingUnanswered)
	assert.Equal(t, 1, st.CurrentUnansweredIndex)
	assert.Equal(t, 2, st.UnansweredInReview)
}

func TestSession_ViolationDoesNotTouchProgress(t *testing.T) {
	f := newFixture(t, 30, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))
	_, _ = f.session.Navigate(ctx, NavNext)
	before := f.session.State()

	assert.True(t, f.session.ReportViolation("APP_SWITCH"))

	after := f.session.State()
	assert.Equal(t, before.CurrentQuestionIndex, after.CurrentQuestionIndex)
	assert.Equal(t, 1, after.ViolationCount)
	assert.False(t, after.IsCompleted)

	_, err := f.session.Submit(ctx, model.SubmitModeManual)
	require.NoError(t, err)
	assert.False(t, f.session.ReportViolation("APP_SWITCH"))
}

func TestSession_Dispose(t *testing.T) {
	f := newFixture(t, 30, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "exam-1"))

	f.session.Dispose()
	f.session.Dispose()
	f.session.Wait()

	_, err := f.session.Navigate(ctx, NavNext)
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, f.session.Start(ctx, "exam-1"), ErrDisposed)
	f.store.AssertNotCalled(t, "SaveAttempt", mock.Anything, mock.Anything)
}

func TestSession_DegradedStart(t *testing.T) {
	src := new(MockQuestionSource)
	src.On("LoadQuestions", mock.Anything, "exam-1").Return(nil, assert.AnError)
	said := &recorder{}
	s := New(Deps{
		Loader:    NewLoader(src, true, zerolog.Nop()),
		Scorer:    scoring.NewPipeline(nil, new(MockAttemptStore), zerolog.Nop()),
		Announcer: said,
		Log:       zerolog.Nop(),
	}, Options{TickInterval: time.Hour})
	t.Cleanup(func() { s.Dispose(); s.Wait() })

	require.NoError(t, s.Start(context.Background(), "exam-1"))

	assert.True(t, s.State().Degraded)
	assert.Equal(t, msgDegraded, said.all()[0])
	assert.Equal(t, 60*60, s.State().RemainingSeconds, "default duration without exam metadata")
}

func TestSession_DegradedSubmitIsNotStored(t *testing.T) {
	src := new(MockQuestionSource)
	src.On("LoadQuestions", mock.Anything, "exam-1").Return(nil, assert.AnError)
	store := new(MockAttemptStore)
	journal := &memJournal{}
	s := New(Deps{
		Loader:    NewLoader(src, true, zerolog.Nop()),
		Scorer:    scoring.NewPipeline(nil, store, zerolog.Nop()),
		Announcer: &recorder{},
		Journal:   journal,
		Log:       zerolog.Nop(),
	}, Options{Student: model.Student{ID: 7}, TickInterval: time.Hour, OptionsDelay: time.Hour})
	t.Cleanup(func() { s.Dispose(); s.Wait() })
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "exam-1"))
	res, err := s.Submit(ctx, model.SubmitModeManual)

	require.NoError(t, err)
	assert.True(t, res.Practice)
	assert.False(t, res.Persisted)
	assert.True(t, s.IsCompleted())
	store.AssertNotCalled(t, "HasAttempt", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "SaveAttempt", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateAttempt", mock.Anything, mock.Anything)
	assert.Zero(t, journal.resumed)
	assert.Empty(t, journal.completed())
}

func TestSession_ResumeContinuesEarlierConnection(t *testing.T) {
	journal := &memJournal{progress: &Progress{
		StartedAt:  time.Now().Add(-10 * time.Minute),
		Answers:    map[string]string{"mc": "B", "tf": "False", "removed": "A"},
		Violations: 2,
	}}
	f := newFixtureWith(t, 30, func(d *Deps) { d.Journal = journal }, nil)

	require.NoError(t, f.session.Start(context.Background(), "exam-1"))

	st := f.session.State()
	assert.InDelta(t, 20*60, st.RemainingSeconds, 2, "clock runs from the first start")
	assert.Equal(t, 2, st.AnsweredCount, "answers for unknown questions are dropped")
	assert.Equal(t, "B", st.CurrentAnswer)
	assert.Equal(t, "Exam Science started. 3 questions. You have 20 minutes.", f.said.all()[0])

	assert.Equal(t, 2, st.ViolationCount)
	require.True(t, f.session.ReportViolation("APP_SWITCH"))
	assert.Equal(t, 3, f.session.State().ViolationCount)
}

func TestSession_ResumeAfterDeadlineSubmits(t *testing.T) {
	journal := &memJournal{progress: &Progress{
		StartedAt: time.Now().Add(-31 * time.Minute),
		Answers:   map[string]string{"mc": "B"},
	}}
	f := newFixtureWith(t, 30, func(d *Deps) { d.Journal = journal }, nil)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "exam-1"))

	require.Eventually(t, f.session.IsCompleted, time.Second, time.Millisecond)
	res, err := f.session.Submit(ctx, model.SubmitModeManual)
	require.NoError(t, err)
	assert.Equal(t, model.SubmitModeTimeout, res.Mode)
	assert.Equal(t, 2, res.Score)
	assert.Zero(t, f.session.State().RemainingSeconds)
	f.store.AssertCalled(t, "SaveAttempt", mock.Anything, mock.MatchedBy(func(r *model.ExamAttemptRecord) bool {
		return r.SubmitMode == model.SubmitModeTimeout
	}))
	assert.Eventually(t, func() bool { return len(journal.completed()) == 1 }, time.Second, time.Millisecond)
}

func TestSession_StartDoesNotRepeatDuration(t *testing.T) {
	f := newFixture(t, 30, nil)

	require.NoError(t, f.session.Start(context.Background(), "exam-1"))

	assert.Equal(t, 1, f.said.containing("30 minutes"))
	assert.Zero(t, f.said.containing("minutes remaining"))
}

type blockingAnnouncer struct {
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAnnouncer) Announce(string) {
	if !b.armed.Load() {
		return
	}
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func TestSession_SlowAnnouncerDoesNotBlockState(t *testing.T) {
	slow := &blockingAnnouncer{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, 30, func(d *Deps) { d.Announcer = slow }, nil)
	t.Cleanup(func() { close(slow.release) })
	require.NoError(t, f.session.Start(context.Background(), "exam-1"))

	slow.armed.Store(true)
	go func() { _ = f.session.SelectAnswer("B") }()
	<-slow.entered

	got := make(chan model.SessionState, 1)
	go func() { got <- f.session.State() }()
	select {
	case st := <-got:
		assert.Equal(t, 1, st.AnsweredCount)
	case <-time.After(time.Second):
		t.Fatal("State waited on an announcement")
	}
}
