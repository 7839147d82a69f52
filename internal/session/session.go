package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
)

const journalTimeout = 3 * time.Second

// Scorer runs the scoring pipeline over a submission.
type Scorer interface {
	Run(ctx context.Context, sub *scoring.Submission) (*scoring.Result, error)
}

// ExamSource returns exam metadata.
type ExamSource interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
}

// Progress is what a student already did in an earlier connection to the same exam.
type Progress struct {
	StartedAt  time.Time
	Answers    map[string]string
	Violations int
}

// Journal receives best-effort copies of session events for persistence and
// resumption. Failures are logged and never affect the session.
type Journal interface {
	Resume(ctx context.Context, examID string, studentID int) (*Progress, error)
	RecordOrder(ctx context.Context, examID string, studentID int, questionIDs []string) error
	RecordAnswer(ctx context.Context, examID string, studentID int, questionID, value string) error
	RecordViolation(ctx context.Context, examID string, studentID int, v Violation) error
	RecordCompletion(ctx context.Context, examID string, studentID int, res *scoring.Result) error
}

// Deps are the collaborators of a Session. Exams and Journal may be nil.
type Deps struct {
	Loader    *Loader
	Exams     ExamSource
	Scorer    Scorer
	Announcer Announcer
	Journal   Journal
	Log       zerolog.Logger
}

// Options tune a Session.
type Options struct {
	Student        model.Student
	DefaultMinutes int
	TickInterval   time.Duration
	OptionsDelay   time.Duration
	ExitWarningFor time.Duration
	// OnComplete fires once with the final score.
	OnComplete func(score, totalPoints int)
	// OnNotice fires for every countdown notice, after it was announced.
	OnNotice func(Notice)
}

// Session runs a single timed exam attempt from question load to graded submission.
// All state transitions are serialized by mu; the countdown ticks and background
// timers run in their own goroutines and only touch state through the same lock.
type Session struct {
	mu sync.Mutex

	deps Deps
	opts Options
	log  zerolog.Logger

	exam      model.Exam
	questions []model.Question
	degraded  bool
	answers   *AnswerStore
	nav       *Navigator
	countdown *Countdown
	reactor   *ViolationReactor

	starting  bool
	started   bool
	completed bool
	disposed  bool

	result     *scoring.Result
	submitDone chan struct{}

	// navSeq invalidates delayed announcements of a question the student left.
	navSeq atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an unstarted Session.
func New(deps Deps, opts Options) *Session {
	if deps.Announcer == nil {
		deps.Announcer = AnnouncerFunc(func(string) {})
	}
	if opts.DefaultMinutes <= 0 {
		opts.DefaultMinutes = 60
	}
	if opts.OptionsDelay <= 0 {
		opts.OptionsDelay = 1500 * time.Millisecond
	}
	if opts.ExitWarningFor <= 0 {
		opts.ExitWarningFor = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		deps: deps,
		opts: opts,
		log: deps.Log.With().
			Str("component", "exam_session").
			Int("student_id", opts.Student.ID).
			Logger(),
		answers:    NewAnswerStore(),
		submitDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.reactor = NewViolationReactor(opts.ExitWarningFor, s.IsCompleted, deps.Announcer.Announce, s.recordViolation, &s.wg)
	return s
}

// Start loads the exam's questions and starts the countdown.
// It fails with ErrNotFound when the exam has no questions; an unreachable
// question source degrades to the fallback set when the loader allows it.
func (s *Session) Start(ctx context.Context, examID string) error {
	s.mu.Lock()
	switch {
	case s.disposed:
		s.mu.Unlock()
		return ErrDisposed
	case s.starting || s.started:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.starting = true
	s.mu.Unlock()

	exam := s.lookupExam(ctx, examID)

	loaded, err := s.deps.Loader.Load(ctx, examID)
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		return err
	}

	seconds := exam.DurationMinutes * 60
	var progress *Progress
	if !loaded.Degraded && s.deps.Journal != nil {
		p, err := s.deps.Journal.Resume(ctx, examID, s.opts.Student.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("Resume lookup failed, starting fresh")
		} else {
			progress = p
		}
	}
	if progress != nil && !progress.StartedAt.IsZero() {
		seconds -= int(time.Since(progress.StartedAt).Seconds())
	}

	s.mu.Lock()
	if s.disposed {
		s.starting = false
		s.mu.Unlock()
		return ErrDisposed
	}
	s.exam = *exam
	s.questions = loaded.Questions
	s.degraded = loaded.Degraded
	if progress != nil {
		for _, q := range s.questions {
			if v, ok := progress.Answers[q.ID]; ok {
				s.answers.Set(q.ID, v)
			}
		}
		s.reactor.Restore(progress.Violations)
	}
	s.nav = NewNavigator(s.questions, s.opts.OptionsDelay)
	s.countdown = NewCountdown(seconds, s.opts.TickInterval, s.onNotice, s.onExpire)
	s.log = s.log.With().Str("exam_id", examID).Logger()
	s.started = true
	s.starting = false

	var anns []Announcement
	if s.degraded {
		anns = append(anns, immediate(msgDegraded))
	}
	anns = append(anns, immediate(startAnnouncement(&s.exam, len(s.questions), (max(seconds, 0)+59)/60)))
	anns = append(anns, s.nav.Repeat().Announcements...)
	texts := s.scheduleLocked(anns)
	countdown := s.countdown
	s.mu.Unlock()

	s.announce(texts)

	if !s.degraded {
		ids := make([]string, len(loaded.Questions))
		for i, q := range loaded.Questions {
			ids[i] = q.ID
		}
		s.journal(func(ctx context.Context, j Journal) error {
			return j.RecordOrder(ctx, examID, s.opts.Student.ID, ids)
		})
	}

	s.log.Info().
		Int("questions", len(loaded.Questions)).
		Int("remaining_seconds", seconds).
		Bool("degraded", loaded.Degraded).
		Bool("resumed", progress != nil && len(progress.Answers) > 0).
		Msg("Exam session started")

	countdown.Start(s.ctx)
	return nil
}

func (s *Session) lookupExam(ctx context.Context, examID string) *model.Exam {
	exam := &model.Exam{ID: examID, Title: examID}
	if s.deps.Exams != nil {
		found, err := s.deps.Exams.GetExam(ctx, examID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("Exam metadata unavailable, using defaults")
		} else {
			exam = found
		}
	}
	if exam.DurationMinutes <= 0 {
		exam.DurationMinutes = s.opts.DefaultMinutes
	}
	return exam
}

// SelectAnswer stores value as the answer to the current question.
func (s *Session) SelectAnswer(value string) error {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	qid, texts := s.selectLocked(value)
	s.mu.Unlock()

	s.announce(texts)
	s.recordAnswer(qid, value)
	return nil
}

func (s *Session) selectLocked(value string) (string, []string) {
	q := s.nav.CurrentQuestion()
	s.answers.Set(q.ID, value)
	if isBlank(value) {
		return q.ID, []string{msgAnswerCleared}
	}
	return q.ID, []string{selectedAnnouncement(value)}
}

// Navigate applies a navigation action. Boundary no-ops are reported as a Signal.
func (s *Session) Navigate(ctx context.Context, action NavAction) (Signal, error) {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		if err == ErrCompleted {
			return SignalCompleted, err
		}
		return SignalNone, err
	}

	var move Move
	switch action {
	case NavNext:
		if s.nav.Reviewing() {
			move = s.nav.ReviewAdvance()
		} else {
			move = s.nav.Advance()
		}
	case NavPrevious:
		if s.nav.Reviewing() {
			move = s.nav.ReviewRetreat()
		} else {
			move = s.nav.Retreat()
		}
	case NavEnterReview:
		move = s.nav.EnterReview(s.answers)
	case NavReviewNext:
		move = s.nav.ReviewAdvance()
	case NavReviewPrevious:
		move = s.nav.ReviewRetreat()
	case NavExitReview:
		move = s.nav.ExitReview()
	case NavFocusNext:
		s.nav.CycleFocus(1)
		move = Move{Announcements: []Announcement{immediate(s.focusLabelLocked())}}
	case NavFocusPrevious:
		s.nav.CycleFocus(-1)
		move = Move{Announcements: []Announcement{immediate(s.focusLabelLocked())}}
	case NavRepeat:
		move = s.nav.Repeat()
	case NavActivate:
		return s.activateLocked(ctx)
	default:
		s.mu.Unlock()
		return SignalUnknownAction, nil
	}

	if move.Signal == SignalNone {
		s.navSeq.Add(1)
	}
	texts := s.scheduleLocked(move.Announcements)
	s.mu.Unlock()

	s.announce(texts)
	return move.Signal, nil
}

// activateLocked triggers the focused element. It releases s.mu.
func (s *Session) activateLocked(ctx context.Context) (Signal, error) {
	kind, option := s.nav.Focused()
	switch kind {
	case FocusOption:
		q := s.nav.CurrentQuestion()
		qid, texts := s.selectLocked(q.Options[option])
		s.mu.Unlock()
		s.announce(texts)
		s.recordAnswer(qid, q.Options[option])
		return SignalNone, nil
	case FocusSubmit:
		s.mu.Unlock()
		_, err := s.Submit(ctx, model.SubmitModeManual)
		return SignalNone, err
	}
	s.mu.Unlock()

	switch kind {
	case FocusPrevious:
		return s.Navigate(ctx, NavPrevious)
	case FocusNext:
		return s.Navigate(ctx, NavNext)
	default:
		return s.Navigate(ctx, NavRepeat)
	}
}

func (s *Session) focusLabelLocked() string {
	q := s.nav.CurrentQuestion()
	kind, option := s.nav.Focused()
	switch kind {
	case FocusQuestion:
		return questionAnnouncement(q, s.nav.Current(), len(s.questions))
	case FocusOption:
		label := "Option " + optionLabel(option) + ": " + q.Options[option] + "."
		if v, _ := s.answers.Get(q.ID); v == q.Options[option] {
			label += " Selected."
		}
		return label
	case FocusPrevious:
		return msgButtonPrevious
	case FocusNext:
		return msgButtonNext
	default:
		return statusAnnouncement(s.answers.AnsweredCount(s.questions), len(s.questions))
	}
}

// Submit grades and persists the attempt. Only the first call runs the pipeline;
// later or concurrent calls wait for it and return the same result. The returned
// result is non-nil even when the error wraps scoring.ErrPersistence.
func (s *Session) Submit(ctx context.Context, mode model.SubmitMode) (*scoring.Result, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if s.completed {
		done := s.submitDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, nil
	}
	s.completed = true
	sub := &scoring.Submission{
		Exam:      s.exam,
		Student:   s.opts.Student,
		Questions: s.questions,
		Answers:   s.answers.Snapshot(),
		Mode:      mode,
		Degraded:  s.degraded,
	}
	s.mu.Unlock()

	s.announce([]string{msgSubmitting})

	s.countdown.Cancel()

	// A started pipeline always finishes, whatever happens to the caller or the session.
	res, err := s.deps.Scorer.Run(context.WithoutCancel(ctx), sub)
	if err != nil {
		s.log.Error().Err(err).Msg("Submission finished with errors")
	}
	if res == nil {
		score, total := 0, 0
		for _, q := range sub.Questions {
			total += q.PointValue()
		}
		res = &scoring.Result{Score: score, TotalPoints: total, Mode: mode}
	}

	s.mu.Lock()
	s.result = res
	degraded := s.degraded
	s.mu.Unlock()
	s.announce([]string{completedAnnouncement(res.Score, res.TotalPoints)})
	close(s.submitDone)

	if !degraded {
		s.journal(func(ctx context.Context, j Journal) error {
			return j.RecordCompletion(ctx, s.exam.ID, s.opts.Student.ID, res)
		})
	}
	if s.opts.OnComplete != nil {
		s.opts.OnComplete(res.Score, res.TotalPoints)
	}
	return res, err
}

// ReportViolation is the entry point of the external integrity monitor.
// It reports whether the violation was accepted.
func (s *Session) ReportViolation(kind string) bool {
	s.mu.Lock()
	ready := s.started && !s.disposed
	s.mu.Unlock()
	if !ready {
		return false
	}
	return s.reactor.React(s.ctx, kind)
}

// DismissTimerWarning hides the timer warning.
func (s *Session) DismissTimerWarning() {
	s.mu.Lock()
	cd := s.countdown
	s.mu.Unlock()
	if cd != nil {
		cd.DismissWarning()
	}
}

// Dispose cancels the countdown, pending announcements and warning timers.
// A submission already in progress still runs to completion. Safe to call repeatedly.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	cd := s.countdown
	s.mu.Unlock()

	if cd != nil {
		cd.Cancel()
	}
	s.cancel()
	s.log.Debug().Msg("Exam session disposed")
}

// Wait blocks until background work (delayed announcements, warning timers,
// auto-submission) has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// IsCompleted reports whether a submission has begun.
func (s *Session) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Result returns the graded result, or nil before the submission finished.
func (s *Session) Result() *scoring.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// State returns a read-only snapshot for rendering.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.SessionState{
		ExamID:             s.exam.ID,
		ExamTitle:          s.exam.Title,
		QuestionCount:      len(s.questions),
		IsCompleted:        s.completed,
		Degraded:           s.degraded,
		ExitWarningVisible: s.reactor.WarningVisible(),
		ViolationCount:     s.reactor.Count(),
	}
	if !s.started {
		return st
	}

	q := s.nav.CurrentQuestion()
	view := q.ForStudent()
	st.CurrentQuestionIndex = s.nav.Current()
	st.CurrentQuestion = &view
	st.CurrentAnswer, _ = s.answers.Get(q.ID)
	st.AnsweredCount = s.answers.AnsweredCount(s.questions)
	st.IsReviewingUnanswered = s.nav.Reviewing()
	if st.IsReviewingUnanswered {
		st.CurrentUnansweredIndex = s.nav.ReviewIndex()
		st.UnansweredInReview = s.nav.ReviewSize()
	}
	st.FocusedElement = s.nav.Focus()
	st.FocusElementCount = s.nav.FocusCount()
	st.RemainingSeconds = s.countdown.Remaining()
	st.TimerWarningVisible = s.countdown.WarningVisible()
	if s.result != nil {
		score, total := s.result.Score, s.result.TotalPoints
		st.Score = &score
		st.TotalPoints = &total
	}
	return st
}

// ─── internals ─────────────────────────────────────────────────────

func (s *Session) activeLocked() error {
	switch {
	case s.disposed:
		return ErrDisposed
	case !s.started:
		return ErrNotStarted
	case s.completed:
		return ErrCompleted
	}
	return nil
}

// scheduleLocked starts timers for delayed content and returns the immediate
// texts in order. Callers announce them with announce once s.mu is released,
// since an announcer may block on the network.
// A delayed announcement is dropped when the student navigated in the meantime
// or the session was disposed.
func (s *Session) scheduleLocked(anns []Announcement) []string {
	var texts []string
	for _, a := range anns {
		if a.Delay <= 0 {
			texts = append(texts, a.Text)
			continue
		}

		seq := s.navSeq.Load()
		text, delay := a.Text, a.Delay
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-s.ctx.Done():
			case <-timer.C:
				if s.navSeq.Load() == seq {
					s.deps.Announcer.Announce(text)
				}
			}
		}()
	}
	return texts
}

func (s *Session) announce(texts []string) {
	for _, t := range texts {
		s.deps.Announcer.Announce(t)
	}
}

func (s *Session) onNotice(n Notice) {
	s.deps.Announcer.Announce(n.Text)
	if s.opts.OnNotice != nil {
		s.opts.OnNotice(n)
	}
}

// onExpire runs on the countdown goroutine; the submission gets its own goroutine
// so the countdown is never blocked by grading I/O.
func (s *Session) onExpire() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Submit(context.Background(), model.SubmitModeTimeout); err != nil {
			s.log.Warn().Err(err).Msg("Auto-submission on expiry reported errors")
		}
	}()
}

func (s *Session) recordAnswer(questionID, value string) {
	s.mu.Lock()
	degraded, examID := s.degraded, s.exam.ID
	s.mu.Unlock()
	if degraded {
		return
	}
	s.journal(func(ctx context.Context, j Journal) error {
		return j.RecordAnswer(ctx, examID, s.opts.Student.ID, questionID, value)
	})
}

func (s *Session) recordViolation(v Violation) {
	s.mu.Lock()
	degraded, examID := s.degraded, s.exam.ID
	s.mu.Unlock()
	if degraded {
		return
	}
	s.journal(func(ctx context.Context, j Journal) error {
		return j.RecordViolation(ctx, examID, s.opts.Student.ID, v)
	})
}

func (s *Session) journal(fn func(ctx context.Context, j Journal) error) {
	if s.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := fn(ctx, s.deps.Journal); err != nil {
		s.log.Warn().Err(err).Msg("Journal write failed")
	}
}
