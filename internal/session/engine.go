package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/result"
	"github.com/exam-forge/examforge-engine/internal/scoring"
)

const noSelection = -1

// Option configures an Engine.
type Option func(*config)

type config struct {
	tickInterval  time.Duration
	autosaveEvery time.Duration
	saveDebounce  time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

func WithTickInterval(d time.Duration) Option { return func(c *config) { c.tickInterval = d } }

func WithAutosaveInterval(d time.Duration) Option { return func(c *config) { c.autosaveEvery = d } }

func WithSaveDebounce(d time.Duration) Option { return func(c *config) { c.saveDebounce = d } }

func WithNow(now func() time.Time) Option { return func(c *config) { c.now = now } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// Engine owns one test-taking session for one (user, test) pair. All public
// operations serialize on a single mutex, so no two mutations ever interleave
// over the snapshot; persistence runs on a separate coalescing writer that
// always sends the latest in-memory state, never a queued stale copy.
type Engine struct {
	provider catalog.Provider
	store    progress.Store
	sink     result.Sink
	clock    *Clock
	now      func() time.Time
	log      *slog.Logger

	autosaveEvery time.Duration
	saveDebounce  time.Duration

	lifetime context.Context
	halt     context.CancelFunc
	saveCh   chan struct{}

	mu         sync.Mutex
	state      State
	test       catalog.Test
	snap       progress.Snapshot
	selected   int // staged choice for the current question; not persisted
	debounce   *time.Timer
	lastResult *result.Result
	closed     bool
}

func NewEngine(provider catalog.Provider, store progress.Store, sink result.Sink, opts ...Option) *Engine {
	cfg := &config{
		tickInterval:  time.Second,
		autosaveEvery: 30 * time.Second,
		saveDebounce:  time.Second,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		provider:      provider,
		store:         store,
		sink:          sink,
		clock:         NewClock(cfg.tickInterval),
		now:           cfg.now,
		log:           cfg.logger,
		autosaveEvery: cfg.autosaveEvery,
		saveDebounce:  cfg.saveDebounce,
		lifetime:      ctx,
		halt:          cancel,
		saveCh:        make(chan struct{}, 1),
		state:         StateUninitialized,
		selected:      noSelection,
	}
}

// Load fetches the test definition and either resumes a stored non-completed
// snapshot or creates a fresh one. A fresh snapshot is persisted before the
// session goes active, so a crash right after creation cannot lose the
// "session started" fact. Returns whether an existing session was resumed.
func (e *Engine) Load(ctx context.Context, testID, userID string) (bool, error) {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return false, ErrAlreadyLoaded
	}
	e.state = StateLoading
	e.mu.Unlock()

	t, err := e.provider.GetTest(ctx, testID)
	if err != nil {
		e.resetToUninitialized()
		if errors.Is(err, catalog.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
		}
		return false, fmt.Errorf("%w: fetch test: %v", ErrStoreUnavailable, err)
	}
	if len(t.Questions) == 0 {
		e.resetToUninitialized()
		return false, fmt.Errorf("%w: %s", ErrEmptyTest, testID)
	}

	snap, err := e.store.Load(ctx, userID, testID)
	resumed := false
	switch {
	case err == nil && !snap.IsCompleted:
		resumed = true
	case err == nil:
		// previous attempt finished; start a fresh one
	case errors.Is(err, progress.ErrAbsent):
	default:
		e.resetToUninitialized()
		return false, fmt.Errorf("%w: read progress: %v", ErrStoreUnavailable, err)
	}

	if resumed {
		snap.TestID = testID
		snap.UserID = userID
		snap.Normalize(t.DurationSeconds, questionNumbers(t))
	} else {
		snap = progress.New(testID, userID, t.DurationSeconds, e.now().UnixMilli())
		if err := e.store.Save(ctx, userID, testID, snap); err != nil {
			e.resetToUninitialized()
			return false, fmt.Errorf("%w: persist new session: %v", ErrStoreUnavailable, err)
		}
	}

	e.mu.Lock()
	e.test = t
	e.snap = snap
	e.syncSelectedLocked()
	e.state = StateActive
	e.mu.Unlock()

	go e.saver()
	go e.autosaveLoop()
	e.clock.Start(e.tick)

	e.log.Info("session started",
		"test_id", testID,
		"user_id", userID,
		"resumed", resumed,
		"time_remaining", formatClock(snap.TimeRemainingSeconds),
	)
	return resumed, nil
}

func (e *Engine) resetToUninitialized() {
	e.mu.Lock()
	e.state = StateUninitialized
	e.mu.Unlock()
}

// tick is the clock callback: decrement, and at zero fire the implicit submit
// exactly once. Returning false stops the clock, so no ticks land after zero.
func (e *Engine) tick() bool {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return false
	}
	if e.snap.TimeRemainingSeconds > 0 {
		e.snap.TimeRemainingSeconds--
	}
	remaining := e.snap.TimeRemainingSeconds
	e.mu.Unlock()

	if remaining > 0 {
		return true
	}
	if err := e.Submit(context.Background()); err != nil && !errors.Is(err, ErrResultDeferred) {
		e.log.Error("auto-submit failed", "test_id", e.TestID(), "error", err)
	}
	return false
}

// SelectAnswer stages a choice for the current question without committing or
// persisting it. The staged choice is discarded on navigation unless
// SaveAnswer is called first.
func (e *Engine) SelectAnswer(choice int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLiveLocked(); err != nil {
		return err
	}
	if choice < 0 || choice >= catalog.NumChoices {
		return ErrInvalidChoice
	}
	e.selected = choice
	return nil
}

// SelectedAnswer returns the staged choice for the current question, if any.
func (e *Engine) SelectedAnswer() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == noSelection {
		return 0, false
	}
	return e.selected, true
}

// SaveAnswer commits a choice for a question and schedules a persist.
// Overwriting an earlier answer is expected; changing one's mind is allowed
// until submission.
func (e *Engine) SaveAnswer(questionNumber, choice int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLiveLocked(); err != nil {
		return err
	}
	if choice < 0 || choice >= catalog.NumChoices {
		return ErrInvalidChoice
	}
	if !e.test.HasQuestion(questionNumber) {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionNumber)
	}
	e.snap.Answers[questionNumber] = choice
	if e.currentQuestionNumberLocked() == questionNumber {
		e.selected = choice
	}
	e.scheduleSaveLocked()
	return nil
}

// ToggleMark flips the review flag for a question and schedules a persist.
func (e *Engine) ToggleMark(questionNumber int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLiveLocked(); err != nil {
		return err
	}
	if !e.test.HasQuestion(questionNumber) {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionNumber)
	}
	e.snap.ToggleMark(questionNumber)
	e.scheduleSaveLocked()
	return nil
}

// GoToQuestion moves to a 1-based position in the original question ordering.
// Out-of-range positions are a tolerated no-op, never an error: callers are
// expected to clamp, and a bad input must not produce an out-of-range state.
func (e *Engine) GoToQuestion(position int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLiveLocked(); err != nil {
		return err
	}
	e.goToLocked(position)
	return nil
}

func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLiveLocked(); err != nil {
		return err
	}
	e.goToLocked(e.snap.CurrentQuestion + 1)
	return nil
}

func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLiveLocked(); err != nil {
		return err
	}
	e.goToLocked(e.snap.CurrentQuestion - 1)
	return nil
}

func (e *Engine) goToLocked(position int) {
	if position < 1 || position > len(e.test.Questions) {
		return
	}
	e.snap.CurrentQuestion = position
	e.syncSelectedLocked()
}

// Pause freezes the countdown. Answering and navigation stay live while
// paused; only the clock is affected.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.closed || !e.state.live() {
		e.mu.Unlock()
		return ErrNotActive
	}
	if e.state == StatePaused {
		e.mu.Unlock()
		return nil
	}
	e.state = StatePaused
	e.mu.Unlock()

	e.clock.Stop()
	e.log.Info("session paused", "test_id", e.TestID(), "user_id", e.UserID())
	return nil
}

// Resume restarts the countdown after a pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.closed || !e.state.live() {
		e.mu.Unlock()
		return ErrNotActive
	}
	if e.state == StateActive {
		e.mu.Unlock()
		return nil
	}
	e.state = StateActive
	e.mu.Unlock()

	e.clock.Start(e.tick)
	e.log.Info("session resumed", "test_id", e.TestID(), "user_id", e.UserID())
	return nil
}

// Submit finalizes the session: scores the current snapshot, records the
// result, persists the completed snapshot and enters the terminal Completed
// state. Idempotent: a timeout racing a user click still yields exactly one
// result, and the losing call returns nil.
//
// A sink failure does not block completion; it is reported as
// ErrResultDeferred so the caller can warn that score recording may lag.
func (e *Engine) Submit(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.state == StateCompleted || e.state == StateSubmitting:
		e.mu.Unlock()
		return nil
	case e.closed || !e.state.live():
		e.mu.Unlock()
		return ErrNotActive
	}
	e.state = StateSubmitting
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	now := e.now().UnixMilli()
	sum := scoring.Score(e.test, e.snap)
	answers := e.snap.Clone().Answers
	res := result.Result{
		ID:               uuid.NewString(),
		TestID:           e.snap.TestID,
		UserID:           e.snap.UserID,
		Score:            sum.Score,
		CorrectAnswers:   sum.CorrectAnswers,
		TotalQuestions:   sum.TotalQuestions,
		TimeTakenSeconds: sum.TimeTakenSeconds,
		Answers:          answers,
		CompletedAt:      now,
	}
	e.snap.IsCompleted = true
	e.snap.LastUpdated = now
	final := e.snap.Clone()
	e.mu.Unlock()

	e.clock.Stop()

	var deferred error
	if err := e.sink.Record(ctx, res); err != nil {
		e.log.Warn("result recording failed; score may be delayed",
			"result_id", res.ID, "test_id", res.TestID, "error", err)
		deferred = fmt.Errorf("%w: %v", ErrResultDeferred, err)
	}
	if err := e.store.Save(ctx, final.UserID, final.TestID, final); err != nil {
		e.log.Warn("final progress save failed", "test_id", final.TestID, "error", err)
	}

	e.mu.Lock()
	e.lastResult = &res
	e.state = StateCompleted
	e.mu.Unlock()
	e.halt()

	e.log.Info("session completed",
		"test_id", res.TestID,
		"user_id", res.UserID,
		"score", res.Score,
		"correct", fmt.Sprintf("%d/%d", res.CorrectAnswers, res.TotalQuestions),
		"time_taken", formatClock(res.TimeTakenSeconds),
	)
	return deferred
}

// Close tears the session down without submitting: the clock and any pending
// debounced save are cancelled and a final best-effort snapshot flush is
// issued so resume picks up from here. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	var final *progress.Snapshot
	if e.state.live() {
		e.snap.LastUpdated = e.now().UnixMilli()
		c := e.snap.Clone()
		final = &c
	}
	e.mu.Unlock()

	e.clock.Stop()
	e.halt()

	if final != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.Save(ctx, final.UserID, final.TestID, *final); err != nil {
			e.log.Warn("flush on close failed", "test_id", final.TestID, "error", err)
		}
	}
	return nil
}

// --- persistence plumbing ---

// scheduleSaveLocked arms (or re-arms) the debounced write after a mutation.
func (e *Engine) scheduleSaveLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.saveDebounce, e.requestSave)
}

// requestSave wakes the writer; the 1-slot channel coalesces bursts.
func (e *Engine) requestSave() {
	select {
	case e.saveCh <- struct{}{}:
	default:
	}
}

func (e *Engine) saver() {
	for {
		select {
		case <-e.lifetime.Done():
			return
		case <-e.saveCh:
			e.flush()
		}
	}
}

// flush writes whatever the snapshot looks like right now. A failure is only
// logged: the in-memory snapshot stays the source of truth and the next
// autosave tick retries. Only live sessions flush: once submission starts,
// the terminal snapshot is written by Submit itself and a late queued save
// must not rewrite it.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.closed || !e.state.live() {
		e.mu.Unlock()
		return
	}
	e.snap.LastUpdated = e.now().UnixMilli()
	snap := e.snap.Clone()
	e.mu.Unlock()

	if err := e.store.Save(e.lifetime, snap.UserID, snap.TestID, snap); err != nil {
		e.log.Warn("progress save failed; retrying on next autosave",
			"test_id", snap.TestID, "user_id", snap.UserID, "error", err)
	}
}

// autosaveLoop writes the latest snapshot at a fixed interval regardless of
// mutation activity, so elapsed time is never lost even if the student never
// answers anything.
func (e *Engine) autosaveLoop() {
	t := time.NewTicker(e.autosaveEvery)
	defer t.Stop()
	for {
		select {
		case <-e.lifetime.Done():
			return
		case <-t.C:
			e.requestSave()
		}
	}
}

// --- read side ---

// Snapshot returns a copy of the current progress for rendering.
func (e *Engine) Snapshot() progress.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone()
}

// Test returns the loaded definition, answer keys included. API layers strip
// keys before serving to students.
func (e *Engine) Test() (catalog.Test, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateUninitialized || e.state == StateLoading {
		return catalog.Test{}, ErrNotLoaded
	}
	return e.test, nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Result returns the recorded outcome once the session has completed.
func (e *Engine) Result() (result.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastResult == nil {
		return result.Result{}, false
	}
	return *e.lastResult, true
}

func (e *Engine) TestID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.TestID
}

func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.UserID
}

// --- helpers ---

func (e *Engine) requireLiveLocked() error {
	if e.closed || !e.state.live() {
		return ErrNotActive
	}
	return nil
}

func (e *Engine) currentQuestionNumberLocked() int {
	return e.test.Questions[e.snap.CurrentQuestion-1].Number
}

// syncSelectedLocked mirrors the committed answer of the current question
// into the staged selection, discarding any unsaved choice.
func (e *Engine) syncSelectedLocked() {
	qn := e.currentQuestionNumberLocked()
	if ans, ok := e.snap.Answers[qn]; ok {
		e.selected = ans
	} else {
		e.selected = noSelection
	}
}

func questionNumbers(t catalog.Test) []int {
	out := make([]int, len(t.Questions))
	for i, q := range t.Questions {
		out[i] = q.Number
	}
	return out
}

// formatClock renders seconds as m:ss, or h:mm:ss past the hour.
func formatClock(secs int) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
