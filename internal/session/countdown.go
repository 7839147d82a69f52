package session

import (
	"context"
	"sync"
	"time"
)

// CountdownState is the lifecycle state of a Countdown.
type CountdownState int

const (
	CountdownIdle CountdownState = iota
	CountdownRunning
	CountdownExpired
	CountdownCancelled
)

func (s CountdownState) String() string {
	switch s {
	case CountdownIdle:
		return "IDLE"
	case CountdownRunning:
		return "RUNNING"
	case CountdownExpired:
		return "EXPIRED"
	case CountdownCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// NoticeKind classifies countdown announcements.
type NoticeKind string

const (
	NoticeTimeRemaining NoticeKind = "TIME_REMAINING"
	NoticeTenMinutes    NoticeKind = "WARNING_10_MIN"
	NoticeFiveMinutes   NoticeKind = "WARNING_5_MIN"
	NoticeOneMinute     NoticeKind = "CRITICAL_1_MIN"
	NoticeExpired       NoticeKind = "EXPIRED"
)

// Notice is emitted when the remaining time crosses an announcement threshold.
type Notice struct {
	Kind      NoticeKind
	Remaining int
	Text      string
}

const (
	halfHourSeconds   = 1800
	tenMinuteSeconds  = 600
	fiveMinuteSeconds = 300
	oneMinuteSeconds  = 60
)

// Countdown is the single ticking clock of a session. It is the only writer of the
// remaining seconds and calls onExpire exactly once when they reach zero.
type Countdown struct {
	mu             sync.Mutex
	state          CountdownState
	remaining      int
	warningVisible bool
	cancel         context.CancelFunc
	done           chan struct{}

	// emitMu serializes a tick's evaluation with its callbacks.
	emitMu sync.Mutex

	interval time.Duration
	onNotice func(Notice)
	onExpire func()
}

// NewCountdown creates an idle Countdown of the given length in seconds.
// interval is the tick period; zero means one second.
func NewCountdown(seconds int, interval time.Duration, onNotice func(Notice), onExpire func()) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	if interval <= 0 {
		interval = time.Second
	}
	if onNotice == nil {
		onNotice = func(Notice) {}
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Countdown{
		state:     CountdownIdle,
		remaining: seconds,
		interval:  interval,
		onNotice:  onNotice,
		onExpire:  onExpire,
		done:      make(chan struct{}),
	}
}

// Start moves the countdown to Running, announces the starting value if it sits on
// a warning threshold, and begins ticking in its own goroutine. The half-hour
// notice is left to the start announcement. Starting twice is a no-op.
func (c *Countdown) Start(ctx context.Context) {
	c.emitMu.Lock()
	c.mu.Lock()
	if c.state != CountdownIdle {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return
	}
	c.state = CountdownRunning
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	notices, expired := c.evaluateLocked(true)
	c.mu.Unlock()

	c.emit(notices, expired)
	c.emitMu.Unlock()

	if expired {
		cancel()
		close(c.done)
		return
	}
	go c.run(runCtx)
}

func (c *Countdown) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick() {
				return
			}
		}
	}
}

// tick advances the clock by one second. It returns false once the countdown
// has left the Running state.
func (c *Countdown) tick() bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.state != CountdownRunning {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	notices, expired := c.evaluateLocked(false)
	c.mu.Unlock()

	c.emit(notices, expired)
	return !expired
}

// evaluateLocked checks the current value against the thresholds. It moves the
// countdown to Expired when the value is zero. c.mu must be held.
func (c *Countdown) evaluateLocked(starting bool) ([]Notice, bool) {
	var notices []Notice
	v := c.remaining

	if !starting && v > 0 && v%halfHourSeconds == 0 {
		notices = append(notices, Notice{Kind: NoticeTimeRemaining, Remaining: v, Text: minutesRemainingAnnouncement(v / 60)})
	}
	switch v {
	case tenMinuteSeconds:
		c.warningVisible = true
		notices = append(notices, Notice{Kind: NoticeTenMinutes, Remaining: v, Text: msgTenMinutes})
	case fiveMinuteSeconds:
		c.warningVisible = true
		notices = append(notices, Notice{Kind: NoticeFiveMinutes, Remaining: v, Text: msgFiveMinutes})
	case oneMinuteSeconds:
		c.warningVisible = true
		notices = append(notices, Notice{Kind: NoticeOneMinute, Remaining: v, Text: msgOneMinute})
	}

	if v == 0 {
		c.state = CountdownExpired
		notices = append(notices, Notice{Kind: NoticeExpired, Text: msgTimeUp})
		return notices, true
	}
	return notices, false
}

func (c *Countdown) emit(notices []Notice, expired bool) {
	for _, n := range notices {
		c.onNotice(n)
	}
	if expired {
		c.onExpire()
	}
}

// Cancel stops the countdown. No tick is evaluated after Cancel returns.
// Cancelling an expired or cancelled countdown is a no-op.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CountdownIdle:
		c.state = CountdownCancelled
		close(c.done)
	case CountdownRunning:
		c.state = CountdownCancelled
		c.cancel()
	}
}

// DismissWarning hides the timer warning until the next threshold.
func (c *Countdown) DismissWarning() {
	c.mu.Lock()
	c.warningVisible = false
	c.mu.Unlock()
}

// Remaining returns the remaining seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// State returns the lifecycle state.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WarningVisible reports whether a timer warning is showing.
func (c *Countdown) WarningVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warningVisible
}

// Done is closed once the countdown stops ticking.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
