// Package ratelimit guards interactive actions with a per-key click counter.
//
// A key accumulates clicks while they arrive less than Window apart. The
// Threshold-th click inside a window blocks the key for Cooldown; the block
// is lifted only by a one-shot timer scheduled when it starts. A pause longer
// than Window restarts the count.
package ratelimit

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// Action keys used by the session.
const (
	KeyIPv4 = "ipv4"
	KeyIPv6 = "ipv6"
	KeyCopy = "copy"
)

const (
	DefaultWindow    = 3 * time.Second
	DefaultThreshold = 5
	DefaultCooldown  = 10 * time.Second
)

// Config holds the limiter thresholds. Zero fields take the defaults.
type Config struct {
	Window    time.Duration `yaml:"window" json:"window"`
	Threshold int           `yaml:"threshold" json:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown" json:"cooldown"`
}

// DefaultConfig returns the 3s/5 clicks/10s configuration.
func DefaultConfig() Config {
	return Config{
		Window:    DefaultWindow,
		Threshold: DefaultThreshold,
		Cooldown:  DefaultCooldown,
	}
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// EventKind tells whether a key entered or left the blocked state.
type EventKind int

const (
	Blocked EventKind = iota
	Cleared
)

func (k EventKind) String() string {
	if k == Cleared {
		return "cleared"
	}
	return "blocked"
}

// Event is delivered to the Notifier on every block and unblock.
type Event struct {
	Key  string
	Kind EventKind
	At   time.Time
	// RetryAfter is the cooldown length for Blocked events and zero for
	// Cleared ones.
	RetryAfter time.Duration
}

// Notifier receives limiter events. It is called without the limiter lock
// held, from the caller's goroutine for Blocked and from the timer goroutine
// for Cleared.
type Notifier func(Event)

// State is a snapshot of one key.
type State struct {
	Count     int
	LastClick time.Time
	Blocked   bool
}

// Limiter tracks click state per action key.
type Limiter struct {
	mu sync.Mutex

	cfg    Config
	clock  clock.Clock
	notify Notifier

	keys map[string]*State

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option is a functional option for configuring a Limiter.
type Option func(*Limiter)

// WithConfig overrides the thresholds.
func WithConfig(cfg Config) Option {
	return func(l *Limiter) { l.cfg = cfg }
}

// WithClock sets the time source. Tests pass a clock.TestClock.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithNotifier sets the receiver of Blocked and Cleared events.
func WithNotifier(n Notifier) Option {
	return func(l *Limiter) { l.notify = n }
}

// New returns a Limiter with zero state for the ipv4, ipv6 and copy keys.
// Other keys are created on first use.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		cfg:   DefaultConfig(),
		clock: clock.NewDefaultClock(),
		keys:  make(map[string]*State),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cfg = l.cfg.withDefaults()
	for _, k := range []string{KeyIPv4, KeyIPv6, KeyCopy} {
		l.keys[k] = &State{}
	}
	return l
}

// Config returns the effective thresholds.
func (l *Limiter) Config() Config { return l.cfg }

// CheckAndRecord registers a click on key and reports whether it must be
// denied. The click that reaches the threshold is itself denied, as is every
// click until the cooldown timer fires.
func (l *Limiter) CheckAndRecord(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	st, ok := l.keys[key]
	if !ok {
		st = &State{}
		l.keys[key] = st
	}

	if st.Blocked {
		l.mu.Unlock()
		rateLimitDenied.WithLabelValues(key).Inc()
		return true
	}

	if now.Sub(st.LastClick) > l.cfg.Window {
		st.Count = 1
		st.LastClick = now
		l.mu.Unlock()
		rateLimitAllowed.WithLabelValues(key).Inc()
		return false
	}

	st.Count++
	st.LastClick = now
	if st.Count < l.cfg.Threshold {
		l.mu.Unlock()
		rateLimitAllowed.WithLabelValues(key).Inc()
		return false
	}

	st.Blocked = true
	l.scheduleUnblock(key, l.clock.TickAfter(l.cfg.Cooldown))
	l.mu.Unlock()

	rateLimitDenied.WithLabelValues(key).Inc()
	rateLimitBlocks.WithLabelValues(key).Inc()
	l.emit(Event{Key: key, Kind: Blocked, At: now, RetryAfter: l.cfg.Cooldown})
	return true
}

// scheduleUnblock starts the one-shot cooldown task. Must be called with mu
// held.
func (l *Limiter) scheduleUnblock(key string, tick <-chan time.Time) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case t := <-tick:
			l.unblock(key, t)
		case <-l.quit:
		}
	}()
}

// unblock resets the key. Running it on a key that is already reset only
// rewrites the same zero values.
func (l *Limiter) unblock(key string, at time.Time) {
	l.mu.Lock()
	st, ok := l.keys[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	wasBlocked := st.Blocked
	st.Blocked = false
	st.Count = 0
	l.mu.Unlock()

	if wasBlocked {
		l.emit(Event{Key: key, Kind: Cleared, At: at})
	}
}

func (l *Limiter) emit(ev Event) {
	if l.notify != nil {
		l.notify(ev)
	}
}

// State returns a snapshot of key. Unknown keys report the zero state.
func (l *Limiter) State(key string) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.keys[key]; ok {
		return *st
	}
	return State{}
}

// Stop abandons pending cooldown timers and waits for their goroutines.
// Keys blocked at that point stay blocked.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	l.wg.Wait()
}
