// Package debounce coalesces rapid edits into one persisted write per save
// channel.
//
// Each channel (for example "note:d1-1" or "onboarding:audience") has at most
// one outstanding timer. Schedule replaces the channel's write and restarts
// its timer, so only the write registered last runs, once the channel has
// been quiet for the configured delay. Writes on one channel run one at a
// time in fire order; channels are independent of each other.
//
// The coordinator also drives the save indicator:
//
//	idle -> saving -> saved -> idle (after SavedDisplay)
//	              \-> error (until the next successful write)
//
// Close stops pending timers without running them. Edits still waiting for
// their timer at that point are lost.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("save coordinator closed")

// WriteFunc persists the latest value of a channel.
type WriteFunc func(ctx context.Context) error

// Config holds the timing of the coordinator.
type Config struct {
	// Delay is the quiet period before a channel's write runs.
	Delay time.Duration

	// SavedDisplay is how long "saved" is shown before reverting to idle.
	SavedDisplay time.Duration

	// WriteTimeout bounds each write.
	WriteTimeout time.Duration

	// Clock drives the timers. Tests use clockwork.NewFakeClock().
	Clock clockwork.Clock

	Logger *zap.Logger
}

// DefaultConfig returns the reference timings: 1s debounce, 2s saved
// display.
func DefaultConfig() Config {
	return Config{
		Delay:        1000 * time.Millisecond,
		SavedDisplay: 2000 * time.Millisecond,
		WriteTimeout: 15 * time.Second,
	}
}

type channel struct {
	timer clockwork.Timer
	write WriteFunc
	// seq identifies the live timer; a fire with an older seq is stale.
	seq      uint64
	inFlight int
	// writeMu serializes writes of this channel.
	writeMu sync.Mutex
}

// Coordinator owns the per-channel timers.
type Coordinator struct {
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	mu       sync.Mutex
	channels map[string]*channel
	status   Status
	lastErr  error
	revert   clockwork.Timer
	closed   bool

	writes sync.WaitGroup

	subsMu sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// New creates a coordinator. Zero durations take their defaults.
func New(cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.SavedDisplay <= 0 {
		cfg.SavedDisplay = def.SavedDisplay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Coordinator{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		channels: make(map[string]*channel),
		status:   StatusIdle,
		subs:     make(map[int]func(Snapshot)),
	}
}

// Schedule registers write as the channel's pending write and (re)starts the
// channel's timer.
func (c *Coordinator) Schedule(name string, write WriteFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	ch, ok := c.channels[name]
	if !ok {
		ch = &channel{}
		c.channels[name] = ch
	}
	if ch.timer != nil {
		ch.timer.Stop()
	}
	ch.seq++
	seq := ch.seq
	ch.write = write
	ch.timer = c.clock.AfterFunc(c.cfg.Delay, func() { c.fire(name, seq) })

	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
	changed := c.setStatusLocked(StatusSaving, false)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.publish(snap)
	}
	return nil
}

// Cancel drops the channel's pending write, if any.
func (c *Coordinator) Cancel(name string) {
	c.mu.Lock()
	ch, ok := c.channels[name]
	if !ok || ch.timer == nil {
		c.mu.Unlock()
		return
	}
	ch.timer.Stop()
	ch.timer = nil
	ch.write = nil
	ch.seq++
	changed := false
	if c.pendingLocked() == 0 && c.status == StatusSaving {
		changed = c.setStatusLocked(StatusIdle, true)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.publish(snap)
	}
}

// fire runs when a channel's timer expires.
func (c *Coordinator) fire(name string, seq uint64) {
	c.mu.Lock()
	ch := c.channels[name]
	if c.closed || ch == nil || ch.seq != seq || ch.write == nil {
		c.mu.Unlock()
		return
	}
	write := ch.write
	ch.write = nil
	ch.timer = nil
	ch.inFlight++
	c.writes.Add(1)
	c.mu.Unlock()

	defer c.writes.Done()

	ch.writeMu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	err := write(ctx)
	cancel()
	ch.writeMu.Unlock()

	c.finish(name, ch, err)
}

// finish records the outcome of a write and moves the indicator.
func (c *Coordinator) finish(name string, ch *channel, err error) {
	c.mu.Lock()
	ch.inFlight--

	var changed bool
	switch {
	case err != nil:
		c.logger.Warn("save failed", zap.String("channel", name), zap.Error(err))
		c.lastErr = err
		changed = c.setStatusLocked(StatusError, true)
	case c.pendingLocked() > 0:
		// more saves queued; stay in saving but leave error behind
		c.lastErr = nil
		changed = c.setStatusLocked(StatusSaving, true)
	default:
		c.lastErr = nil
		changed = c.setStatusLocked(StatusSaved, true)
		if !c.closed {
			c.revert = c.clock.AfterFunc(c.cfg.SavedDisplay, c.revertSaved)
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.publish(snap)
	}
}

func (c *Coordinator) revertSaved() {
	c.mu.Lock()
	changed := false
	if c.status == StatusSaved {
		changed = c.setStatusLocked(StatusIdle, true)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.publish(snap)
	}
}

// setStatusLocked moves the indicator. Unless force is set an error status
// is kept until a write succeeds. Caller holds c.mu.
func (c *Coordinator) setStatusLocked(s Status, force bool) bool {
	if c.status == StatusError && !force {
		return false
	}
	if c.status == s {
		return false
	}
	c.status = s
	return true
}

func (c *Coordinator) pendingLocked() int {
	n := 0
	for _, ch := range c.channels {
		if ch.timer != nil || ch.inFlight > 0 {
			n++
		}
	}
	return n
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{Status: c.status, Pending: c.pendingLocked()}
	if c.status == StatusError && c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}

// Snapshot returns the current indicator.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Status returns the current indicator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe registers fn for every indicator change. The returned function
// removes it. fn must not call back into the coordinator's Schedule.
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Coordinator) publish(s Snapshot) {
	c.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Close stops every pending timer without running its write and waits for
// writes already in flight.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	dropped := 0
	for _, ch := range c.channels {
		if ch.timer != nil {
			ch.timer.Stop()
			ch.timer = nil
			ch.write = nil
			dropped++
		}
	}
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Info("dropped unsaved edits on close", zap.Int("channels", dropped))
	}
	c.writes.Wait()
}
