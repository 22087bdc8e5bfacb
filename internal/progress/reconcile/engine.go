package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/identity"
)

// Engine coordinates the local and remote tiers for the current identity.
type Engine struct {
	local  Local
	remote Remote // nil when no remote store is configured
	logger *zap.Logger

	mu   sync.Mutex
	sess *session

	subsMu sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// New creates an engine for an anonymous session with an empty cache. A nil
// remote makes every identity local-only.
func New(local Local, remote Remote, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		local:  local,
		remote: remote,
		logger: logger,
		sess:   newSession(identity.Anonymous(), 0),
		subs:   make(map[int]func(State)),
	}
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.state()
}

// Identity returns the identity the engine is working for.
func (e *Engine) Identity() identity.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.id
}

// Generation returns the current session generation. It advances on every
// identity change.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.gen
}

// HasRemote reports whether a remote store is configured.
func (e *Engine) HasRemote() bool {
	return e.remote != nil
}

// SetIdentity switches the session to id. On a change the cache is dropped,
// the degraded flag is cleared and the generation advances, so results of
// calls still in flight for the previous identity are discarded.
func (e *Engine) SetIdentity(id identity.Identity) {
	e.mu.Lock()
	if e.sess.id == id {
		e.mu.Unlock()
		return
	}
	prev := e.sess.id
	e.sess = newSession(id, e.sess.gen+1)
	st := e.sess.state()
	e.mu.Unlock()

	e.logger.Info("identity changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", id),
		zap.Uint64("generation", st.Generation))
	e.publish(st)
}

// Bind follows the provider's session. Sessions still loading are ignored.
// The returned function stops following.
func (e *Engine) Bind(p identity.Provider) func() {
	apply := func(s identity.Session) {
		if s.Loading {
			return
		}
		e.SetIdentity(s.Identity())
	}
	unsubscribe := p.Subscribe(apply)
	apply(p.Current())
	return unsubscribe
}

// Subscribe registers fn for every session state change (identity or
// degraded flag). The returned function removes it.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subsMu.Unlock()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

func (e *Engine) publish(st State) {
	e.subsMu.Lock()
	fns := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// begin captures the identity and generation a call works for.
func (e *Engine) begin() (identity.Identity, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.id, e.sess.gen
}

// usesRemote reports whether calls for id go to the remote tier.
func (e *Engine) usesRemote(id identity.Identity) bool {
	return e.remote != nil && !id.IsAnonymous()
}

// current reports whether gen is still the live generation. Caller holds
// e.mu.
func (e *Engine) current(gen uint64) bool {
	return e.sess.gen == gen
}

// setDegraded updates the flag for generation gen and publishes a change.
// Caller must not hold e.mu.
func (e *Engine) setDegraded(gen uint64, degraded bool) {
	e.mu.Lock()
	if !e.current(gen) || e.sess.degraded == degraded {
		e.mu.Unlock()
		return
	}
	e.sess.degraded = degraded
	st := e.sess.state()
	e.mu.Unlock()

	if degraded {
		e.logger.Warn("remote store unreachable, serving local progress", zap.Stringer("identity", st.Identity))
	} else {
		e.logger.Info("remote store reachable again", zap.Stringer("identity", st.Identity))
	}
	e.publish(st)
}

func (e *Engine) logStorage(what string, err error) {
	e.logger.Warn("local store write failed", zap.String("scope", what), zap.Error(err))
}

func (e *Engine) logRemote(what string, id identity.Identity, err error) {
	e.logger.Warn("remote store call failed",
		zap.String("op", what),
		zap.Stringer("identity", id),
		zap.Error(err))
}

// afterRead clears the degraded flag once a remote read succeeded and nothing
// is left in the journal.
func (e *Engine) afterRead(ctx context.Context, id identity.Identity, gen uint64) {
	e.mu.Lock()
	clean := e.loadJournal(ctx, id).empty()
	e.mu.Unlock()
	if clean {
		e.setDegraded(gen, false)
	}
}
