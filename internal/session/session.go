// Package session provides the in-memory per-sender conversational state
// store with idle-timeout eviction.
//
// State is ephemeral: a process restart silently resets every session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pustakalab/pustakabot/internal/models"
)

// Timing defaults, overridable through options for tests.
const (
	// DefaultIdleTimeout is how long a session may sit untouched before the
	// sweep evicts it.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is the tick granularity of the eviction sweep.
	DefaultSweepInterval = 1 * time.Second
)

// Notifier delivers the session-expiry notice through the transport boundary.
// Failures are logged and never block eviction.
type Notifier interface {
	SendDirect(ctx context.Context, to, message string) error
}

// Opts holds configuration options for the session store.
type Opts struct {
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	TimeoutMessage string
}

// Option defines a configuration option for the session store.
type Option func(*Opts)

// WithIdleTimeout overrides the idle eviction threshold.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.IdleTimeout = d }
}

// WithSweepInterval overrides the sweep tick interval.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) { o.SweepInterval = d }
}

// WithTimeoutMessage sets the notice sent to a sender on idle eviction.
func WithTimeoutMessage(msg string) Option {
	return func(o *Opts) { o.TimeoutMessage = msg }
}

// Store is the process-scoped session map. The only mutators are the inbound
// message path and the sweep.
type Store struct {
	idleTimeout    time.Duration
	sweepInterval  time.Duration
	timeoutMessage string

	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	cfg := Opts{
		IdleTimeout:    DefaultIdleTimeout,
		SweepInterval:  DefaultSweepInterval,
		TimeoutMessage: "⏳ Sesi percakapan Anda telah berakhir. Ketik *MENU* untuk memulai kembali.",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{
		idleTimeout:    cfg.IdleTimeout,
		sweepInterval:  cfg.SweepInterval,
		timeoutMessage: cfg.TimeoutMessage,
		sessions:       make(map[string]*models.Session),
	}
}

// GetOrCreate returns the sender's session, creating one in the main-menu
// state when none exists. isNew is true exactly when no session previously
// existed; the dialogue engine uses it to emit the greeting instead of a
// plain state-machine reply. The session's LastActivityAt is always advanced
// to now.
func (s *Store) GetOrCreate(sender string, now time.Time) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sender]
	if !ok {
		sess = &models.Session{Sender: sender, State: models.StateMainMenu, LastActivityAt: now}
		s.sessions[sender] = sess
		slog.Debug("SessionStore created session", "sender", sender)
		return sess, true
	}
	sess.LastActivityAt = now
	return sess, false
}

// SetState records a state transition for the sender. It is a no-op when the
// session no longer exists (e.g. evicted between load and commit).
func (s *Store) SetState(sender string, state models.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sender]; ok {
		sess.State = state
		slog.Debug("SessionStore state transition", "sender", sender, "state", state)
	}
}

// Reset returns the sender's session to the main menu without destroying it.
func (s *Store) Reset(sender string) {
	s.SetState(sender, models.StateMainMenu)
}

// End deletes the sender's session entirely.
func (s *Store) End(sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sender]; ok {
		delete(s.sessions, sender)
		slog.Info("SessionStore session ended", "sender", sender)
	}
}

// State returns the sender's current state, or false when no session exists.
func (s *Store) State(sender string) (models.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sender]
	if !ok {
		return "", false
	}
	return sess.State, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartSweep runs the idle eviction loop until the context is cancelled.
// Expired senders are collected and deleted under the lock, then notified
// outside it so a slow transport never stalls message handling.
func (s *Store) StartSweep(ctx context.Context, notifier Notifier) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		slog.Info("SessionStore sweep started", "interval", s.sweepInterval, "idle_timeout", s.idleTimeout)
		for {
			select {
			case now := <-ticker.C:
				s.sweepOnce(ctx, now, notifier)
			case <-ctx.Done():
				slog.Debug("SessionStore sweep stopping")
				return
			}
		}
	}()
}

// sweepOnce evicts every session idle past the threshold and attempts one
// expiry notification per evicted sender.
func (s *Store) sweepOnce(ctx context.Context, now time.Time, notifier Notifier) {
	var expired []string
	s.mu.Lock()
	for sender, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) > s.idleTimeout {
			expired = append(expired, sender)
			delete(s.sessions, sender)
		}
	}
	s.mu.Unlock()

	for _, sender := range expired {
		slog.Info("SessionStore evicted idle session", "sender", sender)
		if notifier == nil {
			continue
		}
		if err := notifier.SendDirect(ctx, sender, s.timeoutMessage); err != nil {
			slog.Error("SessionStore expiry notification failed", "error", err, "sender", sender)
		}
	}
}
