// Package bot implements the dialogue engine: a per-sender state machine that
// turns incoming WhatsApp messages into replies using the abuse guard, the
// session store, the static response table, the catalog, and the LLM fallback.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/pustakalab/pustakabot/internal/guard"
	"github.com/pustakalab/pustakabot/internal/models"
	"github.com/pustakalab/pustakabot/internal/responses"
	"github.com/pustakalab/pustakabot/internal/session"
)

// Catalog is the book and member lookup surface the engine needs.
type Catalog interface {
	SearchByTitle(ctx context.Context, keyword string) ([]models.Book, error)
	SearchByAuthor(ctx context.Context, keyword string) ([]models.Book, error)
	SearchUniversal(ctx context.Context, keyword string) ([]models.Book, error)
	GetDetail(ctx context.Context, bookID string) (*models.BookDetail, error)
	GetMemberStatus(ctx context.Context, memberID string) (*models.Member, error)
}

// Completer generates a free-text answer for questions no menu covers.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Recorder logs interactions for the usage dashboard.
type Recorder interface {
	LogInteraction(ctx context.Context, userID string) error
}

// SearchMenuMode selects what menu option 1 does.
type SearchMenuMode string

const (
	// SearchMenuBookID sends the user straight to the hybrid ID-or-keyword state.
	SearchMenuBookID SearchMenuMode = "book_id"
	// SearchMenuUniversal sends the user to the combined keyword search state.
	SearchMenuUniversal SearchMenuMode = "universal"
	// SearchMenuCriteria asks the user to pick title or author search first.
	SearchMenuCriteria SearchMenuMode = "criteria"
)

// ParseSearchMenuMode validates a configured search menu mode.
func ParseSearchMenuMode(s string) (SearchMenuMode, error) {
	switch SearchMenuMode(s) {
	case SearchMenuBookID, SearchMenuUniversal, SearchMenuCriteria:
		return SearchMenuMode(s), nil
	case "":
		return SearchMenuBookID, nil
	}
	return "", fmt.Errorf("unknown search menu mode %q", s)
}

// Keyword length floors for the search states.
const (
	minTitleKeywordLen  = 3
	minAuthorKeywordLen = 2
)

const searchErrorMessage = "Terjadi kesalahan pada sistem pencarian."

var singleAlnum = regexp.MustCompile(`^[a-zA-Z0-9]$`)
var digitsOnly = regexp.MustCompile(`^\d+$`)

// stateHandler processes one message for a sender parked in a non-menu state.
type stateHandler func(ctx context.Context, from, input, normalized string) (models.Reply, error)

// Opts holds configuration options for the engine.
type Opts struct {
	Completer      Completer
	Recorder       Recorder
	SearchMenuMode SearchMenuMode
	Clock          func() time.Time
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithCompleter wires the LLM fallback. Without it, off-menu questions get
// the busy message.
func WithCompleter(c Completer) Option {
	return func(o *Opts) { o.Completer = c }
}

// WithRecorder wires the analytics log.
func WithRecorder(r Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithSearchMenuMode overrides what menu option 1 does.
func WithSearchMenuMode(m SearchMenuMode) Option {
	return func(o *Opts) { o.SearchMenuMode = m }
}

// WithClock overrides the time source (used by tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Engine is the dialogue engine.
type Engine struct {
	guard     *guard.Guard
	sessions  *session.Store
	responses *responses.Store
	catalog   Catalog
	completer Completer
	recorder  Recorder
	menuMode  SearchMenuMode
	now       func() time.Time
	handlers  map[models.SessionState]stateHandler
}

// NewEngine builds the dialogue engine around its dependencies.
func NewEngine(g *guard.Guard, sessions *session.Store, resp *responses.Store, catalog Catalog, opts ...Option) *Engine {
	cfg := Opts{
		SearchMenuMode: SearchMenuBookID,
		Clock:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		guard:     g,
		sessions:  sessions,
		responses: resp,
		catalog:   catalog,
		completer: cfg.Completer,
		recorder:  cfg.Recorder,
		menuMode:  cfg.SearchMenuMode,
		now:       cfg.Clock,
	}
	e.handlers = map[models.SessionState]stateHandler{
		models.StateWaitingForCriteria:  e.handleCriteriaInput,
		models.StateWaitingForTitle:     e.handleTitleInput,
		models.StateWaitingForAuthor:    e.handleAuthorInput,
		models.StateWaitingForBookInput: e.handleBookInput,
		models.StateWaitingForBookID:    e.handleBookIDInput,
		models.StateWaitingForMemberID:  e.handleMemberIDInput,
	}
	slog.Debug("Engine initialized", "search_menu_mode", e.menuMode)
	return e
}

// ProcessMessage runs one inbound message through the guard, the session
// machine, and the resolvers, and returns the reply to send. A silent reply
// means the sender gets nothing back.
func (e *Engine) ProcessMessage(ctx context.Context, from, text, userName string) (models.Reply, error) {
	now := e.now()

	if e.recorder != nil {
		if err := e.recorder.LogInteraction(ctx, from); err != nil {
			slog.Warn("Engine interaction log failed", "error", err, "from", from)
		}
	}

	verdict := e.guard.CheckAndRecord(from, text, now)
	if !verdict.Allow {
		if verdict.Reply == "" {
			return models.NoReply(), nil
		}
		return models.Single(verdict.Reply), nil
	}

	normalized := normalize(text)
	sess, isNew := e.sessions.GetOrCreate(from, now)

	if isNew {
		return e.greet(userName), nil
	}

	if normalized == "menu" {
		e.sessions.Reset(from)
		return models.Single(e.responses.MenuText()), nil
	}

	if normalized == "end" {
		e.sessions.End(from)
		return models.Single(e.responses.Template(responses.TemplateSessionEnd)), nil
	}

	if sess.State != models.StateMainMenu {
		handler, ok := e.handlers[sess.State]
		if !ok {
			slog.Warn("Engine unknown session state, resetting", "from", from, "state", sess.State)
			e.sessions.Reset(from)
			return models.Single(e.responses.Template(responses.TemplateInvalidSelection)), nil
		}
		return handler(ctx, from, strings.TrimSpace(text), normalized)
	}

	return e.handleMainMenu(ctx, from, text, normalized)
}

// greet sends the two-bubble welcome: a personalized hello and the menu.
func (e *Engine) greet(userName string) models.Reply {
	displayName := sanitizeName(userName)
	welcome := fmt.Sprintf("Halo *%s*! %s", displayName, e.responses.Template(responses.TemplateWelcome))
	return models.Multi(welcome, e.responses.MenuText())
}

// handleMainMenu resolves a message sent from the root state: numbered menu
// transitions first, then the static table, then the LLM fallback.
func (e *Engine) handleMainMenu(ctx context.Context, from, text, normalized string) (models.Reply, error) {
	if normalized == "1" {
		return e.enterSearch(from), nil
	}

	if normalized == "2" || strings.Contains(normalized, "pinjaman") {
		e.sessions.SetState(from, models.StateWaitingForMemberID)
		if reply, ok := e.responses.ServiceText("2"); ok {
			return models.Single(reply), nil
		}
		return models.Single("Silakan ketik *NIM* Anda untuk cek status keanggotaan."), nil
	}

	if reply, ok := e.responses.Resolve(normalized); ok {
		return models.Single(reply), nil
	}

	if singleAlnum.MatchString(normalized) {
		return models.Single(e.responses.Template(responses.TemplateInvalidSelection) + e.responses.MenuText()), nil
	}

	if e.tooSimilarToStatic(normalized) {
		return models.Single(e.responses.Template(responses.TemplateAISafetyWarning)), nil
	}

	return e.completeWithAI(ctx, from, text)
}

// enterSearch moves the sender into the configured search entry state.
func (e *Engine) enterSearch(from string) models.Reply {
	switch e.menuMode {
	case SearchMenuUniversal:
		e.sessions.SetState(from, models.StateWaitingForBookInput)
		return models.Single(e.responses.Template(responses.TemplatePromptUniversal))
	case SearchMenuCriteria:
		e.sessions.SetState(from, models.StateWaitingForCriteria)
		return models.Single(e.responses.Template(responses.TemplatePromptCriteria))
	default:
		e.sessions.SetState(from, models.StateWaitingForBookID)
		return models.Single(e.responses.Template(responses.TemplatePromptUniversal))
	}
}

// tooSimilarToStatic blocks LLM calls for inputs that are close to a static
// keyword; the static table already covers those.
func (e *Engine) tooSimilarToStatic(normalized string) bool {
	for _, kw := range e.responses.Keywords() {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if strings.Contains(normalized, kw) && len(normalized) < len(kw)+10 {
			return true
		}
	}
	return false
}

// completeWithAI runs the LLM fallback for questions nothing else matched.
func (e *Engine) completeWithAI(ctx context.Context, from, text string) (models.Reply, error) {
	if e.completer == nil {
		slog.Debug("Engine LLM fallback not configured", "from", from)
		return models.Single(aiBusyMessage), nil
	}

	slog.Info("Engine forwarding message to LLM fallback", "from", from)
	answer, err := e.completer.Complete(ctx, systemPrompt, text)
	if err != nil {
		slog.Error("Engine LLM fallback failed", "error", err, "from", from)
		return models.Single(aiBusyMessage), nil
	}
	return models.Single(answer), nil
}
