package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pustakalab/pustakabot/internal/guard"
	"github.com/pustakalab/pustakabot/internal/models"
	"github.com/pustakalab/pustakabot/internal/responses"
	"github.com/pustakalab/pustakabot/internal/session"
)

// mockCatalog implements Catalog with overridable behavior per method.
type mockCatalog struct {
	searchByTitleFn   func(ctx context.Context, keyword string) ([]models.Book, error)
	searchByAuthorFn  func(ctx context.Context, keyword string) ([]models.Book, error)
	searchUniversalFn func(ctx context.Context, keyword string) ([]models.Book, error)
	getDetailFn       func(ctx context.Context, bookID string) (*models.BookDetail, error)
	getMemberFn       func(ctx context.Context, memberID string) (*models.Member, error)
}

func (m *mockCatalog) SearchByTitle(ctx context.Context, keyword string) ([]models.Book, error) {
	if m.searchByTitleFn != nil {
		return m.searchByTitleFn(ctx, keyword)
	}
	return nil, nil
}

func (m *mockCatalog) SearchByAuthor(ctx context.Context, keyword string) ([]models.Book, error) {
	if m.searchByAuthorFn != nil {
		return m.searchByAuthorFn(ctx, keyword)
	}
	return nil, nil
}

func (m *mockCatalog) SearchUniversal(ctx context.Context, keyword string) ([]models.Book, error) {
	if m.searchUniversalFn != nil {
		return m.searchUniversalFn(ctx, keyword)
	}
	return nil, nil
}

func (m *mockCatalog) GetDetail(ctx context.Context, bookID string) (*models.BookDetail, error) {
	if m.getDetailFn != nil {
		return m.getDetailFn(ctx, bookID)
	}
	return nil, nil
}

func (m *mockCatalog) GetMemberStatus(ctx context.Context, memberID string) (*models.Member, error) {
	if m.getMemberFn != nil {
		return m.getMemberFn(ctx, memberID)
	}
	return nil, nil
}

// mockCompleter implements Completer for the LLM fallback path.
type mockCompleter struct {
	completeFn func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	calls      int
}

func (m *mockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	if m.completeFn != nil {
		return m.completeFn(ctx, systemPrompt, userPrompt)
	}
	return "jawaban ai", nil
}

// mockRecorder implements Recorder.
type mockRecorder struct {
	users []string
	err   error
}

func (m *mockRecorder) LogInteraction(_ context.Context, userID string) error {
	m.users = append(m.users, userID)
	return m.err
}

// fakeClock advances by step on every read so the one-second cooldown never
// drops test messages unless a test shrinks the step on purpose.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), step: step}
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

type testEnv struct {
	engine   *Engine
	sessions *session.Store
	clock    *fakeClock
}

func newTestEngine(t *testing.T, catalog Catalog, opts ...Option) *testEnv {
	t.Helper()
	resp, err := responses.NewStore(responses.WithPath(filepath.Join(t.TempDir(), "responses.json")))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	sessions := session.NewStore()
	clock := newFakeClock(2 * time.Second)
	if catalog == nil {
		catalog = &mockCatalog{}
	}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &testEnv{
		engine:   NewEngine(guard.New(), sessions, resp, catalog, opts...),
		sessions: sessions,
		clock:    clock,
	}
}

func (env *testEnv) say(t *testing.T, from, text string) models.Reply {
	t.Helper()
	reply, err := env.engine.ProcessMessage(context.Background(), from, text, "Budi")
	if err != nil {
		t.Fatalf("ProcessMessage(%q) error = %v", text, err)
	}
	return reply
}

// start establishes a session so the next message skips the greeting.
func (env *testEnv) start(t *testing.T, from string) {
	t.Helper()
	reply := env.say(t, from, "halo")
	if reply.Kind != models.ReplyMulti {
		t.Fatalf("first message reply kind = %v, want greeting", reply.Kind)
	}
}

func (env *testEnv) mustState(t *testing.T, from string, want models.SessionState) {
	t.Helper()
	got, ok := env.sessions.State(from)
	if !ok {
		t.Fatalf("no session for %s", from)
	}
	if got != want {
		t.Fatalf("session state = %v, want %v", got, want)
	}
}

func TestFirstMessageGreetsWithTwoBubbles(t *testing.T) {
	env := newTestEngine(t, nil)

	reply := env.say(t, "+628111", "apa kabar")
	bubbles := reply.Bubbles()
	if reply.Kind != models.ReplyMulti || len(bubbles) != 2 {
		t.Fatalf("greeting = %+v, want two bubbles", reply)
	}
	if !strings.Contains(bubbles[0], "Halo *Budi*!") {
		t.Errorf("greeting bubble = %q, want personalized hello", bubbles[0])
	}
	if !strings.Contains(bubbles[1], "MENU LAYANAN PERPUSTAKAAN") {
		t.Errorf("second bubble = %q, want main menu", bubbles[1])
	}
	env.mustState(t, "+628111", models.StateMainMenu)
}

func TestGreetingFallsBackOnUnsafeName(t *testing.T) {
	env := newTestEngine(t, nil)

	reply, err := env.engine.ProcessMessage(context.Background(), "+628112", "hai", "+628112")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if !strings.Contains(reply.Bubbles()[0], "Halo *Pemustaka*!") {
		t.Errorf("greeting = %q, want fallback display name", reply.Bubbles()[0])
	}
}

func TestMenuCommandResetsToMainMenu(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628113")

	env.say(t, "+628113", "1")
	env.mustState(t, "+628113", models.StateWaitingForBookID)

	reply := env.say(t, "+628113", "MENU")
	if !strings.Contains(reply.Bubbles()[0], "MENU LAYANAN PERPUSTAKAAN") {
		t.Errorf("menu reply = %q", reply.Bubbles()[0])
	}
	env.mustState(t, "+628113", models.StateMainMenu)
}

func TestEndCommandDeletesSession(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628114")

	reply := env.say(t, "+628114", "END")
	if !strings.Contains(reply.Bubbles()[0], "Sesi percakapan dihentikan") {
		t.Errorf("end reply = %q", reply.Bubbles()[0])
	}
	if _, ok := env.sessions.State("+628114"); ok {
		t.Fatal("session still exists after END")
	}

	// The next message starts a fresh session with the greeting.
	next := env.say(t, "+628114", "halo lagi")
	if next.Kind != models.ReplyMulti {
		t.Errorf("post-END reply kind = %v, want greeting", next.Kind)
	}
}

func TestMenuOptionOneEntersBookIDStateByDefault(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628115")

	reply := env.say(t, "+628115", "1")
	if !strings.Contains(reply.Bubbles()[0], "ID Buku") {
		t.Errorf("search prompt = %q", reply.Bubbles()[0])
	}
	env.mustState(t, "+628115", models.StateWaitingForBookID)
}

func TestMenuOptionOneRespectsConfiguredMode(t *testing.T) {
	tests := []struct {
		mode      SearchMenuMode
		wantState models.SessionState
		wantText  string
	}{
		{SearchMenuUniversal, models.StateWaitingForBookInput, "ID Buku"},
		{SearchMenuCriteria, models.StateWaitingForCriteria, "Ingin mencari berdasarkan apa"},
	}
	for _, tc := range tests {
		env := newTestEngine(t, nil, WithSearchMenuMode(tc.mode))
		env.start(t, "+628116")

		reply := env.say(t, "+628116", "1")
		if !strings.Contains(reply.Bubbles()[0], tc.wantText) {
			t.Errorf("mode %s prompt = %q, want %q", tc.mode, reply.Bubbles()[0], tc.wantText)
		}
		env.mustState(t, "+628116", tc.wantState)
	}
}

func TestMenuOptionTwoAsksForMemberID(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628117")

	reply := env.say(t, "+628117", "2")
	if !strings.Contains(reply.Bubbles()[0], "NIM") {
		t.Errorf("member prompt = %q", reply.Bubbles()[0])
	}
	env.mustState(t, "+628117", models.StateWaitingForMemberID)
}

func TestLoanPhraseRoutesToMemberCheck(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628118")

	env.say(t, "+628118", "cek status pinjaman saya dong")
	env.mustState(t, "+628118", models.StateWaitingForMemberID)
}

func TestStaticKeywordResolved(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628119")

	reply := env.say(t, "+628119", "jam buka")
	if !strings.Contains(reply.Bubbles()[0], "Jam layanan perpustakaan") {
		t.Errorf("static reply = %q", reply.Bubbles()[0])
	}
	env.mustState(t, "+628119", models.StateMainMenu)
}

func TestSingleCharacterSelectionRejected(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628120")

	reply := env.say(t, "+628120", "9")
	body := reply.Bubbles()[0]
	if !strings.Contains(body, "Pilihan tidak tersedia") || !strings.Contains(body, "MENU LAYANAN PERPUSTAKAAN") {
		t.Errorf("invalid selection reply = %q", body)
	}
}

func TestNearKeywordQuestionBlocksLLM(t *testing.T) {
	completer := &mockCompleter{}
	env := newTestEngine(t, nil, WithCompleter(completer))
	env.start(t, "+628121")

	// Contains the keyword "jam buka" and is barely longer than it.
	reply := env.say(t, "+628121", "info jam buka")
	if !strings.Contains(reply.Bubbles()[0], "tersedia di menu layanan") {
		t.Errorf("safety reply = %q", reply.Bubbles()[0])
	}
	if completer.calls != 0 {
		t.Errorf("completer called %d times, want 0", completer.calls)
	}
}

func TestLLMFallbackAnswersOffMenuQuestion(t *testing.T) {
	var gotSystem, gotUser string
	completer := &mockCompleter{completeFn: func(_ context.Context, sys, user string) (string, error) {
		gotSystem, gotUser = sys, user
		return "Silakan hubungi pustakawan referensi.", nil
	}}
	env := newTestEngine(t, nil, WithCompleter(completer))
	env.start(t, "+628122")

	question := "bagaimana prosedur sumbangan buku ke perpustakaan"
	reply := env.say(t, "+628122", question)
	if reply.Bubbles()[0] != "Silakan hubungi pustakawan referensi." {
		t.Errorf("LLM reply = %q", reply.Bubbles()[0])
	}
	if gotUser != question {
		t.Errorf("user prompt = %q, want original text", gotUser)
	}
	if !strings.Contains(gotSystem, "PustakaBot") {
		t.Errorf("system prompt = %q, want assistant persona", gotSystem)
	}
}

func TestLLMFailureYieldsBusyMessage(t *testing.T) {
	completer := &mockCompleter{completeFn: func(context.Context, string, string) (string, error) {
		return "", errors.New("rate limited")
	}}
	env := newTestEngine(t, nil, WithCompleter(completer))
	env.start(t, "+628123")

	reply := env.say(t, "+628123", "bagaimana prosedur sumbangan buku")
	if !strings.Contains(reply.Bubbles()[0], "sistem AI sedang sibuk") {
		t.Errorf("busy reply = %q", reply.Bubbles()[0])
	}
}

func TestMissingCompleterYieldsBusyMessage(t *testing.T) {
	env := newTestEngine(t, nil)
	env.start(t, "+628124")

	reply := env.say(t, "+628124", "bagaimana prosedur sumbangan buku")
	if !strings.Contains(reply.Bubbles()[0], "sistem AI sedang sibuk") {
		t.Errorf("reply without completer = %q", reply.Bubbles()[0])
	}
}

func TestRapidMessagesDroppedSilently(t *testing.T) {
	env := newTestEngine(t, nil)
	env.clock.step = 100 * time.Millisecond

	env.say(t, "+628125", "halo")
	reply := env.say(t, "+628125", "menu")
	if !reply.IsSilent() {
		t.Fatalf("reply inside cooldown = %+v, want silent", reply)
	}
}

func TestRecorderSeesEveryMessage(t *testing.T) {
	rec := &mockRecorder{}
	env := newTestEngine(t, nil, WithRecorder(rec))
	env.start(t, "+628126")
	env.say(t, "+628126", "menu")

	if len(rec.users) != 2 {
		t.Fatalf("recorded %d interactions, want 2", len(rec.users))
	}
	for _, u := range rec.users {
		if u != "+628126" {
			t.Errorf("recorded user = %q", u)
		}
	}
}

func TestRecorderFailureDoesNotBlockReply(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	env := newTestEngine(t, nil, WithRecorder(rec))

	reply := env.say(t, "+628127", "halo")
	if reply.IsSilent() {
		t.Fatal("reply dropped because of recorder failure")
	}
}

func TestParseSearchMenuMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchMenuMode
		wantErr bool
	}{
		{"", SearchMenuBookID, false},
		{"book_id", SearchMenuBookID, false},
		{"universal", SearchMenuUniversal, false},
		{"criteria", SearchMenuCriteria, false},
		{"fuzzy", "", true},
	}
	for _, tc := range tests {
		got, err := ParseSearchMenuMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseSearchMenuMode(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSearchMenuMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
