package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pustakalab/pustakabot/internal/models"
)

// mockService implements Service backed by an in-memory channel.
type mockService struct {
	responses chan models.Response

	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
}

type sentMessage struct {
	To   string
	Body string
}

func newMockService() *mockService {
	return &mockService{responses: make(chan models.Response, DefaultChannelBufferSize)}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (m *mockService) SendMessage(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return nil
}

func (m *mockService) Start(context.Context) error { return nil }

func (m *mockService) Stop() error { return nil }

func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// mockEngine implements processor with a canned reply per message body.
type mockEngine struct {
	mu      sync.Mutex
	replies map[string]models.Reply
	err     error
	seen    []string
}

func (m *mockEngine) ProcessMessage(_ context.Context, from, text, _ string) (models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, text)
	if m.err != nil {
		return models.Reply{}, m.err
	}
	if reply, ok := m.replies[text]; ok {
		return reply, nil
	}
	return models.Single("ok"), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcherSendsSingleReply(t *testing.T) {
	svc := newMockService()
	engine := &mockEngine{replies: map[string]models.Reply{"halo": models.Single("Halo juga!")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(svc, engine, WithInterBubbleDelay(0))
	d.Start(ctx)

	svc.responses <- models.Response{From: "+628111", Body: "halo", UserName: "Budi"}
	waitFor(t, func() bool { return len(svc.sentMessages()) == 1 })

	sent := svc.sentMessages()
	if sent[0].To != "+628111" || sent[0].Body != "Halo juga!" {
		t.Errorf("sent = %+v", sent[0])
	}
}

func TestDispatcherSendsBubblesInOrder(t *testing.T) {
	svc := newMockService()
	engine := &mockEngine{replies: map[string]models.Reply{
		"halo": models.Multi("Selamat datang.", "Ini menunya."),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(svc, engine, WithInterBubbleDelay(time.Millisecond))
	d.Start(ctx)

	svc.responses <- models.Response{From: "+628111", Body: "halo"}
	waitFor(t, func() bool { return len(svc.sentMessages()) == 2 })

	sent := svc.sentMessages()
	if sent[0].Body != "Selamat datang." || sent[1].Body != "Ini menunya." {
		t.Errorf("bubble order = %+v", sent)
	}
}

func TestDispatcherSilentReplySendsNothing(t *testing.T) {
	svc := newMockService()
	engine := &mockEngine{replies: map[string]models.Reply{
		"spam": models.NoReply(),
		"halo": models.Single("Halo!"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(svc, engine, WithInterBubbleDelay(0))
	d.Start(ctx)

	svc.responses <- models.Response{From: "+628111", Body: "spam"}
	svc.responses <- models.Response{From: "+628222", Body: "halo"}
	waitFor(t, func() bool { return len(svc.sentMessages()) == 1 })

	if sent := svc.sentMessages(); sent[0].To != "+628222" {
		t.Errorf("sent = %+v, silent verdict leaked a message", sent)
	}
}

func TestDispatcherEngineFailureSendsNothing(t *testing.T) {
	svc := newMockService()
	engine := &mockEngine{err: errors.New("boom")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(svc, engine, WithInterBubbleDelay(0))
	d.Start(ctx)

	svc.responses <- models.Response{From: "+628111", Body: "halo"}
	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.seen) == 1
	})

	time.Sleep(20 * time.Millisecond)
	if sent := svc.sentMessages(); len(sent) != 0 {
		t.Errorf("sent = %+v, want nothing on engine failure", sent)
	}
}

func TestDispatcherSendDirect(t *testing.T) {
	svc := newMockService()
	d := NewDispatcher(svc, &mockEngine{})

	if err := d.SendDirect(context.Background(), "+628111", "⏳ Sesi berakhir."); err != nil {
		t.Fatalf("SendDirect() error = %v", err)
	}
	sent := svc.sentMessages()
	if len(sent) != 1 || sent[0].Body != "⏳ Sesi berakhir." {
		t.Errorf("sent = %+v", sent)
	}
}

func TestDispatcherStopsWhenChannelCloses(t *testing.T) {
	svc := newMockService()
	engine := &mockEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(svc, engine, WithInterBubbleDelay(0))
	d.Start(ctx)

	svc.responses <- models.Response{From: "+628111", Body: "halo"}
	waitFor(t, func() bool { return len(svc.sentMessages()) == 1 })
	close(svc.responses)

	// Nothing to assert beyond not panicking; give the loop a beat to exit.
	time.Sleep(10 * time.Millisecond)
}

func TestDispatcherPreservesPerSenderOrder(t *testing.T) {
	svc := newMockService()
	texts := []string{"satu", "dua", "tiga", "empat", "lima"}
	replies := make(map[string]models.Reply, len(texts))
	for _, text := range texts {
		replies[text] = models.Single(text)
	}
	engine := &mockEngine{replies: replies}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(svc, engine, WithInterBubbleDelay(0))
	d.Start(ctx)

	for _, text := range texts {
		svc.responses <- models.Response{From: "+628111", Body: text}
	}
	waitFor(t, func() bool { return len(svc.sentMessages()) == len(texts) })

	for i, msg := range svc.sentMessages() {
		if msg.Body != texts[i] {
			t.Fatalf("reply %d = %q, want %q (burst replies out of order)", i, msg.Body, texts[i])
		}
	}
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+62 812-3456-789", "628123456789", false},
		{"whatsapp:+628123456789", "628123456789", false},
		{"", "", true},
		{"abc", "", true},
		{"123", "", true},
	}
	for _, tc := range tests {
		got, err := canonicalizePhone(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("canonicalizePhone(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
