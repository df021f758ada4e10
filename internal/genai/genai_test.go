package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService with canned per-call results.
type mockChatService struct {
	responses []*openai.ChatCompletion
	errs      []error
	calls     int
	lastReq   openai.ChatCompletionNewParams
}

func (m *mockChatService) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	idx := m.calls
	m.calls++
	m.lastReq = params
	var resp *openai.ChatCompletion
	var err error
	if idx < len(m.responses) {
		resp = m.responses[idx]
	}
	if idx < len(m.errs) {
		err = m.errs[idx]
	}
	return resp, err
}

func completionWith(text string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: text}},
		},
	}
}

func newTestClient(chat chatService) *Client {
	return &Client{
		chat:        chat,
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		timeout:     time.Second,
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
}

func TestCompleteReturnsTrimmedText(t *testing.T) {
	chat := &mockChatService{responses: []*openai.ChatCompletion{completionWith("  jawaban  \n")}}
	client := newTestClient(chat)

	got, err := client.Complete(context.Background(), "sistem", "pertanyaan")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "jawaban" {
		t.Errorf("Complete() = %q, want trimmed text", got)
	}
	if len(chat.lastReq.Messages) != 2 {
		t.Fatalf("request carried %d messages, want system + user", len(chat.lastReq.Messages))
	}
}

func TestCompleteRetriesTransientFailureOnce(t *testing.T) {
	chat := &mockChatService{
		errs:      []error{&openai.Error{StatusCode: 429}},
		responses: []*openai.ChatCompletion{nil, completionWith("jawaban")},
	}
	client := newTestClient(chat)

	got, err := client.Complete(context.Background(), "sistem", "pertanyaan")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "jawaban" {
		t.Errorf("Complete() = %q", got)
	}
	if chat.calls != 2 {
		t.Errorf("calls = %d, want one retry", chat.calls)
	}
}

func TestCompleteWrapsPersistentTransientFailure(t *testing.T) {
	chat := &mockChatService{
		errs: []error{&openai.Error{StatusCode: 503}, &openai.Error{StatusCode: 503}},
	}
	client := newTestClient(chat)

	_, err := client.Complete(context.Background(), "sistem", "pertanyaan")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("Complete() error = %v, want ErrTransient", err)
	}
	if chat.calls != 2 {
		t.Errorf("calls = %d, want exactly one retry", chat.calls)
	}
}

func TestCompleteDoesNotRetryPermanentFailure(t *testing.T) {
	chat := &mockChatService{
		errs: []error{&openai.Error{StatusCode: 400}},
	}
	client := newTestClient(chat)

	_, err := client.Complete(context.Background(), "sistem", "pertanyaan")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrTransient) {
		t.Errorf("Complete() error = %v, want non-transient", err)
	}
	if chat.calls != 1 {
		t.Errorf("calls = %d, want no retry", chat.calls)
	}
}

func TestCompleteRejectsEmptyCompletion(t *testing.T) {
	tests := []struct {
		name string
		resp *openai.ChatCompletion
	}{
		{"no choices", &openai.ChatCompletion{}},
		{"blank content", completionWith("   ")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chat := &mockChatService{responses: []*openai.ChatCompletion{tc.resp, tc.resp}}
			client := newTestClient(chat)
			if _, err := client.Complete(context.Background(), "sistem", "pertanyaan"); err == nil {
				t.Fatal("expected error for empty completion")
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !isTransient(&openai.Error{StatusCode: 429}) {
		t.Error("429 should be transient")
	}
	if !isTransient(&openai.Error{StatusCode: 500}) {
		t.Error("500 should be transient")
	}
	if isTransient(&openai.Error{StatusCode: 401}) {
		t.Error("401 should not be transient")
	}
	if !isTransient(context.DeadlineExceeded) {
		t.Error("deadline should be transient")
	}
	if isTransient(errors.New("other")) {
		t.Error("generic error should not be transient")
	}
	if !strings.Contains(ErrTransient.Error(), "transient") {
		t.Error("sentinel text changed")
	}
}
