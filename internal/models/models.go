// Package models defines the core data structures for PustakaBot.
//
// It includes the per-sender session, the tagged reply type, catalog entities,
// and the wire types shared across modules.
package models

import (
	"errors"
	"time"
)

// SessionState identifies where a sender is in the conversational flow.
type SessionState string

const (
	// StateMainMenu is the root state; menu selections and static replies are resolved here.
	StateMainMenu SessionState = "main_menu"
	// StateWaitingForCriteria waits for the sender to pick a search criterion (title/author).
	StateWaitingForCriteria SessionState = "waiting_for_criteria"
	// StateWaitingForTitle waits for a title keyword.
	StateWaitingForTitle SessionState = "waiting_for_title"
	// StateWaitingForAuthor waits for an author keyword.
	StateWaitingForAuthor SessionState = "waiting_for_author"
	// StateWaitingForBookInput waits for a universal keyword or a book ID.
	StateWaitingForBookInput SessionState = "waiting_for_book_input"
	// StateWaitingForBookID waits for a book ID, falling back to a combined search.
	StateWaitingForBookID SessionState = "waiting_for_book_id"
	// StateWaitingForMemberID waits for a numeric member ID.
	StateWaitingForMemberID SessionState = "waiting_for_member_id"
)

// Session holds the ephemeral conversational state for one sender.
// At most one session exists per sender; its existence is the sole signal
// that a conversation is continuing.
type Session struct {
	Sender         string
	State          SessionState
	LastActivityAt time.Time
}

// ReplyKind tags the shape of an outbound reply.
type ReplyKind int

const (
	// ReplyNone means send nothing (silent abuse drop).
	ReplyNone ReplyKind = iota
	// ReplySingle is one outbound message.
	ReplySingle
	// ReplyMulti is an ordered list of outbound messages ("bubbles").
	ReplyMulti
)

// Reply is the tagged result of processing one inbound message.
type Reply struct {
	Kind     ReplyKind
	Messages []string
}

// NoReply returns the silent reply.
func NoReply() Reply {
	return Reply{Kind: ReplyNone}
}

// Single returns a one-message reply.
func Single(text string) Reply {
	return Reply{Kind: ReplySingle, Messages: []string{text}}
}

// Multi returns an ordered multi-bubble reply.
func Multi(texts ...string) Reply {
	return Reply{Kind: ReplyMulti, Messages: texts}
}

// IsSilent reports whether the reply carries no outbound messages.
func (r Reply) IsSilent() bool {
	return r.Kind == ReplyNone || len(r.Messages) == 0
}

// Bubbles returns the outbound messages in send order (nil when silent).
func (r Reply) Bubbles() []string {
	if r.IsSilent() {
		return nil
	}
	return r.Messages
}

// Book is one row of a catalog search result.
type Book struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Year   int    `json:"year"`
}

// BookCopy is one physical copy of a book with its availability.
type BookCopy struct {
	Barcode  string `json:"barcode"`
	Location string `json:"location"`
	Campus   string `json:"campus"`
	Status   string `json:"status"`
}

// BookDetail is the full catalog record with per-copy availability.
type BookDetail struct {
	Book
	Publisher string     `json:"publisher"`
	Language  string     `json:"language"`
	ISBN      string     `json:"isbn"`
	CallNum   string     `json:"call_number"`
	Collation string     `json:"collation"`
	Campus    string     `json:"campus"`
	Copies    []BookCopy `json:"copies"`
}

// Loan is one outstanding book loan of a member.
type Loan struct {
	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
}

// Member is a library member with their outstanding loans.
type Member struct {
	MemberID    string `json:"member_id"`
	Name        string `json:"name"`
	ActiveLoans []Loan `json:"active_loans"`
}

// IncomingMessage is the payload a transport gateway delivers to the core.
type IncomingMessage struct {
	From     string `json:"from"`
	Text     string `json:"text"`
	UserName string `json:"userName,omitempty"`
}

// Validation errors for the process-message boundary.
var (
	ErrEmptySender = errors.New("sender cannot be empty")
	ErrEmptyText   = errors.New("message text cannot be empty")
)

// Validate checks the required fields of an inbound message.
func (m *IncomingMessage) Validate() error {
	if m.From == "" {
		return ErrEmptySender
	}
	if m.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// Response represents an incoming message event from a messaging service.
type Response struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	UserName string `json:"user_name,omitempty"`
	Time     int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard admin API envelope.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
