// Package guard implements the abuse defenses that run before any stateful
// message processing: a per-sender cooldown, a sliding-window rate counter
// with a temporary ban, and a message-length cap.
//
// The cooldown and the window counter are stacked independent filters, not a
// single combined policy; both are additive penalties that no user action
// resets.
package guard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// Policy limits. Values mirror the production deployment.
const (
	// Cooldown is the minimum gap between two messages from one sender.
	Cooldown = 1000 * time.Millisecond
	// Window is the span of the rolling rate-limit window.
	Window = 60 * time.Second
	// MaxPerWindow is the number of messages allowed inside one window.
	// Exceeding it triggers a ban.
	MaxPerWindow = 22
	// BanDuration is how long a triggered ban lasts.
	BanDuration = 30 * time.Minute
	// MaxMessageLen is the longest message the engine will process.
	MaxMessageLen = 300
)

// record tracks one sender's behavior.
type record struct {
	count         int
	windowStart   time.Time
	bannedUntil   time.Time
	lastMessageAt time.Time
}

// Verdict is the outcome of the abuse checks for one inbound message.
// Allow=false with an empty Reply is a fully silent drop; a non-empty Reply
// is sent once to inform the sender (ban notice, length cap).
type Verdict struct {
	Allow bool
	Reply string
}

var silent = Verdict{Allow: false}

// Guard holds the per-sender abuse records.
type Guard struct {
	mu      sync.Mutex
	records map[string]*record
}

// New creates an empty Guard.
func New() *Guard {
	return &Guard{records: make(map[string]*record)}
}

// CheckAndRecord runs the abuse checks for one inbound message and updates
// the sender's record. Check order: cooldown, ban, window counter, length
// cap. The sender's lastMessageAt is updated first, before any decision, so
// rapid-fire messages keep extending their own cooldown.
func (g *Guard) CheckAndRecord(sender, text string, now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[sender]
	if !ok {
		rec = &record{}
		g.records[sender] = rec
	}

	prevMessageAt := rec.lastMessageAt
	rec.lastMessageAt = now

	// Cooldown: silent drop, indistinguishable from a delivery gap.
	if !prevMessageAt.IsZero() && now.Sub(prevMessageAt) < Cooldown {
		slog.Warn("Guard dropping rapid message", "sender", sender, "gap", now.Sub(prevMessageAt))
		return silent
	}

	// Active ban: silent drop.
	if now.Before(rec.bannedUntil) {
		slog.Info("Guard dropping message from banned sender", "sender", sender, "remaining", rec.bannedUntil.Sub(now).Round(time.Second))
		return silent
	}

	// Rolling window counter.
	if rec.windowStart.IsZero() || now.Sub(rec.windowStart) > Window {
		rec.count = 1
		rec.windowStart = now
	} else {
		rec.count++
	}
	slog.Debug("Guard window check", "sender", sender, "count", rec.count, "max", MaxPerWindow)

	if rec.count > MaxPerWindow {
		rec.bannedUntil = now.Add(BanDuration)
		slog.Warn("Guard banning sender", "sender", sender, "until", rec.bannedUntil)
		// The triggering message gets exactly one notice; everything after
		// is silent until the ban expires.
		return Verdict{Allow: false, Reply: banNotice}
	}

	// Length is counted in characters, not bytes, so multibyte text is not
	// penalized.
	if length := utf8.RuneCountInString(text); length > MaxMessageLen {
		slog.Warn("Guard rejecting oversized message", "sender", sender, "length", length)
		return Verdict{Allow: false, Reply: fmt.Sprintf(tooLongNotice, length, MaxMessageLen)}
	}

	return Verdict{Allow: true}
}

// IsBanned reports whether the sender is currently banned.
func (g *Guard) IsBanned(sender string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[sender]
	return ok && now.Before(rec.bannedUntil)
}

const banNotice = "⛔ *SISTEM KEAMANAN*\n\nAnda mengirim pesan terlalu cepat (Spam).\nAkses diblokir selama 30 menit."

const tooLongNotice = "⚠️ *Pesan Terlalu Panjang*\n\nPesan Anda mengandung %d karakter (Batas: %d).\nMohon persingkat pertanyaan Anda agar bisa diproses."
