package bot

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pustakalab/pustakabot/internal/models"
	"github.com/pustakalab/pustakabot/internal/responses"
)

// handleCriteriaInput waits for the sender to pick title or author search.
func (e *Engine) handleCriteriaInput(_ context.Context, from, _, normalized string) (models.Reply, error) {
	switch normalized {
	case "judul", "1":
		e.sessions.SetState(from, models.StateWaitingForTitle)
		return models.Single(e.responses.Template(responses.TemplatePromptTitle)), nil
	case "pengarang", "2":
		e.sessions.SetState(from, models.StateWaitingForAuthor)
		return models.Single(e.responses.Template(responses.TemplatePromptAuthor)), nil
	}
	return models.Single(e.responses.Template(responses.TemplateInvalidCriteria)), nil
}

// handleTitleInput searches by title. On a hit the sender is moved to the
// book-ID state so the next message can be an ID from the list.
func (e *Engine) handleTitleInput(ctx context.Context, from, input, _ string) (models.Reply, error) {
	if len(input) < minTitleKeywordLen {
		return models.Single(fmt.Sprintf("⚠️ Kata kunci *\"%s\"* terlalu pendek. Harap masukkan minimal 3 huruf.", input)), nil
	}

	slog.Debug("Engine title search", "from", from, "keyword", input)
	books, err := e.catalog.SearchByTitle(ctx, input)
	if err != nil {
		slog.Error("Engine title search failed", "error", err, "from", from)
		return models.Single(searchErrorMessage), nil
	}
	if len(books) == 0 {
		// State unchanged, the sender can retry with another keyword.
		return models.Single(fmt.Sprintf("⚠️ Buku dengan kata kunci *\"%s\"* tidak ditemukan.\nCoba kata kunci lain atau ketik *MENU*.", input)), nil
	}

	e.sessions.SetState(from, models.StateWaitingForBookID)
	return models.Single(formatTitleResults(input, books)), nil
}

// handleAuthorInput searches by author name with the same hit behavior as
// the title search.
func (e *Engine) handleAuthorInput(ctx context.Context, from, input, _ string) (models.Reply, error) {
	if len(input) < minAuthorKeywordLen {
		return models.Single(fmt.Sprintf("⚠️ Nama pengarang *\"%s\"* terlalu pendek. Harap masukkan minimal 2 huruf.", input)), nil
	}

	slog.Debug("Engine author search", "from", from, "keyword", input)
	books, err := e.catalog.SearchByAuthor(ctx, input)
	if err != nil {
		slog.Error("Engine author search failed", "error", err, "from", from)
		return models.Single(searchErrorMessage), nil
	}
	if len(books) == 0 {
		return models.Single(fmt.Sprintf("⚠️ Tidak ditemukan buku karya pengarang *\"%s\"* (20 tahun terakhir).\nCoba nama lain atau ketik *MENU*.", input)), nil
	}

	e.sessions.SetState(from, models.StateWaitingForBookID)
	return models.Single(formatAuthorResults(input, books)), nil
}

// handleBookInput treats the message as a combined keyword first, then as a
// book ID. Successful keyword searches lock the state to book-ID entry;
// a direct ID hit ends the flow.
func (e *Engine) handleBookInput(ctx context.Context, from, input, normalized string) (models.Reply, error) {
	if len(normalized) < minTitleKeywordLen {
		return models.Single(fmt.Sprintf("⚠️ Kata kunci *\"%s\"* terlalu pendek. Harap masukkan minimal 3 huruf.", normalized)), nil
	}

	books, err := e.catalog.SearchUniversal(ctx, normalized)
	if err != nil {
		slog.Error("Engine universal search failed", "error", err, "from", from)
		return models.Single(searchErrorMessage), nil
	}
	if len(books) > 0 {
		e.sessions.SetState(from, models.StateWaitingForBookID)
		return models.Single(formatTitleResults(normalized, books)), nil
	}

	// No keyword hit. The message may be a book ID typed directly.
	detail, err := e.catalog.GetDetail(ctx, input)
	if err != nil {
		slog.Error("Engine book detail lookup failed", "error", err, "from", from)
		return models.Single(searchErrorMessage), nil
	}
	if detail != nil {
		e.sessions.Reset(from)
		return models.Single(formatBookDetail(detail)), nil
	}

	return models.Single(fmt.Sprintf(
		"Mohon maaf, tidak ditemukan buku dengan kata kunci atau ID *\"%s\"*.\n\nSilakan coba ketik judul atau pengarang lain.", normalized)), nil
}

// handleBookIDInput treats the message as a book ID first; on a miss it runs
// title and author searches concurrently and merges the results.
func (e *Engine) handleBookIDInput(ctx context.Context, from, input, normalized string) (models.Reply, error) {
	// "1" again here usually means the sender is lost; restate the guidance.
	if normalized == "1" {
		return models.Single("Silakan ketik Judul, Pengarang, atau ID Buku yang Anda cari."), nil
	}

	slog.Debug("Engine hybrid lookup", "from", from, "input", input)
	detail, err := e.catalog.GetDetail(ctx, input)
	if err != nil {
		slog.Error("Engine book detail lookup failed", "error", err, "from", from)
		return models.Single(searchErrorMessage), nil
	}
	if detail != nil {
		e.sessions.Reset(from)
		return models.Single(formatBookDetail(detail)), nil
	}

	// Not an ID. Run both keyword searches in parallel; either failing is
	// treated as an empty result so the other can still answer.
	var byTitle, byAuthor []models.Book
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.catalog.SearchByTitle(gctx, input)
		if err != nil {
			slog.Warn("Engine hybrid title search failed", "error", err, "from", from)
			return nil
		}
		byTitle = res
		return nil
	})
	g.Go(func() error {
		res, err := e.catalog.SearchByAuthor(gctx, input)
		if err != nil {
			slog.Warn("Engine hybrid author search failed", "error", err, "from", from)
			return nil
		}
		byAuthor = res
		return nil
	})
	_ = g.Wait()

	merged := mergeBooks(byTitle, byAuthor)
	if len(merged) > 0 {
		shown := merged
		if len(shown) > searchResultLimit {
			shown = shown[:searchResultLimit]
		}
		// State stays put so the next message can be one of the listed IDs.
		return models.Single(formatUniversalResults(input, shown, len(merged))), nil
	}

	if len(input) < minTitleKeywordLen {
		return models.Single(fmt.Sprintf(
			"⚠️ Input *\"%s\"* terlalu pendek.\nHarap masukkan minimal 3 huruf untuk mencari Judul atau Pengarang.", input)), nil
	}

	return models.Single(fmt.Sprintf(
		"⚠️ *Tidak Ditemukan*\nInput *\"%s\"* tidak valid sebagai ID Buku, Judul Buku maupun Pengarang.\n\nSilakan masukkan ID yang benar atau Judul buku yang lain.", input)), nil
}

// handleMemberIDInput validates and looks up a member ID (NIM).
func (e *Engine) handleMemberIDInput(ctx context.Context, from, input, _ string) (models.Reply, error) {
	if !digitsOnly.MatchString(input) {
		return models.Single("⚠️ Format NIM salah. Harap masukkan angka saja."), nil
	}

	slog.Debug("Engine member lookup", "from", from, "nim", input)
	member, err := e.catalog.GetMemberStatus(ctx, input)
	if err != nil {
		slog.Error("Engine member lookup failed", "error", err, "from", from)
		return models.Single(searchErrorMessage), nil
	}
	if member == nil {
		return models.Single(fmt.Sprintf("⚠️ Data anggota dengan NIM *%s* tidak ditemukan di sistem perpustakaan.", input)), nil
	}

	e.sessions.Reset(from)
	return models.Single(formatMemberStatus(member)), nil
}

// mergeBooks concatenates result sets dropping duplicate IDs, keeping order.
func mergeBooks(sets ...[]models.Book) []models.Book {
	seen := make(map[string]bool)
	var out []models.Book
	for _, set := range sets {
		for _, b := range set {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			out = append(out, b)
		}
	}
	return out
}
