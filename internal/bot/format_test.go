package bot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pustakalab/pustakabot/internal/models"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "Budi Santoso", "Budi Santoso"},
		{"empty", "", DefaultDisplayName},
		{"phone number", "+628123456789", DefaultDisplayName},
		{"markup stripped", "Budi *Santoso*!", "Budi Santoso"},
		{"symbols only", "!!!***", DefaultDisplayName},
		{"long name truncated", strings.Repeat("a", 30), strings.Repeat("a", 20) + "..."},
		{"allowed punctuation kept", "budi.s-99@kampus", "budi.s-99@kampus"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeName(tc.in); got != tc.want {
				t.Errorf("sanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Jam BUKA \n"); got != "jam buka" {
		t.Errorf("normalize() = %q", got)
	}
}

func TestFormatTitleResultsMentionsFirstID(t *testing.T) {
	got := formatTitleResults("pemrograman", testBooks)
	if !strings.Contains(got, "HASIL PENCARIAN BUKU") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, fmt.Sprintf("(misal: %s)", testBooks[0].ID)) {
		t.Errorf("footer does not reference the first result ID: %q", got)
	}
}

func TestFormatBookListCapNotice(t *testing.T) {
	var books []models.Book
	for i := 0; i < searchResultLimit; i++ {
		books = append(books, models.Book{ID: fmt.Sprintf("%d", i), Title: "Buku", Author: "Penulis", Year: 2020})
	}
	got := formatTitleResults("buku", books)
	if !strings.Contains(got, "Menampilkan 10 buku terbaru") {
		t.Errorf("cap notice missing: %q", got)
	}
	if strings.Contains(formatTitleResults("buku", books[:3]), "Menampilkan 10 buku terbaru") {
		t.Error("cap notice shown for a short list")
	}
}

func TestFormatUniversalResultsShowsTotals(t *testing.T) {
	got := formatUniversalResults("pemrograman", testBooks, 12)
	if !strings.Contains(got, "Menampilkan 2 dari 12 hasil") {
		t.Errorf("totals line missing: %q", got)
	}
	// When everything fits, the totals line is omitted.
	if strings.Contains(formatUniversalResults("pemrograman", testBooks, 2), "Menampilkan") {
		t.Error("totals line shown for a complete list")
	}
}

func TestFormatBookDetailFillsEmptyFieldsWithDash(t *testing.T) {
	detail := &models.BookDetail{
		Book: models.Book{ID: "101", Title: "Pemrograman", Author: "Andi", Year: 2021},
	}
	got := formatBookDetail(detail)
	if !strings.Contains(got, "*Penerbit*: -") || !strings.Contains(got, "*ISBN*: -") {
		t.Errorf("empty fields not dashed: %q", got)
	}
	if !strings.Contains(got, "belum terdaftar") {
		t.Errorf("missing no-copy notice: %q", got)
	}
}

func TestFormatBookDetailListsCopies(t *testing.T) {
	got := formatBookDetail(testDetail)
	if !strings.Contains(got, "*Eksemplar ke-1*") || !strings.Contains(got, "B-101-1") {
		t.Errorf("copy listing wrong: %q", got)
	}
	if !strings.Contains(got, "Rak 500 (Meruya)") {
		t.Errorf("copy location wrong: %q", got)
	}
}
