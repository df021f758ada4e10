package bot

import (
	"fmt"
	"strings"

	"github.com/pustakalab/pustakabot/internal/models"
)

// searchResultLimit is the maximum number of books shown in one reply.
const searchResultLimit = 10

// formatBookList renders a search result list in WhatsApp markup. The header
// and footer vary by which search produced the list.
func formatBookList(header, keyword string, books []models.Book, footerHint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", header)
	fmt.Fprintf(&b, "Kata kunci: _\"%s\"_\n\n", keyword)

	for i, book := range books {
		fmt.Fprintf(&b, "%d.\n", i+1)
		fmt.Fprintf(&b, "Judul: *%s*\n", book.Title)
		fmt.Fprintf(&b, "Pengarang: %s\n", book.Author)
		fmt.Fprintf(&b, "Tahun: %d\n", book.Year)
		fmt.Fprintf(&b, "ID: %s\n", book.ID)
		b.WriteString("--------------------\n\n")
	}

	if len(books) >= searchResultLimit {
		b.WriteString("_⚠️ Menampilkan 10 buku terbaru. Jika buku yang dicari tidak ada, mohon ulangi pencarian dengan kata kunci yang lebih spesifik._\n\n")
	}

	b.WriteString(footerHint)
	return b.String()
}

// formatTitleResults renders the title search reply.
func formatTitleResults(keyword string, books []models.Book) string {
	footer := fmt.Sprintf(
		"\nSilakan masukkan *ID BUKU* di atas (misal: %s) untuk melihat detail & ketersediaan buku.\n"+
			"Atau ketik *Judul Lain* untuk mencari ulang.\n"+
			"\nKetik *MENU* untuk layanan lain.", books[0].ID)
	return formatBookList("📚 *HASIL PENCARIAN BUKU*", keyword, books, footer)
}

// formatAuthorResults renders the author search reply.
func formatAuthorResults(keyword string, books []models.Book) string {
	var b strings.Builder
	b.WriteString("👤 *HASIL PENCARIAN PENGARANG*\n")
	fmt.Fprintf(&b, "Kata kunci: _\"%s\"_\n\n", keyword)

	for i, book := range books {
		fmt.Fprintf(&b, "%d.\n", i+1)
		fmt.Fprintf(&b, "Pengarang: *%s*\n", book.Author)
		fmt.Fprintf(&b, "Judul: %s\n", book.Title)
		fmt.Fprintf(&b, "Tahun: %d\n", book.Year)
		fmt.Fprintf(&b, "ID: *%s*\n", book.ID)
		b.WriteString("--------------------\n\n")
	}

	if len(books) >= searchResultLimit {
		b.WriteString("_⚠️ Menampilkan 10 buku terbaru._\n\n")
	}

	b.WriteString("\nSilakan *Ketik ID BUKU* di atas untuk detail.\n")
	b.WriteString("Atau ketik *Judul/Pengarang Lain* untuk mencari ulang.\n")
	b.WriteString("\n\nKetik *MENU* untuk layanan lain.")
	return b.String()
}

// formatUniversalResults renders the combined title-or-author search reply.
func formatUniversalResults(keyword string, books []models.Book, total int) string {
	var b strings.Builder
	b.WriteString("📚 *HASIL PENCARIAN BUKU*\n")
	fmt.Fprintf(&b, "Kata kunci: _\"%s\"_\n\n", keyword)

	for i, book := range books {
		fmt.Fprintf(&b, "%d.\n", i+1)
		fmt.Fprintf(&b, "Judul: *%s*\n", book.Title)
		fmt.Fprintf(&b, "Pengarang: %s\n", book.Author)
		fmt.Fprintf(&b, "Tahun: %d\n", book.Year)
		fmt.Fprintf(&b, "ID: %s\n", book.ID)
		b.WriteString("--------------------\n\n")
	}

	b.WriteString("--------------------\n")
	if total > len(books) {
		fmt.Fprintf(&b, "_Menampilkan %d dari %d hasil._\n", len(books), total)
	}
	fmt.Fprintf(&b, "Silakan ketik *ID BUKU* (misal: %s) untuk melihat detail & stok.\n", books[0].ID)
	b.WriteString("Atau ketik kata kunci lain untuk mencari ulang.")
	return b.String()
}

// formatBookDetail renders the full record with per-copy availability.
func formatBookDetail(d *models.BookDetail) string {
	var b strings.Builder
	b.WriteString("📖 *DETAIL BUKU PERPUSTAKAAN*\n\n")
	fmt.Fprintf(&b, "*Judul*: %s\n", d.Title)
	fmt.Fprintf(&b, "*Pengarang*: %s\n", d.Author)
	fmt.Fprintf(&b, "*Penerbit*: %s\n", orDash(d.Publisher))
	fmt.Fprintf(&b, "*Tahun*: %d\n", d.Year)
	fmt.Fprintf(&b, "*Bahasa*: %s\n", orDash(d.Language))
	fmt.Fprintf(&b, "*ISBN*: %s\n", orDash(d.ISBN))
	fmt.Fprintf(&b, "*Call Number*: %s\n", orDash(d.CallNum))
	fmt.Fprintf(&b, "*Kolasi*: %s\n", orDash(d.Collation))
	fmt.Fprintf(&b, "*Kampus*: %s\n", orDash(d.Campus))

	b.WriteString("\n📦 *STATUS KETERSEDIAAN (EKSEMPLAR)*\n")
	if len(d.Copies) == 0 {
		b.WriteString("\n⚠️ _Data fisik/barcode buku ini belum terdaftar._")
	} else {
		for i, c := range d.Copies {
			fmt.Fprintf(&b, "\n*Eksemplar ke-%d*\n", i+1)
			fmt.Fprintf(&b, "*Barcode:* %s\n", c.Barcode)
			fmt.Fprintf(&b, "*Lokasi:* %s (%s)\n", c.Location, c.Campus)
			fmt.Fprintf(&b, "*Status:* %s\n", c.Status)
		}
	}

	b.WriteString("\n\nKetik *MENU* untuk layanan lain.")
	return b.String()
}

// formatMemberStatus renders a member profile with outstanding loans.
func formatMemberStatus(m *models.Member) string {
	var b strings.Builder
	b.WriteString("👤 *INFO ANGGOTA & PEMINJAMAN*\n\n")
	fmt.Fprintf(&b, "Nama: *%s*\n", m.Name)
	fmt.Fprintf(&b, "NIM: %s\n", m.MemberID)
	fmt.Fprintf(&b, "\n📚 *Status Pinjaman: %d Buku*\n", len(m.ActiveLoans))

	if len(m.ActiveLoans) > 0 {
		b.WriteString("_Daftar buku yang belum dikembalikan:_\n")
		for i, loan := range m.ActiveLoans {
			fmt.Fprintf(&b, "\n%d. *%s*\n", i+1, loan.Title)
			fmt.Fprintf(&b, "   🗓️ Tenggat: %s\n", loan.DueDate.Format("02/01/2006"))
		}
		b.WriteString("\n⚠️ _Mohon kembalikan tepat waktu untuk menghindari denda._\n")
	} else {
		b.WriteString("✅ _Tidak ada tanggungan peminjaman._\n")
	}

	b.WriteString("\nKetik *MENU* untuk layanan lain.")
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
