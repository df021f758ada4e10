// Package catalog provides the read-only query facade over the library
// management system's PostgreSQL database.
//
// The schema (buku, eksemplar_buku, sirkulasi, anggota) is owned by the ILS;
// this package only reads it. Every lookup returns empty/nil for "not found"
// and errors only on infrastructure failure.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pustakalab/pustakabot/internal/models"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections to the ILS database.
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the maximum number of idle connections kept in the pool.
	DefaultMaxIdleConns = 10
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute

	// searchLimit caps the rows a keyword search returns.
	searchLimit = 10
	// searchYearSpan restricts keyword searches to recent publications.
	searchYearSpan = 20
)

// Copy availability labels shown to users.
const (
	StatusAvailable = "Tersedia"
	StatusOnLoan    = "Sedang Dipinjam"
)

// Opts holds configuration options for the catalog facade.
type Opts struct {
	DSN string
	DB  *sql.DB
}

// Option defines a configuration option for the catalog facade.
type Option func(*Opts)

// WithDSN sets the PostgreSQL connection string for the ILS database.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDB injects an existing database handle (used by tests).
func WithDB(db *sql.DB) Option {
	return func(o *Opts) { o.DB = db }
}

// Facade exposes the fixed set of read operations the dialogue engine needs.
type Facade struct {
	db *sql.DB
}

// NewFacade opens the ILS database connection. The catalog schema is owned
// externally, so no migrations run here.
func NewFacade(opts ...Option) (*Facade, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DB != nil {
		return &Facade{db: cfg.DB}, nil
	}
	if cfg.DSN == "" {
		slog.Error("Catalog DSN not set")
		return nil, fmt.Errorf("catalog database DSN not set")
	}

	slog.Debug("Opening catalog database connection")
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open catalog connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Catalog ping failed", "error", err)
		return nil, err
	}
	slog.Info("Catalog database connected")
	return &Facade{db: db}, nil
}

// Close closes the catalog database connection.
func (f *Facade) Close() error {
	return f.db.Close()
}

// SearchByTitle looks up books whose title contains the keyword, restricted
// to the last 20 years, newest first, capped at 10 rows.
func (f *Facade) SearchByTitle(ctx context.Context, keyword string) ([]models.Book, error) {
	return f.searchBooks(ctx, `
		SELECT id_buku, judul_buku, pengarang, tahun
		FROM buku
		WHERE judul_buku ILIKE $1 AND tahun >= $2
		ORDER BY tahun DESC
		LIMIT $3`, keyword)
}

// SearchByAuthor looks up books whose author contains the keyword, with the
// same recency filter and cap as title search.
func (f *Facade) SearchByAuthor(ctx context.Context, keyword string) ([]models.Book, error) {
	return f.searchBooks(ctx, `
		SELECT id_buku, judul_buku, pengarang, tahun
		FROM buku
		WHERE pengarang ILIKE $1 AND tahun >= $2
		ORDER BY tahun DESC
		LIMIT $3`, keyword)
}

// SearchUniversal looks up books matching the keyword in either title or
// author.
func (f *Facade) SearchUniversal(ctx context.Context, keyword string) ([]models.Book, error) {
	return f.searchBooks(ctx, `
		SELECT id_buku, judul_buku, pengarang, tahun
		FROM buku
		WHERE (judul_buku ILIKE $1 OR pengarang ILIKE $1) AND tahun >= $2
		ORDER BY tahun DESC
		LIMIT $3`, keyword)
}

func (f *Facade) searchBooks(ctx context.Context, query, keyword string) ([]models.Book, error) {
	minYear := time.Now().Year() - searchYearSpan
	pattern := "%" + keyword + "%"

	rows, err := f.db.QueryContext(ctx, query, pattern, minYear, searchLimit)
	if err != nil {
		slog.Error("Catalog search query failed", "error", err, "keyword", keyword)
		return nil, fmt.Errorf("catalog search for %q failed: %w", keyword, err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Year); err != nil {
			slog.Error("Catalog search scan failed", "error", err)
			return nil, fmt.Errorf("catalog search scan failed: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		slog.Error("Catalog search rows iteration failed", "error", err)
		return nil, fmt.Errorf("catalog search iteration failed: %w", err)
	}
	slog.Debug("Catalog search succeeded", "keyword", keyword, "count", len(books))
	return books, nil
}

// GetDetail returns the full record for a book ID with per-copy availability,
// or nil when the ID does not exist. A copy is on loan when an open
// circulation row (status_kembali = 'N') references its barcode.
func (f *Facade) GetDetail(ctx context.Context, bookID string) (*models.BookDetail, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT
			b.id_buku, b.judul_buku, b.pengarang, b.tahun,
			COALESCE(b.penerbit, ''), COALESCE(b.bahasa, ''), COALESCE(b.isbn, ''),
			COALESCE(b.call_number, ''), COALESCE(b.kolasi, ''), COALESCE(b.kampus, ''),
			COALESCE(e.no_barcode, ''), COALESCE(e.lokasi, ''), COALESCE(e.kampus, ''),
			COALESCE(s.status_kembali, '')
		FROM buku b
		LEFT JOIN eksemplar_buku e ON b.id_buku = e.id_buku
		LEFT JOIN sirkulasi s ON e.no_barcode = s.no_barcode AND s.status_kembali = 'N'
		WHERE b.id_buku = $1`, bookID)
	if err != nil {
		slog.Error("Catalog detail query failed", "error", err, "bookID", bookID)
		return nil, fmt.Errorf("catalog detail for %q failed: %w", bookID, err)
	}
	defer rows.Close()

	var detail *models.BookDetail
	for rows.Next() {
		var (
			b                             models.Book
			publisher, language, isbn     string
			callNum, collation, campus    string
			barcode, location, copyCampus string
			loanStatus                    string
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Year,
			&publisher, &language, &isbn, &callNum, &collation, &campus,
			&barcode, &location, &copyCampus, &loanStatus); err != nil {
			slog.Error("Catalog detail scan failed", "error", err, "bookID", bookID)
			return nil, fmt.Errorf("catalog detail scan failed: %w", err)
		}
		// Book columns repeat per copy row; take them from the first row.
		if detail == nil {
			detail = &models.BookDetail{
				Book:      b,
				Publisher: publisher,
				Language:  language,
				ISBN:      isbn,
				CallNum:   callNum,
				Collation: collation,
				Campus:    campus,
			}
		}
		if barcode == "" {
			continue
		}
		status := StatusAvailable
		if loanStatus == "N" {
			status = StatusOnLoan
		}
		detail.Copies = append(detail.Copies, models.BookCopy{
			Barcode:  barcode,
			Location: location,
			Campus:   copyCampus,
			Status:   status,
		})
	}
	if err := rows.Err(); err != nil {
		slog.Error("Catalog detail rows iteration failed", "error", err, "bookID", bookID)
		return nil, fmt.Errorf("catalog detail iteration failed: %w", err)
	}
	if detail == nil {
		slog.Debug("Catalog detail not found", "bookID", bookID)
		return nil, nil
	}
	slog.Debug("Catalog detail found", "bookID", bookID, "copies", len(detail.Copies))
	return detail, nil
}

// GetMemberStatus returns a member's profile with their outstanding loans,
// or nil when the member ID does not exist.
func (f *Facade) GetMemberStatus(ctx context.Context, memberID string) (*models.Member, error) {
	var m models.Member
	err := f.db.QueryRowContext(ctx, `
		SELECT no_anggota, nama FROM anggota WHERE no_anggota = $1`, memberID).
		Scan(&m.MemberID, &m.Name)
	if err == sql.ErrNoRows {
		slog.Debug("Catalog member not found", "memberID", memberID)
		return nil, nil
	}
	if err != nil {
		slog.Error("Catalog member query failed", "error", err, "memberID", memberID)
		return nil, fmt.Errorf("catalog member lookup for %q failed: %w", memberID, err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT b.judul_buku, s.tgl_seharusnya
		FROM sirkulasi s
		JOIN eksemplar_buku e ON s.no_barcode = e.no_barcode
		JOIN buku b ON e.id_buku = b.id_buku
		WHERE s.no_anggota = $1 AND s.status_kembali = 'N'
		ORDER BY s.tgl_seharusnya ASC`, memberID)
	if err != nil {
		slog.Error("Catalog loans query failed", "error", err, "memberID", memberID)
		return nil, fmt.Errorf("catalog loans lookup for %q failed: %w", memberID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var loan models.Loan
		if err := rows.Scan(&loan.Title, &loan.DueDate); err != nil {
			slog.Error("Catalog loans scan failed", "error", err, "memberID", memberID)
			return nil, fmt.Errorf("catalog loans scan failed: %w", err)
		}
		m.ActiveLoans = append(m.ActiveLoans, loan)
	}
	if err := rows.Err(); err != nil {
		slog.Error("Catalog loans rows iteration failed", "error", err, "memberID", memberID)
		return nil, fmt.Errorf("catalog loans iteration failed: %w", err)
	}
	slog.Debug("Catalog member found", "memberID", memberID, "active_loans", len(m.ActiveLoans))
	return &m, nil
}

// CountBooks returns the total number of catalog records, for the admin
// dashboard. Failures degrade to zero at the caller.
func (f *Facade) CountBooks(ctx context.Context) (int, error) {
	var n int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buku`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog book count failed: %w", err)
	}
	return n, nil
}

// CountActiveLoans returns the number of open circulation records.
func (f *Facade) CountActiveLoans(ctx context.Context) (int, error) {
	var n int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sirkulasi WHERE status_kembali = 'N'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog loan count failed: %w", err)
	}
	return n, nil
}
