// Package responses provides the file-backed static response table for
// PustakaBot.
//
// The table is a categorized keyword -> reply mapping maintained by
// librarians through the admin API. Reads are served from an immutable
// in-memory snapshot; every administrative write creates a timestamped
// backup, rewrites the backing file, and reloads the snapshot. An fsnotify
// watcher picks up external edits to the file without a restart.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "embed"

	"github.com/fsnotify/fsnotify"
)

//go:embed defaults.json
var defaultsJSON []byte

// Category names as they appear in the backing JSON document.
const (
	CategoryFlowMessages     = "flow_messages"
	CategorySystemCommands   = "system_commands"
	CategoryGeneralServices  = "general_services"
	CategoryMemberServices   = "member_services"
	CategoryAcademicServices = "academic_services"
)

// Flow message template names.
const (
	TemplateWelcome          = "welcome_message"
	TemplateSessionEnd       = "session_end_message"
	TemplateSessionTimeout   = "session_timeout_message"
	TemplatePromptTitle      = "prompt_judul"
	TemplatePromptAuthor     = "prompt_pengarang"
	TemplatePromptUniversal  = "prompt_search_universal"
	TemplatePromptCriteria   = "prompt_search_criteria"
	TemplateInvalidCriteria  = "invalid_criteria"
	TemplateInvalidSelection = "invalid_menu_selection"
	TemplateAISafetyWarning  = "ai_safety_warning"
)

// Errors returned by administrative writes.
var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrKeyExists        = errors.New("key already exists")
	ErrKeyNotFound      = errors.New("key not found")
	ErrInvalidDocument  = errors.New("invalid response document")
)

// matchOrder is the fixed category order the resolver iterates. First
// category with any match wins.
var matchOrder = []string{
	CategorySystemCommands,
	CategoryGeneralServices,
	CategoryMemberServices,
	CategoryAcademicServices,
}

// keywordCategories are the service categories whose keys feed the LLM
// safety filter.
var keywordCategories = []string{
	CategoryGeneralServices,
	CategoryMemberServices,
	CategoryAcademicServices,
}

// Document is the full response table as stored on disk.
type Document struct {
	FlowMessages     *Category `json:"flow_messages"`
	SystemCommands   *Category `json:"system_commands"`
	GeneralServices  *Category `json:"general_services"`
	MemberServices   *Category `json:"member_services"`
	AcademicServices *Category `json:"academic_services"`
}

func (d *Document) category(name string) *Category {
	switch name {
	case CategoryFlowMessages:
		return d.FlowMessages
	case CategorySystemCommands:
		return d.SystemCommands
	case CategoryGeneralServices:
		return d.GeneralServices
	case CategoryMemberServices:
		return d.MemberServices
	case CategoryAcademicServices:
		return d.AcademicServices
	default:
		return nil
	}
}

// Validate checks the required categories are present and non-empty.
func (d *Document) Validate() error {
	required := []string{CategorySystemCommands, CategoryFlowMessages, CategoryGeneralServices}
	for _, name := range required {
		if d.category(name).Len() == 0 {
			return fmt.Errorf("%w: required category %q is missing or empty", ErrInvalidDocument, name)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	return &Document{
		FlowMessages:     d.FlowMessages.Clone(),
		SystemCommands:   d.SystemCommands.Clone(),
		GeneralServices:  d.GeneralServices.Clone(),
		MemberServices:   d.MemberServices.Clone(),
		AcademicServices: d.AcademicServices.Clone(),
	}
}

// Opts holds configuration options for the response store.
type Opts struct {
	Path      string
	BackupDir string
}

// Option defines a configuration option for the response store.
type Option func(*Opts)

// WithPath sets the backing JSON file path.
func WithPath(path string) Option {
	return func(o *Opts) { o.Path = path }
}

// WithBackupDir sets the directory for pre-write backups.
func WithBackupDir(dir string) Option {
	return func(o *Opts) { o.BackupDir = dir }
}

// Store serves the static response table from an in-memory snapshot of the
// backing file.
type Store struct {
	path      string
	backupDir string

	mu  sync.RWMutex
	doc *Document
}

// NewStore creates a response store backed by the configured file. When the
// file does not exist it is seeded from the embedded defaults.
func NewStore(opts ...Option) (*Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Path == "" {
		cfg.Path = "responses.json"
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(filepath.Dir(cfg.Path), "backups")
	}

	s := &Store{path: cfg.Path, backupDir: cfg.BackupDir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	slog.Info("ResponseStore loaded", "path", s.path, "categories", len(matchOrder)+1)
	return s, nil
}

// Reload re-reads the backing file into the snapshot. A missing file falls
// back to the embedded defaults; a corrupt file is an error so a bad admin
// write never silently empties the table.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read response file %s: %w", s.path, err)
		}
		slog.Warn("ResponseStore backing file missing, using embedded defaults", "path", s.path)
		raw = defaultsJSON
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	slog.Debug("ResponseStore snapshot reloaded",
		"system_commands", doc.SystemCommands.Len(),
		"general_services", doc.GeneralServices.Len(),
		"member_services", doc.MemberServices.Len(),
		"academic_services", doc.AcademicServices.Len())
	return nil
}

func decodeDocument(raw []byte) (*Document, error) {
	doc := &Document{
		FlowMessages:     NewCategory(),
		SystemCommands:   NewCategory(),
		GeneralServices:  NewCategory(),
		MemberServices:   NewCategory(),
		AcademicServices: NewCategory(),
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("failed to parse response document: %w", err)
	}
	// Unmarshal leaves omitted categories nil; normalize so lookups are safe.
	if doc.FlowMessages == nil {
		doc.FlowMessages = NewCategory()
	}
	if doc.SystemCommands == nil {
		doc.SystemCommands = NewCategory()
	}
	if doc.GeneralServices == nil {
		doc.GeneralServices = NewCategory()
	}
	if doc.MemberServices == nil {
		doc.MemberServices = NewCategory()
	}
	if doc.AcademicServices == nil {
		doc.AcademicServices = NewCategory()
	}
	return doc, nil
}

// Resolve matches normalized text against the table in fixed category order.
// Within a category an exact key match wins immediately; otherwise the first
// key (in document order, length > 1) whose normalized form is a substring of
// the input wins. Returns false when no category matches.
func (s *Store) Resolve(normalized string) (string, bool) {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	for _, name := range matchOrder {
		cat := doc.category(name)
		if reply, ok := cat.Get(normalized); ok {
			slog.Debug("ResponseStore exact match", "category", name, "key", normalized)
			return reply, true
		}
		for _, key := range cat.Keys() {
			if len(key) <= 1 {
				continue
			}
			if strings.Contains(normalized, strings.ToLower(strings.TrimSpace(key))) {
				reply, _ := cat.Get(key)
				slog.Debug("ResponseStore partial match", "category", name, "key", key)
				return reply, true
			}
		}
	}
	return "", false
}

// Keywords returns the non-numeric service-category keys longer than one
// character, used by the LLM safety filter.
func (s *Store) Keywords() []string {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	var keywords []string
	for _, name := range keywordCategories {
		for _, key := range doc.category(name).Keys() {
			if len(key) <= 1 {
				continue
			}
			if _, err := strconv.Atoi(key); err == nil {
				continue
			}
			keywords = append(keywords, key)
		}
	}
	return keywords
}

// Template returns a flow message by name, or a fallback when it is absent
// so a sparse document never yields an empty bubble.
func (s *Store) Template(name string) string {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	if text, ok := doc.FlowMessages.Get(name); ok {
		return text
	}
	if text, ok := templateFallbacks[name]; ok {
		slog.Debug("ResponseStore template missing, using fallback", "template", name)
		return text
	}
	slog.Warn("ResponseStore unknown template requested", "template", name)
	return "Silakan ketik *MENU* untuk melihat layanan yang tersedia."
}

// MenuText returns the main menu body.
func (s *Store) MenuText() string {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	if text, ok := doc.SystemCommands.Get("menu"); ok {
		return text
	}
	return "Ketik *MENU* untuk melihat layanan yang tersedia."
}

// ServiceText returns a general-services entry by key (e.g. the ask-member-id
// text stored under key "2").
func (s *Store) ServiceText(key string) (string, bool) {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()
	return doc.GeneralServices.Get(key)
}

// Document returns a deep copy of the current snapshot for the admin API.
func (s *Store) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Save validates and persists a full replacement document, backing up the
// current file first, then reloads the snapshot.
func (s *Store) Save(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := s.backup(); err != nil {
		slog.Warn("ResponseStore backup failed, continuing with save", "error", err)
	}
	if err := s.write(doc); err != nil {
		return err
	}
	return s.Reload()
}

// AddKey inserts a new keyword into a category. The key is normalized
// (lowercased, trimmed) before insertion.
func (s *Store) AddKey(category, key, value string) error {
	normKey := strings.ToLower(strings.TrimSpace(key))
	if normKey == "" || value == "" {
		return fmt.Errorf("%w: key and value are required", ErrInvalidDocument)
	}

	s.mu.RLock()
	doc := s.doc.Clone()
	s.mu.RUnlock()

	cat := doc.category(category)
	if cat == nil {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	if _, exists := cat.Get(normKey); exists {
		return fmt.Errorf("%w: %s/%s", ErrKeyExists, category, normKey)
	}
	cat.Set(normKey, value)

	if err := s.backup(); err != nil {
		slog.Warn("ResponseStore backup failed, continuing with add", "error", err)
	}
	if err := s.write(doc); err != nil {
		return err
	}
	slog.Info("ResponseStore key added", "category", category, "key", normKey)
	return s.Reload()
}

// DeleteKey removes a keyword from a category.
func (s *Store) DeleteKey(category, key string) error {
	s.mu.RLock()
	doc := s.doc.Clone()
	s.mu.RUnlock()

	cat := doc.category(category)
	if cat == nil {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	if !cat.Delete(key) {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, category, key)
	}

	if err := s.write(doc); err != nil {
		return err
	}
	slog.Info("ResponseStore key deleted", "category", category, "key", key)
	return s.Reload()
}

// backup copies the current backing file into the backup directory with a
// timestamped name. A missing backing file is not an error.
func (s *Store) backup() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read current response file: %w", err)
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	name := filepath.Join(s.backupDir, fmt.Sprintf("responses-%s.json", stamp))
	if err := os.WriteFile(name, raw, 0644); err != nil {
		return fmt.Errorf("failed to write backup %s: %w", name, err)
	}
	slog.Info("ResponseStore backup created", "backup", name)
	return nil
}

func (s *Store) write(doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode response document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create response dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write response file %s: %w", s.path, err)
	}
	return nil
}

// Watch reloads the snapshot whenever the backing file changes on disk,
// until the context is cancelled. Reload failures keep the previous snapshot.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create response file watcher: %w", err)
	}
	// Watch the directory: editors and atomic writes replace the file inode.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	slog.Info("ResponseStore watching for file changes", "dir", dir)

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				slog.Debug("ResponseStore file change detected", "op", event.Op.String())
				if err := s.Reload(); err != nil {
					slog.Error("ResponseStore reload after file change failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("ResponseStore watcher error", "error", err)
			case <-ctx.Done():
				slog.Debug("ResponseStore watcher stopping")
				return
			}
		}
	}()
	return nil
}

// templateFallbacks are the last-resort flow messages used when the backing
// document omits a template the engine needs.
var templateFallbacks = map[string]string{
	TemplateWelcome:          "Selamat datang di PustakaBot.",
	TemplateSessionEnd:       "Terima kasih, sesi dihentikan.",
	TemplateSessionTimeout:   "⏳ Sesi percakapan Anda telah berakhir. Ketik *MENU* untuk memulai kembali.",
	TemplatePromptTitle:      "Silakan ketik judul buku yang dicari.",
	TemplatePromptAuthor:     "Silakan ketik nama pengarang yang dicari.",
	TemplatePromptUniversal:  "Silakan ketik judul, pengarang, atau ID buku yang dicari.",
	TemplatePromptCriteria:   "Ingin mencari berdasarkan apa? 1. Judul / 2. Pengarang",
	TemplateInvalidCriteria:  "Pilihan tidak dikenali. Balas dengan 1 (Judul) atau 2 (Pengarang).",
	TemplateInvalidSelection: "Pilihan tidak tersedia.\n\n",
	TemplateAISafetyWarning:  "Informasi tersebut tersedia di menu layanan. Silakan ketik *MENU*.",
}
