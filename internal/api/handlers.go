package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pustakalab/pustakabot/internal/models"
	"github.com/pustakalab/pustakabot/internal/responses"
)

// processMessageHandler runs one gateway message through the dialogue engine
// (POST /process-message). A silent verdict returns an empty object so the
// gateway sends nothing.
func (s *Server) processMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.processMessageHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var msg models.IncomingMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.processMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := msg.Validate(); err != nil {
		slog.Warn("Server.processMessageHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	reply, err := s.engine.ProcessMessage(r.Context(), msg.From, msg.Text, msg.UserName)
	if err != nil {
		slog.Error("Server.processMessageHandler: engine failed", "error", err, "from", msg.From)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if reply.IsSilent() {
		writeJSONResponse(w, http.StatusOK, struct{}{})
		return
	}

	var payload struct {
		Reply interface{} `json:"reply"`
	}
	if reply.Kind == models.ReplyMulti {
		payload.Reply = reply.Bubbles()
	} else {
		payload.Reply = reply.Bubbles()[0]
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// adminDataHandler returns the full response table (GET /admin/data).
func (s *Server) adminDataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, s.responses.Document())
}

// adminSaveHandler replaces the response table after validation, taking a
// backup of the current file first (POST /admin/data/save).
func (s *Server) adminSaveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var doc responses.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		slog.Warn("Server.adminSaveHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.responses.Save(&doc); err != nil {
		if errors.Is(err, responses.ErrInvalidDocument) {
			slog.Warn("Server.adminSaveHandler: invalid document", "error", err)
			writeJSONResponse(w, http.StatusBadRequest,
				models.Error("Data tidak valid! Struktur JSON rusak atau kategori wajib hilang."))
			return
		}
		slog.Error("Server.adminSaveHandler: save failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Gagal menulis ke file."))
		return
	}

	slog.Info("Server.adminSaveHandler: response table saved")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Berhasil disimpan (Backup dibuat)."))
}

type keyRequest struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// adminAddKeyHandler adds one keyword to a category (POST /admin/data/add-key).
func (s *Server) adminAddKeyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Category == "" || req.Key == "" || req.Value == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing category, key, or value"))
		return
	}

	if err := s.responses.AddKey(req.Category, req.Key, req.Value); err != nil {
		switch {
		case errors.Is(err, responses.ErrCategoryNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Kategori tidak ditemukan."))
		case errors.Is(err, responses.ErrKeyExists):
			writeJSONResponse(w, http.StatusConflict, models.Error("Kata kunci sudah ada."))
		default:
			slog.Error("Server.adminAddKeyHandler: add failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Gagal."))
		}
		return
	}

	slog.Info("Server.adminAddKeyHandler: key added", "category", req.Category, "key", req.Key)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Ditambahkan."))
}

// adminDeleteKeyHandler removes one keyword (POST /admin/data/delete-key).
func (s *Server) adminDeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Category == "" || req.Key == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing category or key"))
		return
	}

	if err := s.responses.DeleteKey(req.Category, req.Key); err != nil {
		switch {
		case errors.Is(err, responses.ErrCategoryNotFound), errors.Is(err, responses.ErrKeyNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Kata kunci tidak ditemukan."))
		default:
			slog.Error("Server.adminDeleteKeyHandler: delete failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Gagal."))
		}
		return
	}

	slog.Info("Server.adminDeleteKeyHandler: key deleted", "category", req.Category, "key", req.Key)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Dihapus."))
}

// libraryStats is the catalog slice of the dashboard payload. Failures are
// reported as zeros so the dashboard still renders when the ILS is down.
type libraryStats struct {
	TotalBooks int `json:"total_books"`
	Borrowed   int `json:"borrowed"`
}

// adminStatsHandler serves the usage dashboard (GET /admin/stats/summary).
func (s *Server) adminStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Analytics not configured"))
		return
	}

	summary, err := s.stats.Summarize(r.Context())
	if err != nil {
		slog.Error("Server.adminStatsHandler: summary failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Server Error"))
		return
	}

	var lib libraryStats
	if s.library != nil {
		if n, err := s.library.CountBooks(r.Context()); err == nil {
			lib.TotalBooks = n
		} else {
			slog.Warn("Server.adminStatsHandler: book count failed", "error", err)
		}
		if n, err := s.library.CountActiveLoans(r.Context()); err == nil {
			lib.Borrowed = n
		} else {
			slog.Warn("Server.adminStatsHandler: loan count failed", "error", err)
		}
	}

	writeJSONResponse(w, http.StatusOK, struct {
		Summary  *analyticsSummaryHeader `json:"summary"`
		Charts   *analyticsCharts        `json:"charts"`
		TopUsers interface{}             `json:"top_users"`
	}{
		Summary: &analyticsSummaryHeader{
			TotalChats:  summary.TotalInteractions,
			UniqueUsers: summary.UniqueUsers,
			TodayChats:  summary.InteractionsToday,
		},
		Charts: &analyticsCharts{
			Trend7Days:         summary.DailyTrend,
			PeakHours:          summary.PeakHours,
			LibraryComposition: lib,
		},
		TopUsers: summary.TopUsers,
	})
}

type analyticsSummaryHeader struct {
	TotalChats  int `json:"total_chats"`
	UniqueUsers int `json:"unique_users"`
	TodayChats  int `json:"today_chats"`
}

type analyticsCharts struct {
	Trend7Days         interface{}  `json:"trend_7_days"`
	PeakHours          interface{}  `json:"peak_hours"`
	LibraryComposition libraryStats `json:"library_composition"`
}
