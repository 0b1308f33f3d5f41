package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/external"
	"github.com/tonefinance/sectorvault/internal/snapshot"
)

// StatusProvider reports reconciler progress.
type StatusProvider interface {
	InFlight() int64
}

// QuoteReader serves the stored external USD quotes.
type QuoteReader interface {
	GetQuote(ctx context.Context, symbol string) (external.Quote, error)
	GetAllQuotes(ctx context.Context) ([]external.Quote, error)
}

// VaultInfo is one entry of GET /api/v1/vaults.
type VaultInfo struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Status is the body of GET /api/v1/status.
type Status struct {
	Vaults   int   `json:"vaults"`
	InFlight int64 `json:"inFlight"`
}

// Handler provides HTTP endpoints for the vault API.
type Handler struct {
	snapshots *snapshot.Service
	status    StatusProvider // optional
	quotes    QuoteReader
	now       func() time.Time
}

// NewHandler creates a new API handler. status may be nil when no reconciler runs in-process.
func NewHandler(snapshots *snapshot.Service, status StatusProvider, quotes QuoteReader) *Handler {
	return &Handler{snapshots: snapshots, status: status, quotes: quotes, now: time.Now}
}

// ListVaults handles GET /api/v1/vaults.
func (h *Handler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults := lo.Map(h.snapshots.Vaults(), func(v snapshot.Vault, _ int) VaultInfo {
		return VaultInfo{Slug: v.Slug, Name: v.Name, Address: v.Address.Hex()}
	})
	writeJSON(w, http.StatusOK, vaults)
}

// GetStatus handles GET /api/v1/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	s := Status{Vaults: len(h.snapshots.Vaults())}
	if h.status != nil {
		s.InFlight = h.status.InFlight()
	}
	writeJSON(w, http.StatusOK, s)
}

// ListPrices handles GET /api/v1/prices.
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.GetAllQuotes(r.Context())
	if err != nil {
		slog.Error("failed to list quotes", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if quotes == nil {
		quotes = []external.Quote{}
	}
	writeJSON(w, http.StatusOK, quotes)
}

// GetPrice handles GET /api/v1/prices/{symbol}.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	q, err := h.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, external.ErrQuoteNotFound) {
			writeError(w, http.StatusNotFound, "no quote for symbol")
			return
		}
		slog.Error("failed to get quote", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// vaultSlug returns the {vault} path value if it names a configured vault,
// otherwise writes a 404 and returns false.
func (h *Handler) vaultSlug(w http.ResponseWriter, r *http.Request) (string, bool) {
	slug := r.PathValue("vault")
	if !lo.ContainsBy(h.snapshots.Vaults(), func(v snapshot.Vault) bool { return v.Slug == slug }) {
		writeError(w, http.StatusNotFound, "unknown vault")
		return "", false
	}
	return slug, true
}

// GetLatestSnapshot handles GET /api/v1/vaults/{vault}/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.vaultSlug(w, r)
	if !ok {
		return
	}

	s, err := h.snapshots.GetLatest(r.Context(), slug)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshots found")
			return
		}
		slog.Error("failed to get latest snapshot", "vault", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetSnapshotByDate handles GET /api/v1/vaults/{vault}/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.vaultSlug(w, r)
	if !ok {
		return
	}

	dateStr := r.PathValue("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	s, err := h.snapshots.GetByDate(r.Context(), slug, date)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found for date")
			return
		}
		slog.Error("failed to get snapshot by date", "vault", slug, "date", dateStr, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListSnapshots handles GET /api/v1/vaults/{vault}/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.vaultSlug(w, r)
	if !ok {
		return
	}

	const maxLimit = 365
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}

	snapshots, err := h.snapshots.List(r.Context(), slug, limit)
	if err != nil {
		slog.Error("failed to list snapshots", "vault", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snapshots == nil {
		snapshots = []snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GenerateSnapshot handles POST /api/v1/vaults/{vault}/snapshots/generate.
func (h *Handler) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.vaultSlug(w, r)
	if !ok {
		return
	}

	now := h.now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	state, err := h.snapshots.Generate(r.Context(), slug, date)
	if err != nil {
		slog.Error("failed to generate snapshot", "vault", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate snapshot")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
