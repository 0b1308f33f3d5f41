package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/tonefinance/sectorvault/internal/snapshot"
)

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, snapshots *snapshot.Service, status StatusProvider, quotes QuoteReader, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      newMux(NewHandler(snapshots, status, quotes), adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newMux(handler *Handler, adminAPIKey string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", handler.GetStatus)
	mux.HandleFunc("GET /api/v1/prices", handler.ListPrices)
	mux.HandleFunc("GET /api/v1/prices/{symbol}", handler.GetPrice)
	mux.HandleFunc("GET /api/v1/vaults", handler.ListVaults)
	mux.HandleFunc("GET /api/v1/vaults/{vault}/snapshots/latest", handler.GetLatestSnapshot)
	mux.HandleFunc("GET /api/v1/vaults/{vault}/snapshots/{date}", handler.GetSnapshotByDate)
	mux.HandleFunc("GET /api/v1/vaults/{vault}/snapshots", handler.ListSnapshots)

	generateHandler := http.HandlerFunc(handler.GenerateSnapshot)
	if adminAPIKey != "" {
		mux.Handle("POST /api/v1/vaults/{vault}/snapshots/generate", requireAuth(adminAPIKey, generateHandler))
	} else {
		mux.Handle("POST /api/v1/vaults/{vault}/snapshots/generate", generateHandler)
	}

	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
