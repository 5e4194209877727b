package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/coordinator"
	"github.com/priyank/cloudvault/internal/ledger"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// ListHandler handles file listing requests.
type ListHandler struct {
	ledger ledger.Ledger
	log    logging.Logger
}

// NewListHandler creates a new list handler.
func NewListHandler(led ledger.Ledger, log logging.Logger) *ListHandler {
	return &ListHandler{ledger: led, log: log}
}

// ListResponse represents the response for a list operation.
type ListResponse struct {
	Files []*models.FileRecord `json:"files"`
	Count int                  `json:"count"`
}

// ServeHTTP handles GET /files?owner=...&sort=...&dir=...
func (lh *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "list_files",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		http.Error(w, "missing 'owner' query parameter", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("owner_id", ownerID))

	sortKey := ledger.SortKey(r.URL.Query().Get("sort"))
	if sortKey != "" && !sortKey.Valid() {
		http.Error(w, fmt.Sprintf("unknown sort key %q", sortKey), http.StatusBadRequest)
		return
	}
	desc := r.URL.Query().Get("dir") == "desc"

	files, err := lh.ledger.List(ctx, ownerID, sortKey, desc)
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("failed to list files: %v", err), http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []*models.FileRecord{}
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{Files: files, Count: len(files)})
}

// StatsHandler handles per-owner storage stats requests.
type StatsHandler struct {
	ledger ledger.Ledger
	log    logging.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(led ledger.Ledger, log logging.Logger) *StatsHandler {
	return &StatsHandler{ledger: led, log: log}
}

// ServeHTTP handles GET /stats?owner=...
func (sh *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "owner_stats",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		http.Error(w, "missing 'owner' query parameter", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("owner_id", ownerID))

	stats, err := sh.ledger.Stats(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("failed to get stats: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// ResolveHandler resolves a file ID to a dereferenceable URL.
type ResolveHandler struct {
	coord *coordinator.Coordinator
	log   logging.Logger
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(coord *coordinator.Coordinator, log logging.Logger) *ResolveHandler {
	return &ResolveHandler{coord: coord, log: log}
}

// ResolveResponse represents the response for a URL resolution.
type ResolveResponse struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}

// ServeHTTP handles GET /files/{file_id}/url
func (rh *ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "resolve_url",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	if fileID == "" {
		http.Error(w, "missing file_id in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("file_id", fileID))

	url, err := rh.coord.ResolveURL(ctx, fileID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, vaulterr.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("failed to resolve url: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ResolveResponse{FileID: fileID, URL: url})
}
