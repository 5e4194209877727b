package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/coordinator"
	"github.com/priyank/cloudvault/internal/ledger"
	"github.com/priyank/cloudvault/internal/localstore"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// ContentHandler serves a file's bytes. Locally stored files stream
// straight from the durable store; remote files redirect to the backend's
// resolved URL instead of proxying the payload.
type ContentHandler struct {
	ledger ledger.Ledger
	store  *localstore.Store
	coord  *coordinator.Coordinator
	log    logging.Logger
}

// NewContentHandler creates a new content handler.
func NewContentHandler(led ledger.Ledger, store *localstore.Store, coord *coordinator.Coordinator, log logging.Logger) *ContentHandler {
	return &ContentHandler{ledger: led, store: store, coord: coord, log: log}
}

// ServeHTTP handles GET /files/{file_id}/content
func (ch *ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "file_content",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	if fileID == "" {
		http.Error(w, "missing file_id in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("file_id", fileID))

	rec, err := ch.ledger.Get(ctx, fileID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, vaulterr.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("failed to get file record: %v", err), http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("backend_kind", string(rec.BackendKind)))

	if rec.BackendKind != models.BackendLocal {
		url, err := ch.coord.ResolveURL(ctx, fileID)
		if err != nil {
			span.RecordError(err)
			http.Error(w, fmt.Sprintf("failed to resolve content url: %v", err), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	data, _, err := ch.store.ReadFile(ctx, rec.Locator)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, vaulterr.ErrNotFound) {
			http.Error(w, "file bytes not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusInternalServerError)
		return
	}

	if err := ch.ledger.Touch(ctx, fileID); err != nil {
		ch.log.Warn(ctx, "failed to bump access time", "file_id", fileID, "error", err)
	}

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
