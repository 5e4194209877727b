package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/coordinator"
	"github.com/priyank/cloudvault/internal/logging"
)

// DeleteHandler handles file deletion requests.
type DeleteHandler struct {
	coord *coordinator.Coordinator
	log   logging.Logger
}

// NewDeleteHandler creates a new delete handler.
func NewDeleteHandler(coord *coordinator.Coordinator, log logging.Logger) *DeleteHandler {
	return &DeleteHandler{coord: coord, log: log}
}

// ServeHTTP handles DELETE /files/{file_id}. Deleting an absent file
// returns 204 as well: the postcondition already holds.
func (dh *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "delete_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	if fileID == "" {
		http.Error(w, "missing file_id in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("file_id", fileID))

	if err := dh.coord.Delete(ctx, fileID); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("failed to delete file: %v", err), http.StatusInternalServerError)
		return
	}

	dh.log.Info(ctx, "file deleted", "file_id", fileID)
	w.WriteHeader(http.StatusNoContent)
}
