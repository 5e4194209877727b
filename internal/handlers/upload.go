package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/coordinator"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

var tracer = otel.Tracer("cloudvault-handlers")

// maxMultipartMemory bounds the in-memory part of multipart parsing; the
// rest spills to temp files.
const maxMultipartMemory = 10 << 20

// UploadHandler handles file upload requests.
type UploadHandler struct {
	coord *coordinator.Coordinator
	log   logging.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(coord *coordinator.Coordinator, log logging.Logger) *UploadHandler {
	return &UploadHandler{coord: coord, log: log}
}

// UploadResponse represents the response for an upload operation.
type UploadResponse struct {
	File    *models.FileRecord `json:"file"`
	Message string             `json:"message"`
}

// ServeHTTP handles POST /files (multipart form: owner_id, file).
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	ownerID := r.FormValue("owner_id")
	if ownerID == "" {
		http.Error(w, "missing 'owner_id' form field", http.StatusBadRequest)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing 'file' form field", http.StatusBadRequest)
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file := &models.IncomingFile{
		Name:     header.Filename,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Bytes:    data,
	}

	span.SetAttributes(
		attribute.String("owner_id", ownerID),
		attribute.String("file_name", file.Name),
		attribute.Int64("file_size", file.Size),
	)

	uh.log.Info(ctx, "upload started", "owner_id", ownerID, "file_name", file.Name, "size_bytes", file.Size)

	rec, err := uh.coord.Upload(ctx, ownerID, file, func(percent int, message string) {
		uh.log.Debug(ctx, "upload progress", "file_name", file.Name, "percent", percent, "message", message)
	})
	if err != nil {
		span.RecordError(err)
		writeUploadError(w, err)
		return
	}

	span.SetAttributes(attribute.String("backend_kind", string(rec.BackendKind)))
	uh.log.Info(ctx, "upload completed",
		"file_id", rec.ID, "backend_kind", string(rec.BackendKind), "size_bytes", rec.SizeBytes)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(UploadResponse{
		File:    rec,
		Message: "File uploaded successfully",
	})
}

func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vaulterr.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, vaulterr.ErrOversize):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, vaulterr.ErrFatalStorage):
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
	default:
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
	}
}
