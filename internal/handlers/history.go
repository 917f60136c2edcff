package handlers

import (
	"context"
	"net/http"
	"strconv"

	"firebridge/internal/httpjson"
	"firebridge/internal/models"
	"firebridge/internal/storage"
)

// UploadHistory is satisfied by *store.UploadLog.
type UploadHistory interface {
	Record(ctx context.Context, uid string, meta *storage.FullMetadata) (models.UploadRecord, error)
	Recent(ctx context.Context, uid string, limit int) ([]models.UploadRecord, error)
	Usage(ctx context.Context, uid string) (models.Usage, error)
}

// ListUploads answers with the caller's recent uploads and usage totals.
func (h *Uploads) ListUploads(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httpjson.Error(w, http.StatusNotFound, "upload history is not enabled")
		return
	}
	au, ok := authUser(r)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.history.Recent(r.Context(), au.UID, limit)
	if err != nil {
		h.log.WithError(err).WithField("uid", au.UID).Warn("listing uploads failed")
		httpjson.Error(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}
	usage, err := h.history.Usage(r.Context(), au.UID)
	if err != nil {
		h.log.WithError(err).WithField("uid", au.UID).Warn("reading usage failed")
		httpjson.Error(w, http.StatusInternalServerError, "failed to read usage")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"items": items, "usage": usage})
}
