package handlers

import (
	"net/http"
	"strings"

	"firebridge/internal/httpjson"
	"firebridge/internal/logger"
	"firebridge/internal/middleware"
	"firebridge/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const customMetadataHeader = "X-Goog-Meta-"

type Objects struct {
	objects ObjectBackend
	history UploadHistory
	log     logrus.FieldLogger
}

// NewObjects serves object routes. history may be nil, in which case finished uploads
// are not recorded.
func NewObjects(objects ObjectBackend, history UploadHistory, log logrus.FieldLogger) *Objects {
	return &Objects{objects: objects, history: history, log: logger.Component(log, "objects")}
}

// uploadLine is one line of the NDJSON upload response.
type uploadLine struct {
	Type             string                `json:"type"`
	BytesTransferred uint64                `json:"bytesTransferred"`
	TotalBytes       uint64                `json:"totalBytes"`
	State            storage.TaskState     `json:"state,omitempty"`
	Metadata         *storage.FullMetadata `json:"metadata,omitempty"`
	DownloadURL      string                `json:"downloadURL,omitempty"`
	RecordID         string                `json:"recordId,omitempty"`
	Error            *httpjson.ErrorBody   `json:"error,omitempty"`
}

func progressLine(typ string, s *storage.UploadTaskSnapshot) uploadLine {
	return uploadLine{
		Type:             typ,
		BytesTransferred: s.BytesTransferred,
		TotalBytes:       s.TotalBytes,
		State:            s.State,
		Metadata:         s.Metadata,
	}
}

// Put streams the request body into the object and answers with one progress line per
// observed snapshot, then a "complete" or an "error" line. The upload is canceled when
// the client goes away.
func (h *Objects) Put(w http.ResponseWriter, r *http.Request) {
	path, ok := h.authorize(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := h.log.WithField("object", path)

	// The body is still being read while progress is written back.
	_ = http.NewResponseController(w).EnableFullDuplex()

	up, err := h.objects.Upload(ctx, path, r.Body, r.ContentLength, uploadMetadata(r.Header))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	lines := httpjson.NewLines(w)
	it := storage.NewUploadTaskIterator(up, h.log)
	for snap, err := range it.All(ctx) {
		if err != nil {
			log.WithError(err).Warn("upload did not finish")
			_ = lines.Write(uploadLine{Type: "error", Error: errorBody(err)})
			return
		}
		if err := lines.Write(progressLine("progress", snap)); err != nil {
			log.WithError(err).Info("client went away, canceling upload")
			up.Cancel()
			return
		}
	}

	final, err := up.Wait(ctx)
	if err != nil {
		_ = lines.Write(uploadLine{Type: "error", Error: errorBody(err)})
		return
	}
	done := progressLine("complete", final)
	if u, err := h.objects.DownloadURL(ctx, path); err != nil {
		log.WithError(err).Warn("no download URL for uploaded object")
	} else {
		done.DownloadURL = u
	}
	if h.history != nil && final.Metadata != nil {
		au, _ := authUser(r)
		if rec, err := h.history.Record(ctx, au.UID, final.Metadata); err != nil {
			log.WithError(err).Warn("recording upload failed")
		} else {
			done.RecordID = rec.ID
		}
	}
	_ = lines.Write(done)
}

// Get serves ?view=metadata (the default) or ?view=download-url.
func (h *Objects) Get(w http.ResponseWriter, r *http.Request) {
	path, ok := h.authorize(w, r)
	if !ok {
		return
	}

	switch view := r.URL.Query().Get("view"); view {
	case "", "metadata":
		meta, err := h.objects.Metadata(r.Context(), path)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, meta)
	case "download-url":
		u, err := h.objects.DownloadURL(r.Context(), path)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, map[string]string{"downloadURL": u})
	default:
		httpjson.Error(w, http.StatusBadRequest, "view must be metadata or download-url, got "+view)
	}
}

func (h *Objects) Delete(w http.ResponseWriter, r *http.Request) {
	path, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if err := h.objects.Delete(r.Context(), path); err != nil {
		writeStorageError(w, err)
		return
	}
	h.log.WithField("object", path).Info("object deleted")
	w.WriteHeader(http.StatusNoContent)
}

// authorize resolves the object path of the request. Admins reach every object; other
// callers only their own users/{uid}/ prefix.
func (h *Objects) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := strings.Trim(chi.URLParam(r, "*"), "/")
	if path == "" || strings.Contains(path, "://") {
		httpjson.Error(w, http.StatusBadRequest, "object path is required")
		return "", false
	}
	au, ok := middleware.GetAuthUser(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	if !canAccess(au, path) {
		httpjson.CodedError(w, http.StatusForbidden, "storage/unauthorized", "objects outside users/"+au.UID+"/ need the admin role")
		return "", false
	}
	return path, true
}

func canAccess(au *middleware.AuthUser, path string) bool {
	return middleware.IsAdmin(au.Claims) || strings.HasPrefix(path, "users/"+au.UID+"/")
}

// uploadMetadata takes the object metadata from the standard entity headers and
// X-Goog-Meta-* custom metadata.
func uploadMetadata(h http.Header) *storage.UploadMetadataOptions {
	meta := storage.NewUploadMetadata()
	set := func(header string, fn func(string) *storage.UploadMetadataOptions) {
		if v := h.Get(header); v != "" {
			fn(v)
		}
	}
	set("Content-Type", meta.ContentType)
	set("Cache-Control", meta.CacheControl)
	set("Content-Disposition", meta.ContentDisposition)
	set("Content-Language", meta.ContentLanguage)
	set("Content-MD5", meta.MD5Hash)
	for k, vs := range h {
		if name, ok := strings.CutPrefix(k, customMetadataHeader); ok && name != "" && len(vs) > 0 {
			meta.AddCustomMetadata(strings.ToLower(name), vs[0])
		}
	}
	return meta
}
