package handlers

import (
	"net/http"
	"time"

	"firebridge/internal/httpjson"
	"firebridge/internal/logger"

	"github.com/sirupsen/logrus"
)

const maxSignedURLBatch = 50

type Uploads struct {
	objects ObjectBackend
	history UploadHistory
	log     logrus.FieldLogger
}

func NewUploads(objects ObjectBackend, history UploadHistory, log logrus.FieldLogger) *Uploads {
	return &Uploads{objects: objects, history: history, log: logger.Component(log, "uploads")}
}

type signedURLReq struct {
	ObjectPath     string `json:"objectPath"` // e.g. "users/{uid}/avatar.png"
	ContentType    string `json:"contentType,omitempty"`
	ExpiresSeconds int64  `json:"expiresSeconds,omitempty"` // default 900, at most 3600
}

type signedURLResp struct {
	ObjectPath string              `json:"objectPath"`
	URL        string              `json:"url,omitempty"`
	Method     string              `json:"method"`
	ExpiresAt  int64               `json:"expiresAt,omitempty"`
	Error      *httpjson.ErrorBody `json:"error,omitempty"`
}

func (h *Uploads) CreateSignedUploadURL(w http.ResponseWriter, r *http.Request) {
	var req signedURLReq
	if err := httpjson.Read(r, &req); err != nil || req.ObjectPath == "" {
		httpjson.Error(w, http.StatusBadRequest, "objectPath is required")
		return
	}
	if !h.allowed(w, r, req.ObjectPath) {
		return
	}
	url, exp, err := h.objects.SignedUploadURL(r.Context(), req.ObjectPath, req.ContentType, time.Duration(req.ExpiresSeconds)*time.Second)
	if err != nil {
		h.log.WithError(err).WithField("object", req.ObjectPath).Warn("signing upload URL failed")
		writeStorageError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, signedURLResp{ObjectPath: req.ObjectPath, URL: url, Method: http.MethodPut, ExpiresAt: exp.Unix()})
}

type signedURLsReq struct {
	Items []signedURLReq `json:"items"`
}

// CreateSignedUploadURLs signs each item on its own; failed items carry an error
// instead of a URL.
func (h *Uploads) CreateSignedUploadURLs(w http.ResponseWriter, r *http.Request) {
	var req signedURLsReq
	if err := httpjson.Read(r, &req); err != nil || len(req.Items) == 0 {
		httpjson.Error(w, http.StatusBadRequest, "items is required")
		return
	}
	if len(req.Items) > maxSignedURLBatch {
		httpjson.Error(w, http.StatusBadRequest, "too many items")
		return
	}

	au, _ := authUser(r)
	out := make([]signedURLResp, 0, len(req.Items))
	for _, it := range req.Items {
		item := signedURLResp{ObjectPath: it.ObjectPath, Method: http.MethodPut}
		switch {
		case it.ObjectPath == "":
			item.Error = &httpjson.ErrorBody{Code: "storage/invalid-argument", Message: "objectPath is required"}
		case au == nil || !canAccess(au, it.ObjectPath):
			item.Error = &httpjson.ErrorBody{Code: "storage/unauthorized", Message: "not allowed"}
		default:
			url, exp, err := h.objects.SignedUploadURL(r.Context(), it.ObjectPath, it.ContentType, time.Duration(it.ExpiresSeconds)*time.Second)
			if err != nil {
				item.Error = errorBody(err)
				break
			}
			item.URL, item.ExpiresAt = url, exp.Unix()
		}
		out = append(out, item)
	}
	httpjson.Write(w, http.StatusOK, map[string]interface{}{"items": out})
}

func (h *Uploads) allowed(w http.ResponseWriter, r *http.Request, path string) bool {
	au, ok := authUser(r)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if !canAccess(au, path) {
		httpjson.CodedError(w, http.StatusForbidden, "storage/unauthorized", "objects outside users/"+au.UID+"/ need the admin role")
		return false
	}
	return true
}
