package handlers

import (
	"context"
	"net/http"
	"time"

	"firebridge/internal/httpjson"
	"firebridge/internal/logger"
	"firebridge/internal/middleware"

	"github.com/sirupsen/logrus"
)

// ClaimsSetter is satisfied by *auth.Verifier.
type ClaimsSetter interface {
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]any) error
}

type Claims struct {
	setter ClaimsSetter
	log    logrus.FieldLogger
}

func NewClaims(setter ClaimsSetter, log logrus.FieldLogger) *Claims {
	return &Claims{setter: setter, log: logger.Component(log, "claims")}
}

type setClaimsReq struct {
	UID    string         `json:"uid"`
	Claims map[string]any `json:"claims"`
}

// Set replaces the custom claims of a user. Admin only. A claimsUpdatedAt timestamp is
// added so clients can tell their token is stale.
func (h *Claims) Set(w http.ResponseWriter, r *http.Request) {
	au, ok := authUser(r)
	if !ok || !middleware.IsAdmin(au.Claims) {
		httpjson.Error(w, http.StatusForbidden, "admin role required")
		return
	}

	var req setClaimsReq
	if err := httpjson.Read(r, &req); err != nil || req.UID == "" {
		httpjson.Error(w, http.StatusBadRequest, "uid is required")
		return
	}
	c := make(map[string]any, len(req.Claims)+1)
	for k, v := range req.Claims {
		c[k] = v
	}
	c["claimsUpdatedAt"] = time.Now().Unix()

	if err := h.setter.SetCustomUserClaims(r.Context(), req.UID, c); err != nil {
		status, code, msg := mapAuthError(err)
		h.log.WithError(err).WithField("uid", req.UID).Warn("setting claims failed")
		httpjson.CodedError(w, status, code, msg)
		return
	}
	h.log.WithFields(logrus.Fields{"uid": req.UID, "by": au.UID}).Info("claims set")
	httpjson.Write(w, http.StatusOK, map[string]interface{}{"ok": true, "uid": req.UID})
}

func authUser(r *http.Request) (*middleware.AuthUser, bool) {
	return middleware.GetAuthUser(r.Context())
}
