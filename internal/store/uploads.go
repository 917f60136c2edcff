package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"firebridge/internal/firestore"
	"firebridge/internal/logger"
	"firebridge/internal/models"
	"firebridge/internal/storage"

	"github.com/sirupsen/logrus"
)

var ErrNoMetadata = errors.New("upload has no metadata")

const (
	ColUsers   = "users"
	ColUploads = "uploads"

	defaultListLimit = 20
	maxListLimit     = 100
)

// UploadLog keeps a per-user history of finished uploads in Firestore.
type UploadLog struct {
	fs  *firestore.Firestore
	now func() time.Time
	log logrus.FieldLogger
}

func NewUploadLog(fs *firestore.Firestore, log logrus.FieldLogger) *UploadLog {
	return &UploadLog{fs: fs, now: time.Now, log: logger.Component(log, "upload-log")}
}

func (s *UploadLog) userDoc(uid string) (*firestore.DocumentReference, error) {
	if uid == "" || strings.Contains(uid, "/") {
		return nil, fmt.Errorf("invalid uid %q", uid)
	}
	return s.fs.Doc(ColUsers + "/" + uid)
}

// Record stores the upload and adds it to the user's usage in one transaction.
func (s *UploadLog) Record(ctx context.Context, uid string, meta *storage.FullMetadata) (models.UploadRecord, error) {
	if meta == nil {
		return models.UploadRecord{}, ErrNoMetadata
	}
	user, err := s.userDoc(uid)
	if err != nil {
		return models.UploadRecord{}, err
	}
	recRef := user.Collection(ColUploads).NewDoc()
	rec := recordFrom(uid, meta, s.now())
	rec.ID = recRef.ID()

	usage, err := firestore.RunTransaction(ctx, s.fs, func(ctx context.Context, tx *firestore.Transaction) (models.Usage, error) {
		snap, err := tx.Get(user)
		if err != nil {
			return models.Usage{}, err
		}
		var doc struct {
			Usage models.Usage `firestore:"usage"`
		}
		if snap.Exists() {
			if err := snap.DataTo(&doc); err != nil {
				return models.Usage{}, err
			}
		}
		usage := addUpload(doc.Usage, rec)

		if err := tx.Set(recRef, rec); err != nil {
			return models.Usage{}, err
		}
		if err := tx.SetWithOptions(user, map[string]any{"usage": usage}, firestore.SetDocOptions{Merge: true}); err != nil {
			return models.Usage{}, err
		}
		return usage, nil
	})
	if err != nil {
		return models.UploadRecord{}, err
	}

	s.log.WithFields(logrus.Fields{"uid": uid, "path": rec.Path, "uploads": usage.Uploads}).Info("upload recorded")
	return rec, nil
}

// Recent lists the user's latest uploads, newest first.
func (s *UploadLog) Recent(ctx context.Context, uid string, limit int) ([]models.UploadRecord, error) {
	user, err := s.userDoc(uid)
	if err != nil {
		return nil, err
	}
	q := user.Collection(ColUploads).Query(
		firestore.OrderBy("uploadedAt", firestore.Desc),
		firestore.Limit(clampLimit(limit)),
	)
	snap, err := s.fs.GetDocs(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]models.UploadRecord, 0, snap.Size())
	for _, d := range snap.Docs {
		var rec models.UploadRecord
		if err := d.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("upload %s: %w", d.ID(), err)
		}
		rec.ID = d.ID()
		out = append(out, rec)
	}
	return out, nil
}

// Usage returns the user's totals; a user without uploads has zero usage.
func (s *UploadLog) Usage(ctx context.Context, uid string) (models.Usage, error) {
	user, err := s.userDoc(uid)
	if err != nil {
		return models.Usage{}, err
	}
	snap, err := s.fs.GetDoc(ctx, user)
	if err != nil || !snap.Exists() {
		return models.Usage{}, err
	}
	var doc struct {
		Usage models.Usage `firestore:"usage"`
	}
	if err := snap.DataTo(&doc); err != nil {
		return models.Usage{}, err
	}
	return doc.Usage, nil
}

func recordFrom(uid string, meta *storage.FullMetadata, now time.Time) models.UploadRecord {
	uploaded := meta.Updated
	if uploaded.IsZero() {
		uploaded = now
	}
	return models.UploadRecord{
		UID:         uid,
		Bucket:      meta.Bucket,
		Path:        meta.FullPath,
		ContentType: meta.ContentType,
		Size:        int64(meta.Size),
		Generation:  meta.Generation,
		MD5Hash:     meta.MD5Hash,
		UploadedAt:  uploaded.UTC(),
	}
}

func addUpload(u models.Usage, rec models.UploadRecord) models.Usage {
	u.Uploads++
	u.Bytes += rec.Size
	if rec.UploadedAt.After(u.LastUploadAt) {
		u.LastUploadAt = rec.UploadedAt
	}
	return u
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}
