package store

import (
	"context"
	"testing"
	"time"

	"firebridge/internal/logger"
	"firebridge/internal/models"
	"firebridge/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFrom(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	meta := &storage.FullMetadata{
		UploadMetadata: storage.UploadMetadata{
			SettableMetadata: storage.SettableMetadata{ContentType: "image/png"},
			MD5Hash:          "XUFAKrxLKna5cZ2REBfFkg==",
		},
		Bucket:     "demo.appspot.com",
		FullPath:   "users/alice/a.png",
		Generation: "17",
		Size:       2048,
		Updated:    updated,
	}

	rec := recordFrom("alice", meta, time.Now())
	assert.Equal(t, models.UploadRecord{
		UID:         "alice",
		Bucket:      "demo.appspot.com",
		Path:        "users/alice/a.png",
		ContentType: "image/png",
		Size:        2048,
		Generation:  "17",
		MD5Hash:     "XUFAKrxLKna5cZ2REBfFkg==",
		UploadedAt:  updated.UTC(),
	}, rec)

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now, recordFrom("alice", &storage.FullMetadata{}, now).UploadedAt)
}

func TestAddUpload(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	u := addUpload(models.Usage{}, models.UploadRecord{Size: 10, UploadedAt: t1})
	u = addUpload(u, models.UploadRecord{Size: 5, UploadedAt: t0})

	assert.Equal(t, int64(2), u.Uploads)
	assert.Equal(t, int64(15), u.Bytes)
	assert.Equal(t, t1, u.LastUploadAt)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxListLimit, clampLimit(1000))
}

func TestUploadLog_RejectsBadInput(t *testing.T) {
	s := NewUploadLog(nil, logger.Discard())
	ctx := context.Background()

	_, err := s.Record(ctx, "alice", nil)
	require.ErrorIs(t, err, ErrNoMetadata)

	_, err = s.Recent(ctx, "", 10)
	assert.Error(t, err)

	_, err = s.Usage(ctx, "")
	assert.Error(t, err)

	_, err = s.Usage(ctx, "alice/uploads/x")
	assert.ErrorContains(t, err, "invalid uid")
}
