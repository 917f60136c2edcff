package models

import "time"

// UploadRecord is one finished upload, stored under users/{uid}/uploads.
type UploadRecord struct {
	ID          string    `json:"id" firestore:"-"`
	UID         string    `json:"uid" firestore:"uid"`
	Bucket      string    `json:"bucket" firestore:"bucket"`
	Path        string    `json:"path" firestore:"path"`
	ContentType string    `json:"contentType,omitempty" firestore:"contentType,omitempty"`
	Size        int64     `json:"size" firestore:"size"`
	Generation  string    `json:"generation" firestore:"generation"`
	MD5Hash     string    `json:"md5Hash,omitempty" firestore:"md5Hash,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt" firestore:"uploadedAt"`
}

// Usage is the running upload total kept on users/{uid}.
type Usage struct {
	Uploads      int64     `json:"uploads" firestore:"uploads"`
	Bytes        int64     `json:"bytes" firestore:"bytes"`
	LastUploadAt time.Time `json:"lastUploadAt" firestore:"lastUploadAt"`
}
