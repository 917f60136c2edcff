package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

// downloadTokensKey is the custom metadata key Firebase keeps download tokens under.
const downloadTokensKey = "firebaseStorageDownloadTokens"

type SettableMetadata struct {
	CacheControl       string            `json:"cacheControl,omitempty"`
	ContentDisposition string            `json:"contentDisposition,omitempty"`
	ContentEncoding    string            `json:"contentEncoding,omitempty"`
	ContentLanguage    string            `json:"contentLanguage,omitempty"`
	ContentType        string            `json:"contentType,omitempty"`
	CustomMetadata     map[string]string `json:"customMetadata,omitempty"`
}

// DecodeCustomMetadata decodes the custom metadata map into v. It reports false when
// there is no custom metadata.
func (m *SettableMetadata) DecodeCustomMetadata(v any) (bool, error) {
	if m == nil || len(m.CustomMetadata) == 0 {
		return false, nil
	}
	raw, err := json.Marshal(m.CustomMetadata)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

type UploadMetadata struct {
	SettableMetadata
	// MD5Hash is base64 encoded.
	MD5Hash string `json:"md5Hash,omitempty"`
}

type FullMetadata struct {
	UploadMetadata
	Bucket         string    `json:"bucket"`
	FullPath       string    `json:"fullPath"`
	Generation     string    `json:"generation"`
	Metageneration string    `json:"metageneration"`
	Name           string    `json:"name"`
	Size           uint64    `json:"size"`
	TimeCreated    time.Time `json:"timeCreated"`
	Updated        time.Time `json:"updated"`
	DownloadTokens []string  `json:"downloadTokens,omitempty"`
	Ref            *Ref      `json:"-"`
}

func fullMetadataFrom(attrs *gcs.ObjectAttrs, ref *Ref) *FullMetadata {
	if attrs == nil {
		return nil
	}
	m := &FullMetadata{
		UploadMetadata: UploadMetadata{
			SettableMetadata: SettableMetadata{
				CacheControl:       attrs.CacheControl,
				ContentDisposition: attrs.ContentDisposition,
				ContentEncoding:    attrs.ContentEncoding,
				ContentLanguage:    attrs.ContentLanguage,
				ContentType:        attrs.ContentType,
			},
		},
		Bucket:         attrs.Bucket,
		FullPath:       attrs.Name,
		Generation:     strconv.FormatInt(attrs.Generation, 10),
		Metageneration: strconv.FormatInt(attrs.Metageneration, 10),
		Name:           attrs.Name,
		Size:           uint64(max(attrs.Size, 0)),
		TimeCreated:    attrs.Created,
		Updated:        attrs.Updated,
		Ref:            ref,
	}
	if i := strings.LastIndexByte(attrs.Name, '/'); i >= 0 {
		m.Name = attrs.Name[i+1:]
	}
	if len(attrs.MD5) > 0 {
		m.MD5Hash = base64.StdEncoding.EncodeToString(attrs.MD5)
	}
	for k, v := range attrs.Metadata {
		if k == downloadTokensKey {
			m.DownloadTokens = splitTokens(v)
			continue
		}
		if m.CustomMetadata == nil {
			m.CustomMetadata = map[string]string{}
		}
		m.CustomMetadata[k] = v
	}
	return m
}

func splitTokens(v string) []string {
	var out []string
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// UploadMetadataOptions is built with chained setters; unset fields are left to the
// backend (content type is sniffed when omitted).
//
//	meta := storage.NewUploadMetadata().ContentType("image/png").AddCustomMetadata("owner", uid)
type UploadMetadataOptions struct {
	cacheControl       *string
	contentDisposition *string
	contentEncoding    *string
	contentLanguage    *string
	contentType        *string
	md5Hash            *string
	customMetadata     map[string]string
}

func NewUploadMetadata() *UploadMetadataOptions {
	return &UploadMetadataOptions{}
}

func (o *UploadMetadataOptions) CacheControl(v string) *UploadMetadataOptions {
	o.cacheControl = &v
	return o
}

func (o *UploadMetadataOptions) ContentDisposition(v string) *UploadMetadataOptions {
	o.contentDisposition = &v
	return o
}

func (o *UploadMetadataOptions) ContentEncoding(v string) *UploadMetadataOptions {
	o.contentEncoding = &v
	return o
}

func (o *UploadMetadataOptions) ContentLanguage(v string) *UploadMetadataOptions {
	o.contentLanguage = &v
	return o
}

func (o *UploadMetadataOptions) ContentType(v string) *UploadMetadataOptions {
	o.contentType = &v
	return o
}

// MD5Hash takes the base64 encoded digest; the upload fails server-side on mismatch.
func (o *UploadMetadataOptions) MD5Hash(v string) *UploadMetadataOptions {
	o.md5Hash = &v
	return o
}

func (o *UploadMetadataOptions) AddCustomMetadata(key, value string) *UploadMetadataOptions {
	if o.customMetadata == nil {
		o.customMetadata = map[string]string{}
	}
	o.customMetadata[key] = value
	return o
}

func (o *UploadMetadataOptions) validate() error {
	if o == nil {
		return nil
	}
	if o.md5Hash != nil {
		if _, err := base64.StdEncoding.DecodeString(*o.md5Hash); err != nil {
			return newError(KindInvalidArgument, fmt.Sprintf("md5Hash %q is not valid base64", *o.md5Hash), err)
		}
	}
	if _, reserved := o.customMetadata[downloadTokensKey]; reserved {
		return newError(KindInvalidArgument, downloadTokensKey+" is reserved", nil)
	}
	return nil
}

// apply copies the options onto the object attributes of a writer. validate must have
// passed first.
func (o *UploadMetadataOptions) apply(attrs *gcs.ObjectAttrs) {
	if o == nil {
		return
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&attrs.CacheControl, o.cacheControl)
	set(&attrs.ContentDisposition, o.contentDisposition)
	set(&attrs.ContentEncoding, o.contentEncoding)
	set(&attrs.ContentLanguage, o.contentLanguage)
	set(&attrs.ContentType, o.contentType)
	if o.md5Hash != nil {
		attrs.MD5, _ = base64.StdEncoding.DecodeString(*o.md5Hash)
	}
	if len(o.customMetadata) > 0 {
		if attrs.Metadata == nil {
			attrs.Metadata = make(map[string]string, len(o.customMetadata))
		}
		for k, v := range o.customMetadata {
			attrs.Metadata[k] = v
		}
	}
}
