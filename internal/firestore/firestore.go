package firestore

import (
	"context"
	"fmt"
	"strings"

	"firebridge/internal/firebase"
	"firebridge/internal/logger"

	gcfs "cloud.google.com/go/firestore"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Firestore wraps a Firestore client with classified errors and snapshot types.
type Firestore struct {
	client      *gcfs.Client
	maxAttempts int
	log         logrus.FieldLogger
}

type Option func(*Firestore)

func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Firestore) { f.log = logger.Component(l, "firestore") }
}

// WithMaxAttempts sets the default attempt budget of RunTransaction. Zero leaves the
// client library default in place.
func WithMaxAttempts(n int) Option {
	return func(f *Firestore) { f.maxAttempts = n }
}

func New(client *gcfs.Client, opts ...Option) *Firestore {
	f := &Firestore{client: client, log: logger.Component(nil, "firestore")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Firestore) Client() *gcfs.Client { return f.client }

// Doc takes a slash separated path with an even number of segments ("users/u1").
func (f *Firestore) Doc(path string) (*DocumentReference, error) {
	ref := f.client.Doc(strings.Trim(path, "/"))
	if ref == nil {
		return nil, newError(firebase.CodeInvalidArgument, fmt.Sprintf("invalid document path %q", path), nil)
	}
	return &DocumentReference{ref: ref}, nil
}

// Collection takes a slash separated path with an odd number of segments ("users").
func (f *Firestore) Collection(path string) (*CollectionReference, error) {
	ref := f.client.Collection(strings.Trim(path, "/"))
	if ref == nil {
		return nil, newError(firebase.CodeInvalidArgument, fmt.Sprintf("invalid collection path %q", path), nil)
	}
	return newCollectionReference(ref), nil
}

type DocumentReference struct {
	ref *gcfs.DocumentRef
}

func (d *DocumentReference) ID() string { return d.ref.ID }

// Path is relative to the database root, e.g. "users/u1".
func (d *DocumentReference) Path() string { return relativePath(d.ref.Path) }

func (d *DocumentReference) Parent() *CollectionReference {
	return newCollectionReference(d.ref.Parent)
}

func (d *DocumentReference) Collection(id string) *CollectionReference {
	return newCollectionReference(d.ref.Collection(id))
}

type CollectionReference struct {
	ref *gcfs.CollectionRef
}

func newCollectionReference(ref *gcfs.CollectionRef) *CollectionReference {
	return &CollectionReference{ref: ref}
}

func (c *CollectionReference) ID() string   { return c.ref.ID }
func (c *CollectionReference) Path() string { return relativePath(c.ref.Path) }

// Parent returns nil for a top level collection.
func (c *CollectionReference) Parent() *DocumentReference {
	if c.ref.Parent == nil {
		return nil
	}
	return &DocumentReference{ref: c.ref.Parent}
}

func (c *CollectionReference) Doc(id string) *DocumentReference {
	return &DocumentReference{ref: c.ref.Doc(id)}
}

// NewDoc returns a reference with a generated ID; nothing is written.
func (c *CollectionReference) NewDoc() *DocumentReference {
	return &DocumentReference{ref: c.ref.NewDoc()}
}

func (c *CollectionReference) gcfsQuery() (gcfs.Query, error) { return c.ref.Query, nil }

func relativePath(full string) string {
	if _, rest, ok := strings.Cut(full, "/documents/"); ok {
		return rest
	}
	return full
}

// GetDoc reads a document. A missing document is not an error: the snapshot reports
// Exists() == false.
func (f *Firestore) GetDoc(ctx context.Context, ref *DocumentReference) (*DocumentSnapshot, error) {
	snap, err := ref.ref.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return &DocumentSnapshot{snap: snap, ref: ref}, nil
		}
		return nil, classify(err)
	}
	return &DocumentSnapshot{snap: snap, ref: ref}, nil
}

func (f *Firestore) SetDoc(ctx context.Context, ref *DocumentReference, data any) error {
	return f.SetDocWithOptions(ctx, ref, data, SetDocOptions{})
}

// SetDocOptions controls SetDocWithOptions. Merge requires map data.
type SetDocOptions struct {
	Merge bool
}

func (o SetDocOptions) setOptions() []gcfs.SetOption {
	if o.Merge {
		return []gcfs.SetOption{gcfs.MergeAll}
	}
	return nil
}

func (f *Firestore) SetDocWithOptions(ctx context.Context, ref *DocumentReference, data any, opts SetDocOptions) error {
	if _, err := ref.ref.Set(ctx, data, opts.setOptions()...); err != nil {
		return classify(err)
	}
	f.log.WithFields(logrus.Fields{"doc": ref.Path(), "merge": opts.Merge}).Debug("document set")
	return nil
}

// UpdateDoc changes the given top level fields of an existing document. It fails with
// not-found when the document does not exist.
func (f *Firestore) UpdateDoc(ctx context.Context, ref *DocumentReference, fields map[string]any) error {
	if _, err := ref.ref.Update(ctx, toUpdates(fields)); err != nil {
		return classify(err)
	}
	return nil
}

func toUpdates(fields map[string]any) []gcfs.Update {
	return lo.MapToSlice(fields, func(k string, v any) gcfs.Update {
		return gcfs.Update{Path: k, Value: v}
	})
}

// AddDoc creates a document with a generated ID in coll.
func (f *Firestore) AddDoc(ctx context.Context, coll *CollectionReference, data any) (*DocumentReference, error) {
	ref, _, err := coll.ref.Add(ctx, data)
	if err != nil {
		return nil, classify(err)
	}
	return &DocumentReference{ref: ref}, nil
}

func (f *Firestore) DeleteDoc(ctx context.Context, ref *DocumentReference) error {
	if _, err := ref.ref.Delete(ctx); err != nil {
		return classify(err)
	}
	f.log.WithField("doc", ref.Path()).Debug("document deleted")
	return nil
}
