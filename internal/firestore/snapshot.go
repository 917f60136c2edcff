package firestore

import (
	"time"

	"firebridge/internal/firebase"

	gcfs "cloud.google.com/go/firestore"
	"github.com/samber/lo"
)

type DocumentSnapshot struct {
	snap *gcfs.DocumentSnapshot
	ref  *DocumentReference
}

func newDocumentSnapshot(s *gcfs.DocumentSnapshot) *DocumentSnapshot {
	return &DocumentSnapshot{snap: s, ref: &DocumentReference{ref: s.Ref}}
}

func (d *DocumentSnapshot) Exists() bool { return d.snap != nil && d.snap.Exists() }

func (d *DocumentSnapshot) ID() string { return d.ref.ID() }

func (d *DocumentSnapshot) Ref() *DocumentReference { return d.ref }

// Data returns nil when the document does not exist.
func (d *DocumentSnapshot) Data() map[string]any {
	if !d.Exists() {
		return nil
	}
	return d.snap.Data()
}

// DataTo decodes the document into v using `firestore` struct tags.
func (d *DocumentSnapshot) DataTo(v any) error {
	if !d.Exists() {
		return newError(firebase.CodeNotFound, "document "+d.ref.Path()+" does not exist", nil)
	}
	if err := d.snap.DataTo(v); err != nil {
		return newError(firebase.CodeInvalidArgument, err.Error(), err)
	}
	return nil
}

func (d *DocumentSnapshot) UpdateTime() time.Time {
	if !d.Exists() {
		return time.Time{}
	}
	return d.snap.UpdateTime
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type DocumentChange struct {
	Kind     ChangeKind
	Doc      *DocumentSnapshot
	OldIndex int
	NewIndex int
}

type QuerySnapshot struct {
	Docs []*DocumentSnapshot
	// Changes is only filled for listener snapshots.
	Changes  []DocumentChange
	ReadTime time.Time
}

func (q *QuerySnapshot) Empty() bool { return len(q.Docs) == 0 }
func (q *QuerySnapshot) Size() int   { return len(q.Docs) }

func changesFrom(in []gcfs.DocumentChange) []DocumentChange {
	return lo.Map(in, func(c gcfs.DocumentChange, _ int) DocumentChange {
		kind := ChangeModified
		switch c.Kind {
		case gcfs.DocumentAdded:
			kind = ChangeAdded
		case gcfs.DocumentRemoved:
			kind = ChangeRemoved
		}
		return DocumentChange{Kind: kind, Doc: newDocumentSnapshot(c.Doc), OldIndex: c.OldIndex, NewIndex: c.NewIndex}
	})
}
