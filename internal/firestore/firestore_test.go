package firestore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"firebridge/internal/firebase"
	"firebridge/internal/logger"

	gcfs "cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// newTestFirestore builds a client against an emulator address nothing listens on. The
// tests below only exercise paths that fail or return before any RPC.
func newTestFirestore(t *testing.T) *Firestore {
	t.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:1")
	client, err := gcfs.NewClient(context.Background(), "demo-project")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, WithLogger(logger.Discard()))
}

func TestDocAndCollectionPaths(t *testing.T) {
	f := newTestFirestore(t)

	doc, err := f.Doc("/users/u1/")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID())
	assert.Equal(t, "users/u1", doc.Path())
	assert.Equal(t, "users", doc.Parent().Path())
	assert.Nil(t, doc.Parent().Parent())

	posts := doc.Collection("posts")
	assert.Equal(t, "users/u1/posts", posts.Path())
	assert.Equal(t, "u1", posts.Parent().ID())
	assert.Equal(t, "users/u1/posts/p1", posts.Doc("p1").Path())
	assert.NotEmpty(t, posts.NewDoc().ID())

	coll, err := f.Collection("users/u1/posts")
	require.NoError(t, err)
	assert.Equal(t, "posts", coll.ID())

	_, err = f.Doc("users")
	assert.True(t, IsCode(err, firebase.CodeInvalidArgument))
	_, err = f.Collection("users/u1")
	assert.True(t, IsCode(err, firebase.CodeInvalidArgument))
}

func TestQueryConstraintValidation(t *testing.T) {
	f := newTestFirestore(t)
	users, err := f.Collection("users")
	require.NoError(t, err)

	tests := []struct {
		name        string
		constraints []QueryConstraint
	}{
		{name: "unknown operator", constraints: []QueryConstraint{Where("age", "~=", 3)}},
		{name: "empty where field", constraints: []QueryConstraint{Where("", OpEqual, 3)}},
		{name: "empty order field", constraints: []QueryConstraint{OrderBy("", Asc)}},
		{name: "zero limit", constraints: []QueryConstraint{Where("age", OpGreaterThan, 3), Limit(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.GetDocs(context.Background(), users.Query(tt.constraints...))
			assert.True(t, IsCode(err, firebase.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestQueryWithKeepsFirstError(t *testing.T) {
	f := newTestFirestore(t)
	users, err := f.Collection("users")
	require.NoError(t, err)

	q := users.Query(Limit(-1)).With(Where("a", OpEqual, 1), OrderBy("a", Desc))
	_, qerr := q.gcfsQuery()
	assert.ErrorContains(t, qerr, "limit")

	ok := users.Query(Where("tags", OpArrayContainsAny, []string{"a"}), OrderBy("createdAt", Desc), Limit(10))
	_, qerr = ok.gcfsQuery()
	assert.NoError(t, qerr)
}

func TestOnSnapshotQuery_InvalidQueryReportsError(t *testing.T) {
	f := newTestFirestore(t)
	users, err := f.Collection("users")
	require.NoError(t, err)

	got := make(chan error, 1)
	unsub := f.OnSnapshotQuery(context.Background(), users.Query(Where("x", "like", 1)),
		func(*QuerySnapshot) { t.Error("unexpected snapshot") },
		func(err error) { got <- err })
	defer unsub()

	select {
	case err := <-got:
		assert.True(t, IsCode(err, firebase.CodeInvalidArgument))
	case <-time.After(5 * time.Second):
		t.Fatal("no error delivered")
	}
}

func TestQueryConstraintOps(t *testing.T) {
	for _, op := range []QueryConstraintOp{
		OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpEqual,
		OpNotEqual, OpArrayContains, OpIn, OpArrayContainsAny, OpNotIn,
	} {
		assert.True(t, op.valid(), op.String())
	}
	assert.False(t, QueryConstraintOp("contains").valid())
	assert.Equal(t, "array-contains", OpArrayContains.String())
}

func TestMissingDocumentSnapshot(t *testing.T) {
	f := newTestFirestore(t)
	ref, err := f.Doc("users/ghost")
	require.NoError(t, err)

	snap := &DocumentSnapshot{ref: ref}
	assert.False(t, snap.Exists())
	assert.Nil(t, snap.Data())
	assert.Equal(t, "ghost", snap.ID())
	assert.True(t, snap.UpdateTime().IsZero())

	var v struct{ Name string }
	assert.True(t, IsCode(snap.DataTo(&v), firebase.CodeNotFound))
}

func TestChangesFrom(t *testing.T) {
	f := newTestFirestore(t)
	a := &gcfs.DocumentSnapshot{Ref: f.client.Doc("c/a")}
	b := &gcfs.DocumentSnapshot{Ref: f.client.Doc("c/b")}

	changes := changesFrom([]gcfs.DocumentChange{
		{Kind: gcfs.DocumentAdded, Doc: a, OldIndex: -1, NewIndex: 0},
		{Kind: gcfs.DocumentModified, Doc: b, OldIndex: 1, NewIndex: 1},
		{Kind: gcfs.DocumentRemoved, Doc: a, OldIndex: 0, NewIndex: -1},
	})
	require.Len(t, changes, 3)
	assert.Equal(t, ChangeAdded, changes[0].Kind)
	assert.Equal(t, "a", changes[0].Doc.ID())
	assert.Equal(t, ChangeModified, changes[1].Kind)
	assert.Equal(t, ChangeRemoved, changes[2].Kind)
	assert.Equal(t, -1, changes[2].NewIndex)

	qs := &QuerySnapshot{}
	assert.True(t, qs.Empty())
	qs.Docs = []*DocumentSnapshot{changes[0].Doc}
	assert.Equal(t, 1, qs.Size())
}

func TestToUpdates(t *testing.T) {
	ups := toUpdates(map[string]any{"b": 2, "a": 1})
	sort.Slice(ups, func(i, j int) bool { return ups[i].Path < ups[j].Path })
	assert.Equal(t, []gcfs.Update{{Path: "a", Value: 1}, {Path: "b", Value: 2}}, ups)
}

func TestSetDocOptions(t *testing.T) {
	assert.Empty(t, SetDocOptions{}.setOptions())
	assert.Len(t, SetDocOptions{Merge: true}.setOptions(), 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind firebase.Code
		code string
	}{
		{name: "permission", err: status.Error(codes.PermissionDenied, "no"), kind: firebase.CodePermissionDenied, code: "permission-denied"},
		{name: "not found", err: status.Error(codes.NotFound, "gone"), kind: firebase.CodeNotFound, code: "not-found"},
		{name: "unmapped status", err: status.Error(codes.Code(42), "new"), kind: firebase.CodeOther, code: "Code(42)"},
		{name: "context", err: context.Canceled, kind: firebase.CodeCancelled, code: "cancelled"},
		{name: "plain", err: errors.New("boom"), kind: firebase.CodeUnknown, code: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, tt.code, fe.Code())
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, classify(nil))
}
