package firestore

import (
	"context"
	"fmt"

	"firebridge/internal/firebase"

	gcfs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

type QueryConstraintOp string

const (
	OpLessThan           QueryConstraintOp = "<"
	OpLessThanOrEqual    QueryConstraintOp = "<="
	OpGreaterThan        QueryConstraintOp = ">"
	OpGreaterThanOrEqual QueryConstraintOp = ">="
	OpEqual              QueryConstraintOp = "=="
	OpNotEqual           QueryConstraintOp = "!="
	OpArrayContains      QueryConstraintOp = "array-contains"
	OpIn                 QueryConstraintOp = "in"
	OpArrayContainsAny   QueryConstraintOp = "array-contains-any"
	OpNotIn              QueryConstraintOp = "not-in"
)

func (op QueryConstraintOp) String() string { return string(op) }

func (op QueryConstraintOp) valid() bool {
	switch op {
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpEqual,
		OpNotEqual, OpArrayContains, OpIn, OpArrayContainsAny, OpNotIn:
		return true
	}
	return false
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

// QueryConstraint narrows a query; build them with Where, OrderBy and Limit.
type QueryConstraint interface {
	apply(gcfs.Query) (gcfs.Query, error)
}

type constraintFunc func(gcfs.Query) (gcfs.Query, error)

func (fn constraintFunc) apply(q gcfs.Query) (gcfs.Query, error) { return fn(q) }

func Where(field string, op QueryConstraintOp, value any) QueryConstraint {
	return constraintFunc(func(q gcfs.Query) (gcfs.Query, error) {
		if field == "" {
			return q, newError(firebase.CodeInvalidArgument, "where: empty field path", nil)
		}
		if !op.valid() {
			return q, newError(firebase.CodeInvalidArgument, fmt.Sprintf("where: invalid operator %q", op), nil)
		}
		return q.Where(field, string(op), value), nil
	})
}

func OrderBy(field string, dir Direction) QueryConstraint {
	return constraintFunc(func(q gcfs.Query) (gcfs.Query, error) {
		if field == "" {
			return q, newError(firebase.CodeInvalidArgument, "orderBy: empty field path", nil)
		}
		d := gcfs.Asc
		if dir == Desc {
			d = gcfs.Desc
		}
		return q.OrderBy(field, d), nil
	})
}

func Limit(n int) QueryConstraint {
	return constraintFunc(func(q gcfs.Query) (gcfs.Query, error) {
		if n <= 0 {
			return q, newError(firebase.CodeInvalidArgument, fmt.Sprintf("limit: must be positive, got %d", n), nil)
		}
		return q.Limit(n), nil
	})
}

// Queryable is a CollectionReference or a Query.
type Queryable interface {
	gcfsQuery() (gcfs.Query, error)
}

// Query is immutable; adding constraints returns a new Query. A constraint that failed
// to apply is reported by the first read.
type Query struct {
	q   gcfs.Query
	err error
}

func (q *Query) gcfsQuery() (gcfs.Query, error) { return q.q, q.err }

// Query starts a query over the collection.
func (c *CollectionReference) Query(constraints ...QueryConstraint) *Query {
	return (&Query{q: c.ref.Query}).With(constraints...)
}

func (q *Query) With(constraints ...QueryConstraint) *Query {
	out := &Query{q: q.q, err: q.err}
	for _, c := range constraints {
		if out.err != nil {
			break
		}
		out.q, out.err = c.apply(out.q)
	}
	return out
}

func (f *Firestore) GetDocs(ctx context.Context, q Queryable) (*QuerySnapshot, error) {
	query, err := q.gcfsQuery()
	if err != nil {
		return nil, err
	}

	it := query.Documents(ctx)
	defer it.Stop()

	out := &QuerySnapshot{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		out.Docs = append(out.Docs, newDocumentSnapshot(snap))
	}
	return out, nil
}
