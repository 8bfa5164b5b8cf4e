/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"fmt"

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
)

type modifier func(*bun.SelectQuery) *bun.SelectQuery

// Query is a lazy select over the rows of T. Builder methods return a new
// Query and leave the receiver unchanged; nothing reaches the store until
// List, First, Count or Exists runs.
type Query[T any, P types.Record[T]] struct {
	session  *database.Session
	mods     []modifier
	includes []string
	limit    int
	offset   int
}

func newQuery[T any, P types.Record[T]](session *database.Session) *Query[T, P] {
	return &Query[T, P]{session: session}
}

func (q *Query[T, P]) clone() *Query[T, P] {
	c := *q
	c.mods = append([]modifier(nil), q.mods...)
	c.includes = append([]string(nil), q.includes...)
	return &c
}

// Where narrows the query. A nil predicate is ignored.
func (q *Query[T, P]) Where(p types.Predicate) *Query[T, P] {
	if p == nil {
		return q
	}
	c := q.clone()
	c.mods = append(c.mods, modifier(p))
	return c
}

// OrderBy appends an ordering. A nil ordering is ignored.
func (q *Query[T, P]) OrderBy(o types.OrderBy) *Query[T, P] {
	if o == nil {
		return q
	}
	c := q.clone()
	c.mods = append(c.mods, modifier(o))
	return c
}

// Include eagerly loads the named Bun relations in the given order.
func (q *Query[T, P]) Include(relations ...string) *Query[T, P] {
	c := q.clone()
	c.includes = append(c.includes, relations...)
	return c
}

// Limit caps the number of rows. Zero removes the cap.
func (q *Query[T, P]) Limit(n int) *Query[T, P] {
	c := q.clone()
	c.limit = n
	return c
}

// Offset skips the first n rows.
func (q *Query[T, P]) Offset(n int) *Query[T, P] {
	c := q.clone()
	c.offset = n
	return c
}

// Apply appends an arbitrary modification of the underlying Bun query.
func (q *Query[T, P]) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) *Query[T, P] {
	if fn == nil {
		return q
	}
	c := q.clone()
	c.mods = append(c.mods, fn)
	return c
}

// Build returns a fresh Bun select for model with every modifier applied.
func (q *Query[T, P]) Build(model interface{}) (*bun.SelectQuery, error) {
	if q.session == nil {
		return nil, ErrNoSession
	}
	db := q.session.DB()
	if db == nil {
		return nil, database.ErrNoDB
	}
	return q.build(db.NewSelect().Model(model), true), nil
}

func (q *Query[T, P]) build(sq *bun.SelectQuery, withRelations bool) *bun.SelectQuery {
	for _, mod := range q.mods {
		sq = mod(sq)
	}
	if withRelations {
		for _, rel := range q.includes {
			sq = sq.Relation(rel)
		}
	}
	if q.limit > 0 {
		sq = sq.Limit(q.limit)
	}
	if q.offset > 0 {
		sq = sq.Offset(q.offset)
	}
	return sq
}

// List runs the query. Rows already tracked by the session come back as
// the tracked instances, carrying the relations loaded by Include; the
// others are attached as unchanged.
func (q *Query[T, P]) List(ctx context.Context) ([]P, error) {
	var rows []P
	sq, err := q.Build(&rows)
	if err != nil {
		return nil, err
	}
	if err := sq.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]P, 0, len(rows))
	for _, row := range rows {
		canonical, err := q.session.Attach(row)
		if err != nil {
			return nil, err
		}
		tracked, ok := canonical.(P)
		if !ok {
			return nil, fmt.Errorf("tracked instance %T is not %T", canonical, row)
		}
		if len(q.includes) > 0 && tracked != row {
			// keep the relations this query loaded
			if err := q.session.SetRelations(tracked, row, q.includes...); err != nil {
				return nil, err
			}
		}
		out = append(out, tracked)
	}
	return out, nil
}

// First returns the first row, or nil when the query matches nothing.
func (q *Query[T, P]) First(ctx context.Context) (P, error) {
	rows, err := q.Limit(1).List(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Count returns the number of rows the query matches, ignoring relations.
func (q *Query[T, P]) Count(ctx context.Context) (int, error) {
	if q.session == nil {
		return 0, ErrNoSession
	}
	db := q.session.DB()
	if db == nil {
		return 0, database.ErrNoDB
	}
	return q.build(db.NewSelect().Model((*T)(nil)), false).Count(ctx)
}

// Exists reports whether the query matches at least one row.
func (q *Query[T, P]) Exists(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}
