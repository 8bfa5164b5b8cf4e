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

package types

import "github.com/uptrace/bun"

// Predicate narrows a select query to the rows it matches. A nil Predicate
// matches every row.
type Predicate func(q *bun.SelectQuery) *bun.SelectQuery

// Where builds a predicate from a Bun WHERE fragment, e.g.
// Where("is_active = ?", true).
func Where(cond string, args ...interface{}) Predicate {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(cond, args...)
	}
}

// Eq matches rows whose column equals value.
func Eq(column string, value interface{}) Predicate {
	return Where("?TableAlias.? = ?", bun.Ident(column), value)
}

// In matches rows whose column is one of values.
func In(column string, values ...interface{}) Predicate {
	return Where("?TableAlias.? IN (?)", bun.Ident(column), bun.In(values))
}

// Active matches rows with is_active set.
func Active() Predicate { return Eq("is_active", true) }

// Apply runs the predicate against q. Nil predicates leave q untouched.
func (p Predicate) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	if p == nil {
		return q
	}
	return p(q)
}

// And matches rows matched by both predicates.
func (p Predicate) And(other Predicate) Predicate {
	if p == nil {
		return other
	}
	if other == nil {
		return p
	}
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.WhereGroup(" AND ", p)
			return q.WhereGroup(" AND ", other)
		})
	}
}

// Or matches rows matched by either predicate.
func (p Predicate) Or(other Predicate) Predicate {
	if p == nil || other == nil {
		// one side matches everything
		return nil
	}
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.WhereGroup(" AND ", p)
			return q.WhereGroup(" OR ", other)
		})
	}
}

// OrderBy applies an ordering to a select query.
type OrderBy func(q *bun.SelectQuery) *bun.SelectQuery

// Orders builds an ordering from "column [ASC|DESC]" strings, the format
// PageRequest uses.
func Orders(orders ...string) OrderBy {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Order(orders...)
	}
}

// Asc orders by column ascending.
func Asc(column string) OrderBy {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.? ASC", bun.Ident(column))
	}
}

// Desc orders by column descending.
func Desc(column string) OrderBy {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.? DESC", bun.Ident(column))
	}
}

// Apply runs the ordering against q. Nil orderings leave q untouched.
func (o OrderBy) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	if o == nil {
		return q
	}
	return o(q)
}

// Then appends a secondary ordering.
func (o OrderBy) Then(next OrderBy) OrderBy {
	if o == nil {
		return next
	}
	if next == nil {
		return o
	}
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return next(o(q))
	}
}
