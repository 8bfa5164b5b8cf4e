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
	"strings"
	"time"

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
)

// Repository exposes reads and writes of one record type over a session.
// Lite variants only stage changes; SaveChanges commits them. Several
// repositories may share one session to commit a single unit of work.
//
// A Repository is not safe for concurrent use.
type Repository[T any, P types.Record[T]] struct {
	session *database.Session
	clock   func() time.Time
	logger  database.Logger
}

// New returns a repository over session. The record pointer type is
// inferred: New[Customer](session).
func New[T any, P types.Record[T]](session *database.Session, opts ...Option) *Repository[T, P] {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	return &Repository[T, P]{session: session, clock: o.clock, logger: o.logger}
}

// Session returns the unit of work the repository writes through, so
// repositories of other record types can share it.
func (r *Repository[T, P]) Session() *database.Session { return r.session }

func isNil[T any, P types.Record[T]](obj P) bool { return (*T)(obj) == nil }

// GetAll returns a lazy query over every row.
func (r *Repository[T, P]) GetAll() *Query[T, P] {
	return newQuery[T, P](r.session)
}

// GetSingle returns the row whose primary key is id, or nil.
func (r *Repository[T, P]) GetSingle(ctx context.Context, id interface{}) (P, error) {
	obj, err := r.find(ctx, id)
	if err != nil {
		return nil, newError("Repository.GetSingle(id)", msgRead, err)
	}
	return obj, nil
}

// GetSingleBy returns the first row matching predicate, or nil.
func (r *Repository[T, P]) GetSingleBy(ctx context.Context, predicate types.Predicate) (P, error) {
	obj, err := r.GetAll().Where(predicate).First(ctx)
	if err != nil {
		return nil, newError("Repository.GetSingle(predicate)", msgRead, err)
	}
	return obj, nil
}

// Filter returns a lazy query narrowed by predicate and ordered by orderBy,
// both optional. includeProperties is a comma separated list of relations
// to load with each row; empty entries are skipped.
func (r *Repository[T, P]) Filter(predicate types.Predicate, orderBy types.OrderBy, includeProperties string) *Query[T, P] {
	q := r.GetAll().Where(predicate)
	for _, rel := range strings.Split(includeProperties, ",") {
		if rel = strings.TrimSpace(rel); rel != "" {
			q = q.Include(rel)
		}
	}
	return q.OrderBy(orderBy)
}

// FilterPage returns the page at pageIndex (0-based) of the rows matching
// predicate. A non-positive pageSize means types.DefaultPageSize.
//
// total is the number of rows on the returned page, not the number of rows
// matching predicate; use Page for the latter.
func (r *Repository[T, P]) FilterPage(ctx context.Context, predicate types.Predicate, pageIndex, pageSize int) (*Query[T, P], int, error) {
	const op = "Repository.Filter(predicate, total, index, size)"
	if r.session == nil {
		return nil, 0, noSession(op)
	}
	if pageSize <= 0 {
		pageSize = types.DefaultPageSize
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	skip := pageIndex * pageSize

	q := r.GetAll().Where(predicate)
	matched, err := q.Count(ctx)
	if err != nil {
		return nil, 0, newError(op, msgRead, err)
	}
	if skip > 0 {
		q = q.Offset(skip)
	}
	q = q.Limit(pageSize)

	total := matched - skip
	switch {
	case total < 0:
		total = 0
	case total > pageSize:
		total = pageSize
	}
	return q, total, nil
}

// Page returns one page of the rows selected by req together with the
// number of rows matching its filter.
func (r *Repository[T, P]) Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[T], error) {
	const op = "Repository.Page(request)"
	if req == nil {
		req = types.NewDefaultPageRequest(1, types.DefaultPageSize)
	}
	pagination := types.NewDefaultPagination[T](req.GetPage(), req.GetPageSize())
	q := r.GetAll().Where(req.GetFilter())
	total, err := q.Count(ctx)
	if err != nil {
		return nil, newError(op, msgRead, err)
	}
	if total == 0 {
		return pagination, nil
	}
	rows, err := q.OrderBy(req.OrderBy()).Offset(req.GetOffset()).Limit(req.GetPageSize()).List(ctx)
	if err != nil {
		return nil, newError(op, msgRead, err)
	}
	pagination.Total = total
	for _, row := range rows {
		pagination.Items = append(pagination.Items, (*T)(row))
	}
	return pagination, nil
}

// Contains reports whether any row matches predicate.
func (r *Repository[T, P]) Contains(ctx context.Context, predicate types.Predicate) (bool, error) {
	ok, err := r.GetAll().Where(predicate).Exists(ctx)
	if err != nil {
		return false, newError("Repository.Contains(predicate)", msgRead, err)
	}
	return ok, nil
}

// Find looks a row up by its primary key values, consulting the session's
// tracked records before the store. It returns nil when nothing matches.
func (r *Repository[T, P]) Find(ctx context.Context, keys ...interface{}) (P, error) {
	obj, err := r.find(ctx, keys...)
	if err != nil {
		return nil, newError("Repository.Find(keys)", msgRead, err)
	}
	return obj, nil
}

// FindBy returns the first row matching predicate, or nil.
func (r *Repository[T, P]) FindBy(ctx context.Context, predicate types.Predicate) (P, error) {
	obj, err := r.GetAll().Where(predicate).First(ctx)
	if err != nil {
		return nil, newError("Repository.Find(predicate)", msgRead, err)
	}
	return obj, nil
}

func (r *Repository[T, P]) find(ctx context.Context, keys ...interface{}) (P, error) {
	if r.session == nil {
		return nil, ErrNoSession
	}
	found, err := r.session.Find(ctx, P(new(T)), keys...)
	if err != nil || found == nil {
		return nil, err
	}
	obj, ok := found.(P)
	if !ok {
		return nil, fmt.Errorf("tracked instance %T is not %T", found, obj)
	}
	return obj, nil
}

// Insert stamps obj, commits it and returns it with its generated key.
func (r *Repository[T, P]) Insert(ctx context.Context, obj P) (P, error) {
	const op = "Repository.Insert(obj)"
	if err := r.InsertLite(obj); err != nil {
		return nil, newError(op, msgInsert, err)
	}
	if _, err := r.SaveChanges(ctx); err != nil {
		return nil, newError(op, msgInsert, err)
	}
	return obj, nil
}

// InsertLite stamps obj and stages it for insertion.
func (r *Repository[T, P]) InsertLite(obj P) error {
	const op = "Repository.InsertLite(obj)"
	if r.session == nil {
		return noSession(op)
	}
	if isNil[T](obj) {
		return newError(op, msgInsert, ErrNilEntity)
	}
	StampAudit(obj.Base(), r.clock())
	if err := r.session.Add(obj); err != nil {
		return newError(op, msgInsert, err)
	}
	return nil
}

// Update reconciles obj like UpdateLite and commits. It returns the rows
// affected by the commit.
func (r *Repository[T, P]) Update(ctx context.Context, obj P, key ...KeySelector[P]) (int64, error) {
	const op = "Repository.Update(obj, key)"
	ok, err := r.UpdateLite(ctx, obj, key...)
	if err != nil {
		return 0, newError(op, msgUpdate, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := r.session.SaveChanges(ctx)
	if err != nil {
		return 0, newError(op, msgUpdate, err)
	}
	return n, nil
}

// UpdateLite stamps obj and stages it for update. When obj is not tracked
// the row with the same key is looked up: a found row takes over the values
// of obj, otherwise obj itself is tracked as modified. key defaults to ByID.
func (r *Repository[T, P]) UpdateLite(ctx context.Context, obj P, key ...KeySelector[P]) (bool, error) {
	const op = "Repository.UpdateLite(obj, key)"
	if isNil[T](obj) {
		return false, &Error{Message: msgUpdate, Op: op, Err: ErrNilEntity, Kind: KindArgument}
	}
	if r.session == nil {
		return false, noSession(op)
	}
	StampAudit(obj.Base(), r.clock())

	if r.session.State(obj) != types.Detached {
		return true, nil
	}
	selector := KeySelector[P](ByID[T, P])
	if len(key) > 0 && key[0] != nil {
		selector = key[0]
	}
	attached, err := r.find(ctx, selector(obj)...)
	if err != nil {
		return false, newError(op, msgUpdate, err)
	}
	if attached != nil {
		if err := r.session.SetValues(attached, obj); err != nil {
			return false, newError(op, msgUpdate, err)
		}
		r.logger.Debug("Detached record merged into tracked row", "session", r.session.ID(), "key", selector(obj))
		return true, nil
	}
	if err := r.session.SetState(obj, types.Modified); err != nil {
		return false, newError(op, msgUpdate, err)
	}
	return true, nil
}

// Delete removes the row whose primary key is id and commits.
func (r *Repository[T, P]) Delete(ctx context.Context, id interface{}) (int64, error) {
	const op = "Repository.Delete(id)"
	if err := r.DeleteLite(ctx, id); err != nil {
		return 0, newError(op, msgDelete, err)
	}
	return r.commitDelete(ctx, op)
}

// DeleteEntity removes obj and commits.
func (r *Repository[T, P]) DeleteEntity(ctx context.Context, obj P) (int64, error) {
	const op = "Repository.Delete(obj)"
	if err := r.DeleteEntityLite(obj); err != nil {
		return 0, newError(op, msgDelete, err)
	}
	return r.commitDelete(ctx, op)
}

// DeleteWhere removes every row matching predicate and commits.
func (r *Repository[T, P]) DeleteWhere(ctx context.Context, predicate types.Predicate) (int64, error) {
	const op = "Repository.Delete(predicate)"
	if err := r.DeleteWhereLite(ctx, predicate); err != nil {
		return 0, newError(op, msgDelete, err)
	}
	return r.commitDelete(ctx, op)
}

func (r *Repository[T, P]) commitDelete(ctx context.Context, op string) (int64, error) {
	n, err := r.SaveChanges(ctx)
	if err != nil {
		return 0, newError(op, msgDelete, err)
	}
	return n, nil
}

// DeleteLite stages the row whose primary key is id for removal. A missing
// row fails with ErrNilEntity.
func (r *Repository[T, P]) DeleteLite(ctx context.Context, id interface{}) error {
	const op = "Repository.DeleteLite(id)"
	obj, err := r.GetSingle(ctx, id)
	if err != nil {
		return newError(op, msgDelete, err)
	}
	if err := r.session.Remove(obj); err != nil {
		return newError(op, msgDelete, err)
	}
	return nil
}

// DeleteEntityLite stages obj for removal.
func (r *Repository[T, P]) DeleteEntityLite(obj P) error {
	const op = "Repository.DeleteLite(obj)"
	if r.session == nil {
		return noSession(op)
	}
	if err := r.session.Remove(obj); err != nil {
		return newError(op, msgDelete, err)
	}
	return nil
}

// DeleteWhereLite stages every row matching predicate for removal.
func (r *Repository[T, P]) DeleteWhereLite(ctx context.Context, predicate types.Predicate) error {
	const op = "Repository.DeleteLite(predicate)"
	rows, err := r.Filter(predicate, nil, "").List(ctx)
	if err != nil {
		return newError(op, msgDelete, err)
	}
	for _, row := range rows {
		if err := r.session.Remove(row); err != nil {
			return newError(op, msgDelete, err)
		}
	}
	return nil
}

// SaveChanges commits every change staged in the session and returns the
// number of affected rows.
func (r *Repository[T, P]) SaveChanges(ctx context.Context) (int64, error) {
	const op = "Repository.SaveChanges()"
	if r.session == nil {
		return 0, noSession(op)
	}
	n, err := r.session.SaveChanges(ctx)
	if err != nil {
		return 0, newError(op, msgSave, err)
	}
	return n, nil
}

// Close releases the session. It is safe to call more than once and on a
// repository without a session.
func (r *Repository[T, P]) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Close()
}
