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

package bunrepo

import (
	"context"

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/repository"
	"github.com/tomoncle/bunrepo/types"
)

type Service[T any, P types.Record[T]] interface {
	// Get returns a single record by its identifier, or nil.
	Get(ctx context.Context, id interface{}) (P, error)

	// All returns every record.
	All(ctx context.Context) ([]P, error)

	// Filter returns the records matching predicate in the given order.
	Filter(ctx context.Context, predicate types.Predicate, orderBy types.OrderBy) ([]P, error)

	// Page returns a page of records with the total of the filtered set.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Exists reports whether any record matches predicate.
	Exists(ctx context.Context, predicate types.Predicate) (bool, error)

	// Save inserts the records in one commit.
	Save(ctx context.Context, model ...P) error

	// Update writes model, merging it into the stored row with the same key.
	Update(ctx context.Context, model P) (int64, error)

	// Delete removes a record by its identifier.
	Delete(ctx context.Context, id interface{}) (int64, error)

	// DeleteWhere removes every record matching predicate.
	DeleteWhere(ctx context.Context, predicate types.Predicate) (int64, error)
}

// SessionOpener opens the session a service call runs in.
type SessionOpener func() (*database.Session, error)

type baseServiceImpl[T any, P types.Record[T]] struct {
	open SessionOpener
	opts []repository.Option
}

// NewService returns a Service whose calls each run in a short-lived session
// on the global database connection.
func NewService[T any, P types.Record[T]](opts ...repository.Option) Service[T, P] {
	return NewServiceWithOpener[T, P](func() (*database.Session, error) {
		return database.OpenSession()
	}, opts...)
}

// NewServiceWithOpener returns a Service whose sessions come from open.
func NewServiceWithOpener[T any, P types.Record[T]](open SessionOpener, opts ...repository.Option) Service[T, P] {
	return &baseServiceImpl[T, P]{open: open, opts: opts}
}

func (s *baseServiceImpl[T, P]) withRepo(fn func(repo *repository.Repository[T, P]) error) error {
	session, err := s.open()
	if err != nil {
		return err
	}
	repo := repository.New[T, P](session, s.opts...)
	defer repo.Close()
	return fn(repo)
}

func (s *baseServiceImpl[T, P]) Get(ctx context.Context, id interface{}) (obj P, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		obj, err = repo.GetSingle(ctx, id)
		return err
	})
	return obj, err
}

func (s *baseServiceImpl[T, P]) All(ctx context.Context) (rows []P, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		rows, err = repo.GetAll().List(ctx)
		return err
	})
	return rows, err
}

func (s *baseServiceImpl[T, P]) Filter(ctx context.Context, predicate types.Predicate, orderBy types.OrderBy) (rows []P, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		rows, err = repo.Filter(predicate, orderBy, "").List(ctx)
		return err
	})
	return rows, err
}

func (s *baseServiceImpl[T, P]) Page(ctx context.Context, page *types.PageRequest) (result *types.Pagination[T], err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		result, err = repo.Page(ctx, page)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T, P]) Exists(ctx context.Context, predicate types.Predicate) (ok bool, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		ok, err = repo.Contains(ctx, predicate)
		return err
	})
	return ok, err
}

func (s *baseServiceImpl[T, P]) Save(ctx context.Context, model ...P) error {
	return s.withRepo(func(repo *repository.Repository[T, P]) error {
		for _, m := range model {
			if err := repo.InsertLite(m); err != nil {
				return err
			}
		}
		_, err := repo.SaveChanges(ctx)
		return err
	})
}

func (s *baseServiceImpl[T, P]) Update(ctx context.Context, model P) (n int64, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		n, err = repo.Update(ctx, model)
		return err
	})
	return n, err
}

func (s *baseServiceImpl[T, P]) Delete(ctx context.Context, id interface{}) (n int64, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		n, err = repo.Delete(ctx, id)
		return err
	})
	return n, err
}

func (s *baseServiceImpl[T, P]) DeleteWhere(ctx context.Context, predicate types.Predicate) (n int64, err error) {
	err = s.withRepo(func(repo *repository.Repository[T, P]) error {
		n, err = repo.DeleteWhere(ctx, predicate)
		return err
	})
	return n, err
}
