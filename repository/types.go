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

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
)

// ReadRepository defines the read operations over one record type.
type ReadRepository[T any, P types.Record[T]] interface {
	GetAll() *Query[T, P]
	GetSingle(ctx context.Context, id interface{}) (P, error)
	GetSingleBy(ctx context.Context, predicate types.Predicate) (P, error)
	Filter(predicate types.Predicate, orderBy types.OrderBy, includeProperties string) *Query[T, P]
	FilterPage(ctx context.Context, predicate types.Predicate, pageIndex, pageSize int) (*Query[T, P], int, error)
	Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[T], error)
	Contains(ctx context.Context, predicate types.Predicate) (bool, error)
	Find(ctx context.Context, keys ...interface{}) (P, error)
	FindBy(ctx context.Context, predicate types.Predicate) (P, error)
}

// WriteRepository defines the write operations. The Lite variants stage
// changes without committing.
type WriteRepository[T any, P types.Record[T]] interface {
	Insert(ctx context.Context, obj P) (P, error)
	InsertLite(obj P) error
	Update(ctx context.Context, obj P, key ...KeySelector[P]) (int64, error)
	UpdateLite(ctx context.Context, obj P, key ...KeySelector[P]) (bool, error)
	Delete(ctx context.Context, id interface{}) (int64, error)
	DeleteEntity(ctx context.Context, obj P) (int64, error)
	DeleteWhere(ctx context.Context, predicate types.Predicate) (int64, error)
	DeleteLite(ctx context.Context, id interface{}) error
	DeleteEntityLite(obj P) error
	DeleteWhereLite(ctx context.Context, predicate types.Predicate) error
	SaveChanges(ctx context.Context) (int64, error)
}

// UnitOfWork combines reads and writes with the session they share.
type UnitOfWork[T any, P types.Record[T]] interface {
	ReadRepository[T, P]
	WriteRepository[T, P]
	Session() *database.Session
	Close() error
}

var _ UnitOfWork[types.Entity, *types.Entity] = (*Repository[types.Entity, *types.Entity])(nil)
