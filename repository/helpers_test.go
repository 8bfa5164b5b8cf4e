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
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`
	types.Entity

	Name   string   `bun:"name,notnull" validate:"required,max=32"`
	Email  string   `bun:"email"`
	Orders []*Order `bun:"rel:has-many,join:id=customer_id"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`
	types.Entity

	CustomerID int64     `bun:"customer_id,notnull"`
	Amount     int       `bun:"amount"`
	Customer   *Customer `bun:"rel:belongs-to,join:customer_id=id"`
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	err = database.CreateTables(context.Background(), db, false, (*Customer)(nil), (*Order)(nil))
	require.NoError(t, err)
	return db
}

func newCustomerRepo(t *testing.T, db bun.IDB) *Repository[Customer, *Customer] {
	t.Helper()
	repo := New[Customer](database.NewSession(db), WithClock(fixedClock))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// seedCustomers commits one customer per name through its own session.
func seedCustomers(t *testing.T, db bun.IDB, active bool, names ...string) []*Customer {
	t.Helper()
	repo := New[Customer](database.NewSession(db))
	defer repo.Close()
	out := make([]*Customer, 0, len(names))
	for _, name := range names {
		c := &Customer{Name: name, Entity: types.Entity{IsActive: active, LastUpdatedBy: "seed"}}
		require.NoError(t, repo.InsertLite(c))
		out = append(out, c)
	}
	_, err := repo.SaveChanges(context.Background())
	require.NoError(t, err)
	return out
}

func countCustomers(t *testing.T, db bun.IDB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*Customer)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}
