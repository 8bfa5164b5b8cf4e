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

import "github.com/tomoncle/bunrepo/types"

// KeySelector returns the primary key values of a record, in the order of
// the table's primary key columns.
type KeySelector[P any] func(P) []interface{}

// ByID selects Entity.ID, the key of every record by default.
func ByID[T any, P types.Record[T]](obj P) []interface{} {
	return []interface{}{obj.Base().ID}
}
