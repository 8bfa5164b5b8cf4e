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

import "time"

// Entity is the base shape shared by every persisted record. Embed it in a
// Bun model to get the identifier, the active flag and the audit columns:
//
//	type Customer struct {
//		bun.BaseModel `bun:"table:customers"`
//		types.Entity
//		Name string `bun:"name,notnull"`
//	}
type Entity struct {
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`
	LastUpdatedBy string    `bun:"last_updated_by" json:"last_updated_by" validate:"max=128"`
	LastUpdatedAt time.Time `bun:"last_updated_at,notnull" json:"last_updated_at"`
}

// Base returns the embedded entity so generic code can reach the shared
// fields without knowing the concrete record type.
func (e *Entity) Base() *Entity { return e }

// Record is satisfied by a pointer to any struct embedding Entity.
type Record[T any] interface {
	*T
	Base() *Entity
}
