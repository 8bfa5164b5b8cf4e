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

package database

import (
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// ModelRegistry keeps the record types whose tables the migrations create.
// Tables are created in ascending priority, so a table referenced by a
// foreign key should carry a lower priority than the table referencing it.
type ModelRegistry struct {
	mu     sync.RWMutex
	models []registeredModel
	seen   map[reflect.Type]int
}

type registeredModel struct {
	instance interface{}
	priority int
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{seen: make(map[reflect.Type]int)}
}

// Register adds a pointer to a record struct, e.g. (*Customer)(nil).
// Registering the same type again only updates its priority.
func (r *ModelRegistry) Register(instance interface{}, priority int) {
	t := reflect.TypeOf(instance)
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.seen[t]; ok {
		r.models[i].priority = priority
		return
	}
	r.seen[t] = len(r.models)
	r.models = append(r.models, registeredModel{instance: instance, priority: priority})
}

// Instances returns the registered instances ordered by priority, keeping
// registration order among equal priorities.
func (r *ModelRegistry) Instances() []interface{} {
	r.mu.RLock()
	sorted := make([]registeredModel, len(r.models))
	copy(sorted, r.models)
	r.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	out := make([]interface{}, len(sorted))
	for i, m := range sorted {
		out[i] = m.instance
	}
	return out
}

// RegisterModel adds a model to the default registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(instance, priority)
}

// RegisterModels adds models to the default registry, prioritized in the
// order given.
func RegisterModels(instances ...interface{}) {
	for i, instance := range instances {
		defaultRegistry.Register(instance, i)
	}
}

// RegisteredModelInstances lists the default registry in table creation order.
func RegisteredModelInstances() []interface{} {
	return defaultRegistry.Instances()
}
