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
	"time"

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
)

// StampAudit sets LastUpdatedAt to now unless the caller already set it.
func StampAudit(e *types.Entity, now time.Time) {
	if e != nil && e.LastUpdatedAt.IsZero() {
		e.LastUpdatedAt = now
	}
}

type options struct {
	clock  func() time.Time
	logger database.Logger
}

// Option configures a Repository.
type Option func(*options)

// WithClock replaces time.Now as the source of audit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the logger used for operation diagnostics.
func WithLogger(logger database.Logger) Option {
	return func(o *options) { o.logger = logger }
}
