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

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// TrackState is the session's classification of an in-memory record.
type TrackState int

const (
	Detached TrackState = iota
	Unchanged
	Added
	Modified
	Deleted
)

var _ BaseEnum = Detached

var trackStateNames = [...]struct{ name, desc string }{
	Detached:  {"detached", "not known to the session"},
	Unchanged: {"unchanged", "tracked, no pending changes"},
	Added:     {"added", "inserted on next commit"},
	Modified:  {"modified", "updated on next commit"},
	Deleted:   {"deleted", "removed on next commit"},
}

func (s TrackState) IsValid() bool { return s >= Detached && s <= Deleted }

func (s TrackState) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s TrackState) Name() string {
	if !s.IsValid() {
		return IllegalName
	}
	return trackStateNames[s].name
}

func (s TrackState) String() string { return s.Name() }

func (s TrackState) Desc() string {
	if !s.IsValid() {
		return IllegalDesc
	}
	return trackStateNames[s].desc
}

// Pending reports whether the state produces a write on commit.
func (s TrackState) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}
