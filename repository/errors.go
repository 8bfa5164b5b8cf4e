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
	"errors"
	"strings"

	"github.com/tomoncle/bunrepo/database"
)

var (
	// ErrConcurrency matches errors caused by an update or delete that
	// affected no row.
	ErrConcurrency = database.ErrConcurrency
	// ErrValidation matches errors caused by values rejected before or
	// during commit.
	ErrValidation = database.ErrValidation
	// ErrNilEntity matches errors caused by a nil record.
	ErrNilEntity = database.ErrNilEntity
	// ErrNoSession matches errors raised by a repository without a session.
	ErrNoSession = errors.New("repository: no session")
)

// Kind classifies an Error.
type Kind int

const (
	KindStore Kind = iota
	KindConcurrency
	KindValidation
	KindConfiguration
	KindArgument
)

func (k Kind) String() string {
	switch k {
	case KindConcurrency:
		return "concurrency"
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindArgument:
		return "argument"
	default:
		return "store"
	}
}

const (
	msgRead        = "error while reading data from database via session"
	msgInsert      = "error while inserting data to database via session"
	msgUpdate      = "error while updating data to database via session"
	msgDelete      = "error while deleting data from database via session"
	msgSave        = "error while saving"
	msgValidation  = "validation failed while saving"
	msgConcurrency = "concurrency conflict"
	msgNoSession   = "'session' is nil"
)

// Error is returned by every repository operation. Message is fixed per
// operation family, Op names the failing operation and Err carries the
// cause, which may itself be an *Error of an inner operation.
type Error struct {
	Message string
	Op      string
	Err     error
	Kind    Kind
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrNoSession against configuration errors, which carry no
// cause. Other sentinels are reached through Unwrap.
func (e *Error) Is(target error) bool {
	return target == ErrNoSession && e.Kind == KindConfiguration
}

// newError wraps cause for op. The kind is inherited from a wrapped *Error
// or derived from the database sentinels, and conflicts get a message that
// names them.
func newError(op, msg string, cause error) *Error {
	e := &Error{Message: msg, Op: op, Err: cause, Kind: KindStore}
	var inner *Error
	switch {
	case errors.As(cause, &inner):
		e.Kind = inner.Kind
	case errors.Is(cause, ErrConcurrency):
		e.Kind = KindConcurrency
		e.Message = msg + ": " + msgConcurrency
	case errors.Is(cause, ErrValidation):
		e.Kind = KindValidation
		e.Message = msgValidation
	}
	return e
}

func noSession(op string) *Error {
	return &Error{Message: msgNoSession, Op: op, Kind: KindConfiguration}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
