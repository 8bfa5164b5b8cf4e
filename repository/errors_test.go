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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tomoncle/bunrepo/types"
)

func TestNewErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name    string
		cause   error
		kind    Kind
		message string
	}{
		{"store", cause, KindStore, msgSave},
		{"concurrency", fmt.Errorf("%w: update of customers affected no rows", ErrConcurrency), KindConcurrency, msgSave + ": " + msgConcurrency},
		{"validation", fmt.Errorf("%w: customers: bad", ErrValidation), KindValidation, msgValidation},
		{"inherited", &Error{Message: msgUpdate, Op: "inner", Kind: KindArgument, Err: ErrNilEntity}, KindArgument, msgSave},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newError("Repository.SaveChanges()", msgSave, tt.cause)
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.message, err.Message)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestErrorString(t *testing.T) {
	err := newError("Repository.Insert(obj)", msgInsert, errors.New("boom"))
	assert.Equal(t, "Repository.Insert(obj): "+msgInsert+": boom", err.Error())
	assert.Equal(t, "Repository.SaveChanges(): "+msgNoSession, noSession("Repository.SaveChanges()").Error())
	assert.Equal(t, "concurrency", KindConcurrency.String())
	assert.Equal(t, "store", Kind(99).String())
}

func TestStampAudit(t *testing.T) {
	now := time.Now()
	e := &types.Entity{}
	StampAudit(e, now)
	assert.Equal(t, now, e.LastUpdatedAt)

	later := now.Add(time.Hour)
	StampAudit(e, later)
	assert.Equal(t, now, e.LastUpdatedAt)

	StampAudit(nil, now)
}
