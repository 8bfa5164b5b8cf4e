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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// Session is a unit of work over a Bun handle. It tracks the records it has
// loaded or been handed, and SaveChanges flushes every pending insert,
// update and delete in one transaction.
//
// A Session is not safe for concurrent use.
type Session struct {
	id       string
	db       bun.IDB
	logger   Logger
	validate *validator.Validate
	closer   func() error
	metrics  *Metrics

	entries []*Entry
	byModel map[interface{}]*Entry
	byKey   map[entityKey]*Entry
	closed  bool
}

// Entry is the tracking record of one model instance.
type Entry struct {
	Model interface{}
	State types.TrackState

	table    *schema.Table
	snapshot []interface{}
}

type entityKey struct {
	typ reflect.Type
	key string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger used for commit diagnostics.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithValidator replaces the validator run against added and modified
// records before commit.
func WithValidator(v *validator.Validate) SessionOption {
	return func(s *Session) { s.validate = v }
}

// WithCloser hands the session a resource to release on Close, typically
// the connection the session was opened on.
func WithCloser(fn func() error) SessionOption {
	return func(s *Session) { s.closer = fn }
}

// WithSessionMetrics records commit outcomes on m.
func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession opens a session over db, which may be a *bun.DB, a bun.Conn or
// a bun.Tx.
func NewSession(db bun.IDB, opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.NewString(),
		db:       db,
		validate: defaultValidator,
		byModel:  make(map[interface{}]*Entry),
		byKey:    make(map[entityKey]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = GetLogger()
	}
	return s
}

// ID identifies the session in log entries.
func (s *Session) ID() string { return s.id }

// DB returns the handle the session reads and commits through.
func (s *Session) DB() bun.IDB { return s.db }

// State reports how the session classifies model. Unknown models are Detached.
func (s *Session) State(model interface{}) types.TrackState {
	if e, ok := s.byModel[model]; ok {
		return e.State
	}
	return types.Detached
}

// Add schedules model for insertion.
func (s *Session) Add(model interface{}) error {
	table, err := s.tableOf(model)
	if err != nil {
		return err
	}
	if e, ok := s.byModel[model]; ok {
		if e.State == types.Deleted {
			e.State = types.Modified
		}
		return nil
	}
	s.track(model, table, types.Added)
	return nil
}

// Remove schedules model for deletion. Removing a model that was added but
// never committed just forgets it; a detached model is attached as deleted.
func (s *Session) Remove(model interface{}) error {
	table, err := s.tableOf(model)
	if err != nil {
		return err
	}
	e, ok := s.byModel[model]
	if !ok {
		s.track(model, table, types.Deleted)
		return nil
	}
	if e.State == types.Added {
		s.untrack(e)
		return nil
	}
	e.State = types.Deleted
	return nil
}

// Attach starts tracking model as Unchanged and returns the canonical
// instance: when another instance with the same primary key is already
// tracked, that instance is returned and model is left detached.
func (s *Session) Attach(model interface{}) (interface{}, error) {
	table, err := s.tableOf(model)
	if err != nil {
		return nil, err
	}
	if _, ok := s.byModel[model]; ok {
		return model, nil
	}
	if key, ok := s.keyOf(table, model); ok {
		if e, ok := s.byKey[key]; ok {
			return e.Model, nil
		}
	}
	s.track(model, table, types.Unchanged)
	return model, nil
}

// SetState forces the tracking state of model. Detached stops tracking it.
func (s *Session) SetState(model interface{}, state types.TrackState) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid track state %d", state)
	}
	table, err := s.tableOf(model)
	if err != nil {
		return err
	}
	e, ok := s.byModel[model]
	switch {
	case state == types.Detached:
		if ok {
			s.untrack(e)
		}
	case ok:
		e.State = state
		if state == types.Unchanged {
			e.snapshot = snapshotOf(table, model)
		}
	default:
		s.track(model, table, state)
	}
	return nil
}

// SetValues copies the column values of src into dst, keeping the primary
// key of dst. Relations are left untouched.
func (s *Session) SetValues(dst, src interface{}) error {
	table, err := s.tableOf(dst)
	if err != nil {
		return err
	}
	if _, err := s.tableOf(src); err != nil {
		return err
	}
	if reflect.TypeOf(dst) != reflect.TypeOf(src) {
		return fmt.Errorf("%w: cannot copy %T into %T", ErrNotAModel, src, dst)
	}
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for _, f := range table.Fields {
		if f.IsPK {
			continue
		}
		dv.FieldByIndex(f.Index).Set(sv.FieldByIndex(f.Index))
	}
	return nil
}

// SetRelations copies the relation fields of src into dst, e.g. the rows a
// query just loaded through Relation. Names restrict the copy to those
// relations; nested paths such as "Orders.Items" select their first segment.
func (s *Session) SetRelations(dst, src interface{}, names ...string) error {
	table, err := s.tableOf(dst)
	if err != nil {
		return err
	}
	if _, err := s.tableOf(src); err != nil {
		return err
	}
	if reflect.TypeOf(dst) != reflect.TypeOf(src) {
		return fmt.Errorf("%w: cannot copy %T into %T", ErrNotAModel, src, dst)
	}
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	copyRel := func(rel *schema.Relation) {
		dv.FieldByIndex(rel.Field.Index).Set(sv.FieldByIndex(rel.Field.Index))
	}
	if len(names) == 0 {
		for _, rel := range table.Relations {
			copyRel(rel)
		}
		return nil
	}
	for _, name := range names {
		name, _, _ = strings.Cut(strings.TrimSpace(name), ".")
		if rel, ok := table.Relations[name]; ok {
			copyRel(rel)
		}
	}
	return nil
}

// Find loads the row whose primary key equals keys into dest. Tracked
// instances are returned without touching the store. It returns nil when no
// row matches.
func (s *Session) Find(ctx context.Context, dest interface{}, keys ...interface{}) (interface{}, error) {
	if s.db == nil {
		return nil, ErrNoDB
	}
	table, err := s.tableOf(dest)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 || len(keys) != len(table.PKs) {
		return nil, fmt.Errorf("%w: %s expects %d key values, got %d", ErrKeyMismatch, table.Name, len(table.PKs), len(keys))
	}
	if e, ok := s.byKey[entityKey{typ: table.Type, key: joinKey(keys)}]; ok {
		if e.State == types.Deleted {
			return nil, nil
		}
		return e.Model, nil
	}

	q := s.db.NewSelect().Model(dest)
	for i, pk := range table.PKs {
		q = q.Where("?TableAlias.? = ?", bun.Ident(pk.Name), keys[i])
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.Attach(dest)
}

// DetectChanges marks Unchanged entries whose column values drifted from
// the snapshot taken when they were attached. Relations are not compared.
func (s *Session) DetectChanges() {
	for _, e := range s.entries {
		if e.State != types.Unchanged || e.snapshot == nil {
			continue
		}
		strct := reflect.ValueOf(e.Model).Elem()
		for i, f := range e.table.Fields {
			if !reflect.DeepEqual(e.snapshot[i], strct.FieldByIndex(f.Index).Interface()) {
				e.State = types.Modified
				break
			}
		}
	}
}

// Entries returns the tracked entries in the order they were tracked.
func (s *Session) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Pending counts entries that will be written by the next SaveChanges.
func (s *Session) Pending() int {
	s.DetectChanges()
	n := 0
	for _, e := range s.entries {
		if e.State.Pending() {
			n++
		}
	}
	return n
}

// SaveChanges writes every pending entry inside a single transaction and
// returns the number of affected rows. An update or delete that affects no
// row fails with ErrConcurrency; rejected values fail with ErrValidation.
// Nothing is accepted when the commit fails.
func (s *Session) SaveChanges(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNoDB
	}
	if s.closed {
		return 0, ErrClosed
	}
	s.DetectChanges()

	pending := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.State.Pending() {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := s.validateEntries(pending); err != nil {
		s.metrics.observeCommit("validation", 0)
		return 0, err
	}

	start := time.Now()
	var affected int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		affected = 0
		for _, e := range pending {
			n, err := s.flush(ctx, tx, e)
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	})
	if err != nil {
		err = classifyCommitError(err)
		s.metrics.observeCommit(commitOutcome(err), 0)
		s.logger.Warn("Session commit failed", "session", s.id, "pending", len(pending), "error", err)
		return 0, err
	}

	s.acceptChanges(pending)
	s.metrics.observeCommit("ok", affected)
	s.logger.Debug("Session committed", "session", s.id, "affected", affected, "duration", time.Since(start))
	return affected, nil
}

// Close forgets every tracked entry and releases the session's closer once.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.entries = nil
	s.byModel = make(map[interface{}]*Entry)
	s.byKey = make(map[entityKey]*Entry)
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *Session) flush(ctx context.Context, tx bun.Tx, e *Entry) (int64, error) {
	var (
		res sql.Result
		err error
	)
	switch e.State {
	case types.Added:
		res, err = tx.NewInsert().Model(e.Model).Exec(ctx)
	case types.Modified:
		res, err = tx.NewUpdate().Model(e.Model).WherePK().Exec(ctx)
	case types.Deleted:
		res, err = tx.NewDelete().Model(e.Model).WherePK().Exec(ctx)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// driver cannot report it; the statement did succeed
		n = 1
	}
	if n == 0 && e.State != types.Added {
		return 0, fmt.Errorf("%w: %s of %s affected no rows", ErrConcurrency, strings.ToLower(e.State.Name()), e.table.Name)
	}
	return n, nil
}

func (s *Session) validateEntries(pending []*Entry) error {
	if s.validate == nil {
		return nil
	}
	for _, e := range pending {
		if e.State == types.Deleted {
			continue
		}
		if err := s.validate.Struct(e.Model); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrValidation, e.table.Name, err)
		}
	}
	return nil
}

func (s *Session) acceptChanges(pending []*Entry) {
	for _, e := range pending {
		if e.State == types.Deleted {
			s.untrack(e)
			continue
		}
		e.State = types.Unchanged
		e.snapshot = snapshotOf(e.table, e.Model)
		if key, ok := s.keyOf(e.table, e.Model); ok {
			s.byKey[key] = e
		}
	}
}

func (s *Session) track(model interface{}, table *schema.Table, state types.TrackState) *Entry {
	e := &Entry{Model: model, State: state, table: table}
	if state == types.Unchanged {
		e.snapshot = snapshotOf(table, model)
	}
	s.entries = append(s.entries, e)
	s.byModel[model] = e
	if key, ok := s.keyOf(table, model); ok {
		if _, taken := s.byKey[key]; !taken {
			s.byKey[key] = e
		}
	}
	return e
}

func (s *Session) untrack(e *Entry) {
	delete(s.byModel, e.Model)
	if key, ok := s.keyOf(e.table, e.Model); ok && s.byKey[key] == e {
		delete(s.byKey, key)
	}
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
}

func (s *Session) tableOf(model interface{}) (*schema.Table, error) {
	if model == nil {
		return nil, ErrNilEntity
	}
	v := reflect.ValueOf(model)
	if v.Kind() != reflect.Ptr {
		return nil, ErrNotAModel
	}
	if v.IsNil() {
		return nil, ErrNilEntity
	}
	if v.Elem().Kind() != reflect.Struct {
		return nil, ErrNotAModel
	}
	if s.closed {
		return nil, ErrClosed
	}
	if s.db == nil {
		return nil, ErrNoDB
	}
	return s.db.Dialect().Tables().Get(v.Elem().Type()), nil
}

// keyOf returns the identity-map key of model; ok is false while any primary
// key field still holds its zero value.
func (s *Session) keyOf(table *schema.Table, model interface{}) (entityKey, bool) {
	if table == nil || len(table.PKs) == 0 {
		return entityKey{}, false
	}
	strct := reflect.ValueOf(model).Elem()
	values := make([]interface{}, len(table.PKs))
	for i, pk := range table.PKs {
		fv := strct.FieldByIndex(pk.Index)
		if fv.IsZero() {
			return entityKey{}, false
		}
		values[i] = fv.Interface()
	}
	return entityKey{typ: table.Type, key: joinKey(values)}, true
}

func joinKey(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

// snapshotOf copies the column values of model. Pointer, slice, map and
// array columns are deep copied so in-place edits show up as changes.
func snapshotOf(table *schema.Table, model interface{}) []interface{} {
	strct := reflect.ValueOf(model).Elem()
	snap := make([]interface{}, len(table.Fields))
	for i, f := range table.Fields {
		snap[i] = copyColumn(strct.FieldByIndex(f.Index))
	}
	return snap
}

func copyColumn(v reflect.Value) interface{} {
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Array:
	default:
		return v.Interface()
	}
	if v.IsZero() {
		return v.Interface()
	}
	cp, err := copystructure.Copy(v.Interface())
	if err != nil || cp == nil || reflect.TypeOf(cp) != v.Type() {
		return v.Interface()
	}
	return cp
}

func classifyCommitError(err error) error {
	if errors.Is(err, ErrConcurrency) || errors.Is(err, ErrValidation) {
		return err
	}
	if ok, kind := ClassifyError(err); ok && kind.IsConstraintViolation() {
		return fmt.Errorf("%w: %s: %w", ErrValidation, kind, err)
	}
	return err
}

func commitOutcome(err error) string {
	switch {
	case errors.Is(err, ErrConcurrency):
		return "concurrency"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
