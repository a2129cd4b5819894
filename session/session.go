// Package session implements the Session / Unit of Work (spec §4.7,
// relational only): an identity map keyed by (table, pk), an
// append-ordered pending-insert list, a deleted set, and a single
// transaction spanning flush/commit/rollback.
//
// Generic methods (Add, Get, Save, Delete) are free functions rather
// than *Session methods because each call needs its own model type
// parameter while the Session itself holds instances of many different
// model types at once (spec §3.1 "Session: identity map (model, pk) ->
// instance").
package session

import (
	"reflect"
	"sync"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/logger"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/relational"
	"github.com/dataplane/orm/types"
	"gorm.io/gorm"
)

// State is the Session's own lifecycle (spec §4.7), distinct from
// types.State which tracks an individual instance.
type State int

const (
	StateOpen State = iota
	StateFlushed
	StateCommitted
	StateRolledBack
	StateClosed
)

type identityKey struct {
	table string
	pk    string
}

// op is one deferred write, boxed by the generic Add/Save/Delete call
// that created it so Flush can execute heterogeneous model types in a
// single append-ordered pass.
type op struct {
	exec func(tx *gorm.DB) error
}

// Session is a single relational unit of work (spec §4.7).
type Session struct {
	tx    *gorm.DB
	dbctx *types.DatabaseContext
	log   *logger.Logger

	mu       sync.Mutex
	state    State
	identity map[identityKey]types.Model
	inserts  []op
	deletes  []op
	saves    []op
}

// New begins a transaction on gdb and opens a Session bound to it.
func New(gdb *gorm.DB, dbctx *types.DatabaseContext) (*Session, error) {
	if dbctx == nil {
		dbctx = types.NewDatabaseContext(nil)
	}
	tx := gdb.Begin()
	if tx.Error != nil {
		return nil, dberrors.NewDriver(tx.Error, true)
	}
	return &Session{
		tx:       tx,
		dbctx:    dbctx,
		log:      logger.Session,
		identity: make(map[identityKey]types.Model),
	}, nil
}

func (s *Session) requireOpen() error {
	if s.state == StateClosed || s.state == StateCommitted || s.state == StateRolledBack {
		return dberrors.NewSessionClosed()
	}
	return nil
}

// attachable is the structural interface model.Base satisfies, letting
// Session record itself on an instance without importing model for
// that single concern.
type attachable interface {
	AttachSession(any)
	GetState() types.State
	SetState(types.State)
}

// Add enqueues a Transient instance for insertion at the next Flush
// (spec §4.7 "add(instance) - state must be Transient; appends to
// pending list").
func Add[M types.Model](s *Session, instance M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if a, ok := any(instance).(attachable); ok {
		if a.GetState() != types.Transient {
			return dberrors.NewValidation("", "session.Add requires a transient instance")
		}
	}

	desc := model.DescriptorOf[M]()
	if desc == nil {
		return dberrors.NewValidation("", "model type was never registered with model.Register")
	}

	s.inserts = append(s.inserts, op{exec: func(tx *gorm.DB) error {
		db := relational.New[M](tx, s.dbctx)
		if err := db.Create(instance); err != nil {
			return err
		}
		if a, ok := any(instance).(attachable); ok {
			a.SetState(types.Persistent)
			a.AttachSession(s)
		}
		return nil
	}})
	s.identity[identityKey{table: desc.TableName, pk: instance.GetID()}] = instance
	return nil
}

// Get returns the identity-mapped instance for (M, id), issuing a
// SELECT on miss (spec §4.7 "get(model, pk) - identity map lookup...
// guarantees one-instance-per-pk within the session").
func Get[M types.Model](s *Session, id string) (M, error) {
	var zero M
	s.mu.Lock()
	if err := s.requireOpen(); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	desc := model.DescriptorOf[M]()
	if desc == nil {
		s.mu.Unlock()
		return zero, dberrors.NewValidation("", "model type was never registered with model.Register")
	}
	key := identityKey{table: desc.TableName, pk: id}
	if cached, ok := s.identity[key]; ok {
		s.mu.Unlock()
		return cached.(M), nil
	}
	s.mu.Unlock()

	inst := newInstance[M]()
	if err := relational.New[M](s.tx, s.dbctx).Get(inst, id); err != nil {
		return zero, err
	}
	if a, ok := any(inst).(attachable); ok {
		a.SetState(types.Persistent)
		a.AttachSession(s)
	}

	s.mu.Lock()
	s.identity[key] = inst
	s.mu.Unlock()
	return inst, nil
}

// Save enqueues a Persistent, dirty instance for an UPDATE at the next
// Flush. Per SPEC_FULL.md's Open Question decision, the Session never
// auto-detects mutations on loaded instances; Save is the only trigger
// for sending one.
func Save[M types.Model](s *Session, instance M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.saves = append(s.saves, op{exec: func(tx *gorm.DB) error {
		return relational.New[M](tx, s.dbctx).Update(instance)
	}})
	return nil
}

// Delete moves instance to the deleted set, applied at the next Flush
// in deletion-registration order.
func Delete[M types.Model](s *Session, instance M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	desc := model.DescriptorOf[M]()
	s.deletes = append(s.deletes, op{exec: func(tx *gorm.DB) error {
		if err := relational.New[M](tx, s.dbctx).Delete(instance); err != nil {
			return err
		}
		if a, ok := any(instance).(attachable); ok {
			a.SetState(types.Deleted)
		}
		return nil
	}})
	if desc != nil {
		delete(s.identity, identityKey{table: desc.TableName, pk: instance.GetID()})
	}
	return nil
}

// Flush submits pending inserts, then deletes, then explicit saves, in
// each list's append order (spec §4.7 invariant). It does not commit.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	for _, o := range s.inserts {
		if err := o.exec(s.tx); err != nil {
			return err
		}
	}
	s.inserts = nil
	for _, o := range s.deletes {
		if err := o.exec(s.tx); err != nil {
			return err
		}
	}
	s.deletes = nil
	for _, o := range s.saves {
		if err := o.exec(s.tx); err != nil {
			return err
		}
	}
	s.saves = nil
	s.state = StateFlushed
	return nil
}

// Commit flushes then commits the transaction. Calling Commit twice is
// a no-op returning the same result as the first call (spec §8.2
// "double commit").
func (s *Session) Commit() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateCommitted || s.state == StateRolledBack {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tx.Commit().Error; err != nil {
		return dberrors.NewDriver(err, true)
	}
	s.state = StateCommitted
	return nil
}

// Rollback abandons all pending state and clears the identity map.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateCommitted || s.state == StateRolledBack {
		return nil
	}
	err := s.tx.Rollback().Error
	s.inserts, s.deletes, s.saves = nil, nil, nil
	s.identity = make(map[identityKey]types.Model)
	s.state = StateRolledBack
	if err != nil {
		return dberrors.NewDriver(err, true)
	}
	return nil
}

// Expunge detaches instance from the session's identity map without
// affecting pending writes already queued for it.
func Expunge[M types.Model](s *Session, instance M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	desc := model.DescriptorOf[M]()
	if desc == nil {
		return
	}
	delete(s.identity, identityKey{table: desc.TableName, pk: instance.GetID()})
	if a, ok := any(instance).(attachable); ok {
		a.SetState(types.Detached)
		a.AttachSession(nil)
	}
}

// ExpungeAll detaches every instance currently in the identity map.
func (s *Session) ExpungeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, inst := range s.identity {
		if a, ok := any(inst).(attachable); ok {
			a.SetState(types.Detached)
			a.AttachSession(nil)
		}
		delete(s.identity, k)
	}
}

// Close rolls back if still open, then releases the session. All
// operations on a closed Session fail with SessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateOpen || state == StateFlushed {
		if err := s.Rollback(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	return nil
}

func newInstance[M types.Model]() M {
	typ := reflect.TypeOf(*new(M)).Elem()
	return reflect.New(typ).Interface().(M) //nolint:errcheck
}
