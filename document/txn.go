package document

import (
	"context"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Health checks backend connectivity (spec §4.5).
func (db *DB[M]) Health() error {
	if err := db.client.Ping(db.dbctx.Context(), readpref.Primary()); err != nil {
		return dberrors.NewDriver(err, true)
	}
	return nil
}

// Transaction runs fn within a session transaction scoped to this
// model, auto-injecting the session-bound Database[M] and rolling back
// on error (spec §4.7's session semantics, surfaced here for
// single-model use without an explicit Session).
func (db *DB[M]) Transaction(fn func(txDB query.Database[M]) error) error {
	sess, err := db.client.StartSession()
	if err != nil {
		return dberrors.NewDriver(err, true)
	}
	defer sess.EndSession(db.dbctx.Context())

	_, err = sess.WithTransaction(db.dbctx.Context(), func(sc context.Context) (any, error) {
		txctx := types.NewDatabaseContext(sc)
		txctx.UserID, txctx.RequestID = db.dbctx.UserID, db.dbctx.RequestID
		txctx.TraceID, txctx.SpanID = db.dbctx.TraceID, db.dbctx.SpanID
		txDB := New[M](db.client, db.dbase, txctx)
		return nil, fn(txDB)
	})
	if err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}

// TransactionFunc runs fn within a session transaction spanning any
// number of model types. fn receives the *mongo.Session; the
// transaction's context is not passed to fn. An operation joins the
// transaction only if its context carries that session (see
// mongo.NewSessionContext); a Database[M] of this package runs on its
// own DatabaseContext, and WithTx returns it unchanged.
func (db *DB[M]) TransactionFunc(fn func(tx any) error) error {
	sess, err := db.client.StartSession()
	if err != nil {
		return dberrors.NewDriver(err, true)
	}
	defer sess.EndSession(db.dbctx.Context())

	_, err = sess.WithTransaction(db.dbctx.Context(), func(sc context.Context) (any, error) {
		return nil, fn(sess)
	})
	if err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}
